package hub

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"Meetpulse/internal/event"
)

var (
	// tuning parameters
	writeWait          = 10 * time.Second       // time allowed to write a message to the peer
	pongWait           = 20 * time.Second       // time allowed to read the next pong message from the peer
	pingInterval       = (pongWait * 9) / 10    // send pings to peer with this period
	maxMessageSize     = 256 * 1024             // max inbound message size (covers audio frames)
	sendBufSize        = 256                    // per-connection outbound buffer size
	workerPoolSize     = 16                     // number of workers to process inbound messages
	sendTimeout        = 2 * time.Second        // timeout for enqueuing outbound messages
	registerTimeout    = 5 * time.Second        // timeout for client registration
	unregisterTimeout  = 5 * time.Second        // timeout for client unregistration
	inboundSendTimeout = 500 * time.Millisecond // timeout for sending to inbound channel
)

// Client is one connection session: the per-socket state machine owning
// the bound identity, the set of joined rooms, and the read/write pumps.
type Client struct {
	ID      string
	conn    *websocket.Conn
	manager *Hub
	egress  chan event.WsEvent

	// identity bound at handshake or by the first presence message;
	// one concurrent identity per connection
	userID   string
	identity sync.RWMutex

	// rooms the session explicitly joined; no implicit membership
	rooms   map[string]struct{}
	roomsMu sync.RWMutex

	lastActive   time.Time
	lastActiveMu sync.RWMutex

	// cancel or stop goroutines
	cancel         context.CancelFunc
	ctx            context.Context
	once           sync.Once
	connClosed     chan struct{}
	connClosedOnce sync.Once
	closed         bool
	closedMu       sync.RWMutex
}

// RegisterClient creates a new session for a WebSocket connection. The
// userID may be empty; in that case identity binding waits for a presence
// message (if anonymous presence is allowed).
func RegisterClient(userID string, conn *websocket.Conn, h *Hub) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	client := &Client{
		ID:         uuid.New().String(),
		conn:       conn,
		manager:    h,
		egress:     make(chan event.WsEvent, sendBufSize),
		userID:     userID,
		rooms:      make(map[string]struct{}),
		lastActive: time.Now(),
		cancel:     cancel,
		ctx:        ctx,
		connClosed: make(chan struct{}),
	}

	select {
	case h.register <- client:
		go client.ReadMessages()
		go client.WriteMessages()
		return client
	case <-time.After(registerTimeout):
		h.logger.Warn("failed to register session: timeout", zap.String("session_id", client.ID))
		cancel()
		conn.Close()
		return nil
	}
}

func (c *Client) ReadMessages() {
	defer func() {
		select {
		case c.manager.unregister <- c:
		case <-time.After(unregisterTimeout):
			c.manager.logger.Warn("failed to unregister session: timeout", zap.String("session_id", c.ID))
		}
		c.Close()
	}()

	c.conn.SetReadLimit(int64(maxMessageSize))
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(c.pongHandler)

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			msgType, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err,
					websocket.CloseNormalClosure,
					websocket.CloseGoingAway,
					websocket.CloseAbnormalClosure,
				) {
					c.manager.logger.Debug("session disconnected", zap.String("session_id", c.ID))
					return
				}

				if websocket.IsUnexpectedCloseError(err,
					websocket.CloseInternalServerErr,
					websocket.CloseProtocolError,
				) {
					c.manager.logger.Warn("unexpected close", zap.String("session_id", c.ID), zap.Error(err))
				}

				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					c.manager.logger.Debug("session timed out, closing", zap.String("session_id", c.ID))
					return
				}

				c.manager.logger.Debug("read error", zap.String("session_id", c.ID), zap.Error(err))
				return
			}

			in := inboundMessage{client: c}
			switch msgType {
			case websocket.BinaryMessage:
				in.binary = data
			case websocket.TextMessage:
				var ev event.WsEvent
				if err := json.Unmarshal(data, &ev); err != nil {
					// malformed frame: drop with no reply
					c.manager.logger.Debug("dropping malformed frame", zap.String("session_id", c.ID))
					continue
				}
				in.event = ev
			default:
				continue
			}

			// Non-blocking send into inbound processing queue to avoid blocking reader
			select {
			case c.manager.inbound <- in:
			case <-time.After(inboundSendTimeout):
				c.manager.logger.Warn("inbound queue full, dropping session", zap.String("session_id", c.ID))
				c.cancel()
				c.conn.Close()
			case <-c.ctx.Done():
				return
			}
		}
	}
}

func (c *Client) WriteMessages() {
	ticker := time.NewTicker(pingInterval)

	defer func() {
		ticker.Stop()
		c.Close()
		_ = c.conn.Close()

		c.connClosedOnce.Do(func() {
			close(c.connClosed)
		})
	}()

	for {
		select {
		case <-c.ctx.Done():
			_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
			return
		case ev := <-c.egress:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				c.manager.logger.Debug("write error", zap.String("session_id", c.ID), zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.manager.logger.Debug("ping error", zap.String("session_id", c.ID), zap.Error(err))
				return
			}
		}
	}
}

func (c *Client) pongHandler(string) error {
	return c.conn.SetReadDeadline(time.Now().Add(pongWait))
}

// Send enqueues an event, disconnecting the session when the egress stays
// full past the send timeout.
func (c *Client) Send(ev event.WsEvent) {
	select {
	case c.egress <- ev:
	case <-time.After(sendTimeout):
		c.manager.logger.Warn("egress full, disconnecting session", zap.String("session_id", c.ID))
		select {
		case c.manager.unregister <- c:
		case <-time.After(unregisterTimeout):
			c.manager.logger.Warn("failed to unregister session: timeout", zap.String("session_id", c.ID))
		}
	case <-c.ctx.Done():
		// session already closed
	}
}

// SafeSend attempts to enqueue an event without ever disconnecting the
// session. Returns false if the session is closed or the egress stayed
// full past the timeout.
func (c *Client) SafeSend(ev event.WsEvent, timeout time.Duration) bool {
	if c.IsClosed() {
		return false
	}

	select {
	case <-c.ctx.Done():
		return false
	case c.egress <- ev:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (c *Client) Close() {
	c.once.Do(func() {
		c.closedMu.Lock()
		c.closed = true
		c.closedMu.Unlock()

		// egress is never closed: the write pump exits on ctx cancellation,
		// so a concurrent publisher cannot hit a closed channel
		c.cancel()

		// Wait for WriteMessages to close conn, or force close after timeout
		go func() {
			select {
			case <-c.connClosed:
			case <-time.After(5 * time.Second):
				_ = c.conn.Close()
			}
		}()
	})
}

// IsClosed returns true if the session has been closed
func (c *Client) IsClosed() bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	return c.closed
}

// -----------------------------------------------------------------
// Identity and room membership
// -----------------------------------------------------------------

// UserID returns the identity bound to the session, or "" while unbound.
func (c *Client) UserID() string {
	c.identity.RLock()
	defer c.identity.RUnlock()
	return c.userID
}

// BindIdentity binds a user identity to the session. A session keeps one
// concurrent identity: rebinding to a different user is rejected.
func (c *Client) BindIdentity(userID string) bool {
	c.identity.Lock()
	defer c.identity.Unlock()

	if c.userID == "" {
		c.userID = userID
		return true
	}
	return c.userID == userID
}

// Rooms returns the meetings this session has explicitly joined.
func (c *Client) Rooms() []string {
	c.roomsMu.RLock()
	defer c.roomsMu.RUnlock()

	rooms := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		rooms = append(rooms, id)
	}
	return rooms
}

// InRoom reports whether the session joined the given meeting.
func (c *Client) InRoom(meetingID string) bool {
	c.roomsMu.RLock()
	defer c.roomsMu.RUnlock()
	_, ok := c.rooms[meetingID]
	return ok
}

func (c *Client) addRoom(meetingID string) {
	c.roomsMu.Lock()
	defer c.roomsMu.Unlock()
	c.rooms[meetingID] = struct{}{}
}

func (c *Client) removeRoom(meetingID string) {
	c.roomsMu.Lock()
	defer c.roomsMu.Unlock()
	delete(c.rooms, meetingID)
}

// Touch records activity on the session.
func (c *Client) Touch() {
	c.lastActiveMu.Lock()
	defer c.lastActiveMu.Unlock()
	c.lastActive = time.Now()
}

// LastActive returns the time of the session's last activity.
func (c *Client) LastActive() time.Time {
	c.lastActiveMu.RLock()
	defer c.lastActiveMu.RUnlock()
	return c.lastActive
}
