package wsclient

import (
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"Meetpulse/internal/event"
)

// EventConnectionFailed is the synthetic terminal event dispatched locally
// when the reconnection budget is exhausted. It is never sent on the wire.
const EventConnectionFailed = "connection_failed"

var (
	reconnectBaseDelay   = 1 * time.Second
	reconnectMaxDelay    = 30 * time.Second
	maxReconnectAttempts = 5

	clientWriteWait  = 10 * time.Second
	clientReadWait   = 60 * time.Second
	handshakeTimeout = 10 * time.Second
)

var ErrClosed = errors.New("controller is closed")

// Handler consumes one dispatched event.
type Handler func(ev event.WsEvent)

// Controller maintains a socket session against the hub, transparently
// reconnecting with exponential backoff when the connection drops. Room
// membership is durable intent: every room joined through JoinMeeting is
// replayed with a fresh join_meeting after each successful reconnect, so
// consumers keep receiving room broadcasts across connection churn.
type Controller struct {
	endpoint string
	userID   string
	logger   *zap.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
	intents  map[string]struct{}
	conn     *websocket.Conn
	online   bool
	closed   bool

	writeMu sync.Mutex

	failedOnce sync.Once
	done       chan struct{}
	wg         sync.WaitGroup
}

// NewController starts a controller connecting to the given ws:// endpoint.
// The first connection attempt happens asynchronously; register handlers
// before events matter.
func NewController(endpoint, userID string, logger *zap.Logger) *Controller {
	c := &Controller{
		endpoint: endpoint,
		userID:   userID,
		logger:   logger,
		handlers: make(map[string]Handler),
		intents:  make(map[string]struct{}),
		done:     make(chan struct{}),
	}

	c.wg.Add(1)
	go c.run()

	return c
}

// On registers the handler for an event type, replacing any previous one.
// The connection_failed terminal event is delivered through the same path.
func (c *Controller) On(eventType string, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[eventType] = handler
}

// Off removes the handler for an event type.
func (c *Controller) Off(eventType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, eventType)
}

// JoinMeeting records the room in the durable intent set and, when online,
// sends the join immediately. The intent survives reconnects.
func (c *Controller) JoinMeeting(meetingID string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.intents[meetingID] = struct{}{}
	online := c.online
	c.mu.Unlock()

	if !online {
		return nil // replayed on reconnect
	}
	return c.send(event.NewEvent(event.EventJoinMeeting, event.JoinMeetingPayload{MeetingID: meetingID}))
}

// LeaveMeeting drops the room from the intent set and notifies the hub.
func (c *Controller) LeaveMeeting(meetingID string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	delete(c.intents, meetingID)
	online := c.online
	c.mu.Unlock()

	if !online {
		return nil
	}
	return c.send(event.NewEvent(event.EventLeaveMeeting, event.JoinMeetingPayload{MeetingID: meetingID}))
}

// Send transmits an arbitrary typed event to the hub.
func (c *Controller) Send(eventType string, payload any) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return ErrClosed
	}
	online := c.online
	c.mu.RUnlock()

	if !online {
		return errors.New("not connected")
	}
	return c.send(event.NewEvent(eventType, payload))
}

// SendMessage sends a participant transcript line to the meeting.
func (c *Controller) SendMessage(meetingID, user, text string) error {
	return c.Send(event.EventUser, event.UserMessagePayload{
		MeetingID: meetingID,
		User:      user,
		Text:      text,
	})
}

// IsConnected reports whether a live socket session exists right now.
func (c *Controller) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.online
}

// Close shuts the controller down. No handler is invoked after Close
// returns, including the connection_failed terminal event.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn = nil
	c.online = false
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.wg.Wait()
}

// run owns the connect/read/reconnect cycle. Attempts reset to zero after
// every successful connection; five consecutive failures are terminal.
func (c *Controller) run() {
	defer c.wg.Done()

	attempts := 0
	for {
		select {
		case <-c.done:
			return
		default:
		}

		conn, err := c.dial()
		if err != nil {
			attempts++
			c.logger.Warn("connection attempt failed",
				zap.Int("attempt", attempts),
				zap.Error(err),
			)
			if attempts >= maxReconnectAttempts {
				c.fail()
				return
			}
			if !c.backoff(attempts) {
				return
			}
			continue
		}

		attempts = 0
		if !c.attach(conn) {
			conn.Close()
			return
		}
		c.replayIntents()

		c.readLoop(conn)
		c.detach(conn)

		select {
		case <-c.done:
			return
		default:
			c.logger.Info("connection lost, reconnecting")
		}
	}
}

func (c *Controller) dial() (*websocket.Conn, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, err
	}
	if c.userID != "" {
		q := u.Query()
		q.Set("userId", c.userID)
		u.RawQuery = q.Encode()
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (c *Controller) attach(conn *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.conn = conn
	c.online = true
	return true
}

func (c *Controller) detach(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.online = false
	}
	c.mu.Unlock()
	conn.Close()
}

// replayIntents re-subscribes to every room in the durable intent set.
func (c *Controller) replayIntents() {
	c.mu.RLock()
	rooms := make([]string, 0, len(c.intents))
	for meetingID := range c.intents {
		rooms = append(rooms, meetingID)
	}
	c.mu.RUnlock()

	for _, meetingID := range rooms {
		if err := c.send(event.NewEvent(event.EventJoinMeeting, event.JoinMeetingPayload{MeetingID: meetingID})); err != nil {
			c.logger.Warn("rejoin failed", zap.String("meeting_id", meetingID), zap.Error(err))
		}
	}
}

func (c *Controller) readLoop(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(clientReadWait))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(clientReadWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(clientWriteWait))
	})

	for {
		var ev event.WsEvent
		if err := conn.ReadJSON(&ev); err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(clientReadWait))
		c.dispatch(ev)
	}
}

// dispatch invokes the registered handler, if any. Checked against the
// closed flag under the lock so no handler runs after Close.
func (c *Controller) dispatch(ev event.WsEvent) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return
	}
	handler := c.handlers[ev.Type]
	c.mu.RUnlock()

	if handler != nil {
		handler(ev)
	}
}

// fail dispatches the terminal connection_failed event exactly once.
func (c *Controller) fail() {
	c.failedOnce.Do(func() {
		c.logger.Error("reconnection budget exhausted",
			zap.Int("attempts", maxReconnectAttempts),
		)
		c.dispatch(event.NewEvent(EventConnectionFailed, event.ConnectionStatusPayload{
			Status: "failed",
		}))
	})
}

// backoff sleeps for the exponential delay, returning false if the
// controller closed while waiting.
func (c *Controller) backoff(attempt int) bool {
	delay := reconnectBaseDelay << uint(attempt-1)
	if delay > reconnectMaxDelay {
		delay = reconnectMaxDelay
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-c.done:
		return false
	case <-timer.C:
		return true
	}
}

func (c *Controller) send(ev event.WsEvent) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return errors.New("not connected")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
	return conn.WriteJSON(ev)
}
