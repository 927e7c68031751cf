package hub

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"Meetpulse/internal/event"
	"Meetpulse/internal/model"
)

const (
	shardCount = 64 // tune: 16/64/128 depending on load
)

type inboundMessage struct {
	event  event.WsEvent
	binary []byte
	client *Client
}

type roomBucket struct {
	sync.RWMutex
	rooms map[string]map[string]*Client // meetingID -> sessionID -> client
}

// TranscriptStore is the persistence surface the session dispatcher needs.
type TranscriptStore interface {
	InsertRow(ctx context.Context, row *model.TranscriptRow) (string, error)
}

// InsightSource produces AI replies and suggestions for inbound messages.
// Implementations carry the fallback contract: they never return errors.
type InsightSource interface {
	Reply(ctx context.Context, text string) string
	Suggestions(ctx context.Context, rowID, text string) []string
	Transcribe(ctx context.Context, audio []byte) (string, bool)
}

// Hub is the broadcast router: it owns every connection session, the
// per-meeting room sets, and the presence tracker, and fans published
// events out to room subscribers.
type Hub struct {
	shards [shardCount]*roomBucket

	sessions   map[string]*Client
	sessionsMu sync.RWMutex

	presence *PresenceTracker

	register   chan *Client
	unregister chan *Client
	inbound    chan inboundMessage

	transcripts    TranscriptStore
	insights       InsightSource
	logger         *zap.Logger
	allowAnonymous bool
	upgrader       websocket.Upgrader

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(transcripts TranscriptStore, insights InsightSource, logger *zap.Logger, allowAnonymous bool, allowedOrigins []string) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		sessions:       make(map[string]*Client),
		presence:       NewPresenceTracker(),
		register:       make(chan *Client, 1024),
		unregister:     make(chan *Client, 1024),
		inbound:        make(chan inboundMessage, 4096), // buffer for burst handling
		transcripts:    transcripts,
		insights:       insights,
		logger:         logger,
		allowAnonymous: allowAnonymous,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		ctx:    ctx,
		cancel: cancel,
	}

	for i := 0; i < shardCount; i++ {
		h.shards[i] = &roomBucket{
			rooms: make(map[string]map[string]*Client),
		}
	}

	// run manager loop
	go h.run()

	// start worker loop
	for i := 0; i < workerPoolSize; i++ {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			for {
				select {
				case <-h.ctx.Done():
					return
				case in := <-h.inbound:
					if in.binary != nil {
						h.handleBinary(in.binary, in.client)
						continue
					}
					h.handleEvent(in.event, in.client)
				}
			}
		}()
	}

	return h
}

func (h *Hub) run() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		}
	}
}

func (h *Hub) addClient(c *Client) {
	h.sessionsMu.Lock()
	h.sessions[c.ID] = c
	h.sessionsMu.Unlock()

	c.Send(event.NewEvent(event.EventConnectionStatus, event.ConnectionStatusPayload{
		SessionID: c.ID,
		Status:    "connected",
	}))

	h.logger.Info("session registered", zap.String("session_id", c.ID))
}

// removeClient tears a session down completely: it leaves every room it
// joined, drops any presence entries it held, and broadcasts the updated
// participant lists to the affected rooms.
func (h *Hub) removeClient(c *Client) {
	h.sessionsMu.Lock()
	delete(h.sessions, c.ID)
	h.sessionsMu.Unlock()

	for _, meetingID := range c.Rooms() {
		h.removeFromRoom(c, meetingID)
	}

	for meetingID, participants := range h.presence.RemoveSession(c.ID) {
		h.Publish(meetingID, event.NewEvent(event.EventParticipants, event.ParticipantsPayload{
			MeetingID:    meetingID,
			Participants: participants,
		}))
		h.Publish(meetingID, event.NewEvent(event.EventMeetingUpdate, event.MeetingUpdatePayload{
			MeetingID: meetingID,
			Kind:      event.UpdateParticipantLeft,
			UserID:    c.UserID(),
		}))
	}

	c.Close()
	h.logger.Info("session removed", zap.String("session_id", c.ID))
}

// Subscribe adds the session to the room for meetingID. Membership is
// always explicit: only a join_meeting message or this call creates it.
func (h *Hub) Subscribe(c *Client, meetingID string) {
	if meetingID == "" {
		return
	}

	sh := getShard(meetingID)
	b := h.shards[sh]
	b.Lock()
	room, ok := b.rooms[meetingID]
	if !ok {
		room = make(map[string]*Client)
		b.rooms[meetingID] = room
	}
	room[c.ID] = c
	b.Unlock()

	c.addRoom(meetingID)
	h.logger.Debug("session joined room",
		zap.String("session_id", c.ID),
		zap.String("meeting_id", meetingID),
		zap.Uint32("shard", sh),
	)
}

// Unsubscribe removes the session from the room. Idempotent.
func (h *Hub) Unsubscribe(c *Client, meetingID string) {
	h.removeFromRoom(c, meetingID)
	c.removeRoom(meetingID)
}

func (h *Hub) removeFromRoom(c *Client, meetingID string) {
	sh := getShard(meetingID)
	b := h.shards[sh]
	b.Lock()
	defer b.Unlock()

	if room, ok := b.rooms[meetingID]; ok {
		delete(room, c.ID)
		if len(room) == 0 {
			delete(b.rooms, meetingID)
		}
	}
}

// Publish delivers an event to every live session subscribed to the room.
// Delivery is best-effort: a session whose egress is full or closed is
// skipped so one dead consumer cannot stall fan-out to the rest.
func (h *Hub) Publish(meetingID string, ev event.WsEvent) {
	sh := getShard(meetingID)
	b := h.shards[sh]

	// collect clients while holding RLock
	b.RLock()
	room, ok := b.rooms[meetingID]
	if !ok || len(room) == 0 {
		b.RUnlock()
		return
	}

	clients := make([]*Client, 0, len(room))
	for _, c := range room {
		clients = append(clients, c)
	}
	b.RUnlock()

	// deliver to clients without holding the lock
	for _, c := range clients {
		if !c.SafeSend(ev, sendTimeout) {
			h.logger.Debug("skipped delivery to slow or closed session",
				zap.String("session_id", c.ID),
				zap.String("meeting_id", meetingID),
			)
		}
	}
}

func getShard(meetingID string) uint32 {
	if meetingID == "" {
		return 0
	}

	h := sha1.Sum([]byte(meetingID))
	return binary.BigEndian.Uint32(h[:4]) % shardCount
}

// Presence exposes the tracker for handlers and monitoring.
func (h *Hub) Presence() *PresenceTracker {
	return h.presence
}

// Stop cancels the hub. The inbound channel is never closed; workers and
// reader goroutines exit on ctx cancellation, so a reader mid-enqueue can
// never hit a closed channel. Safe to call more than once.
func (h *Hub) Stop() {
	h.cancel()

	h.sessionsMu.RLock()
	for _, client := range h.sessions {
		client.Close()
	}
	h.sessionsMu.RUnlock()

	h.wg.Wait()
}

// ServeWS upgrades the HTTP request and registers a new connection session.
// A userId query parameter, when present, binds a verified identity at
// handshake time; with anonymous presence disabled it is the only way a
// session gets an identity.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	RegisterClient(r.URL.Query().Get("userId"), conn, h)
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if len(allowed) == 0 {
			return true // allow non-browser clients and local tooling
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == origin {
				return true
			}
		}
		return false
	}
}
