package wsclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"Meetpulse/internal/event"
)

var testUpgrader = websocket.Upgrader{}

func fastBackoff(t *testing.T) {
	t.Helper()

	oldBase, oldMax, oldAttempts := reconnectBaseDelay, reconnectMaxDelay, maxReconnectAttempts
	reconnectBaseDelay = 10 * time.Millisecond
	reconnectMaxDelay = 50 * time.Millisecond
	maxReconnectAttempts = 3
	t.Cleanup(func() {
		reconnectBaseDelay = oldBase
		reconnectMaxDelay = oldMax
		maxReconnectAttempts = oldAttempts
	})
}

// newWSServer runs handle once per accepted socket connection.
func newWSServer(t *testing.T, handle func(conn *websocket.Conn, r *http.Request)) string {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn, r)
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func readEvent(t *testing.T, conn *websocket.Conn) event.WsEvent {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev event.WsEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestControllerConnectsAndDispatches(t *testing.T) {
	endpoint := newWSServer(t, func(conn *websocket.Conn, r *http.Request) {
		assert.Equal(t, "alice", r.URL.Query().Get("userId"))

		conn.WriteJSON(event.NewEvent(event.EventConnectionStatus, event.ConnectionStatusPayload{
			SessionID: "s1",
			Status:    "connected",
		}))

		// keep the connection open until the test finishes
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		conn.ReadMessage()
	})

	controller := NewController(endpoint, "alice", zap.NewNop())
	defer controller.Close()

	got := make(chan event.WsEvent, 1)
	controller.On(event.EventConnectionStatus, func(ev event.WsEvent) {
		got <- ev
	})

	select {
	case ev := <-got:
		var status event.ConnectionStatusPayload
		require.NoError(t, json.Unmarshal(ev.Payload, &status))
		assert.Equal(t, "connected", status.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("connection_status never dispatched")
	}

	assert.Eventually(t, controller.IsConnected, time.Second, 10*time.Millisecond)
}

func TestControllerReplaysRoomIntentAfterReconnect(t *testing.T) {
	fastBackoff(t)

	var connCount atomic.Int32
	joins := make(chan string, 4)

	endpoint := newWSServer(t, func(conn *websocket.Conn, r *http.Request) {
		n := connCount.Add(1)

		ev := readEvent(t, conn)
		require.Equal(t, event.EventJoinMeeting, ev.Type)
		var join event.JoinMeetingPayload
		require.NoError(t, json.Unmarshal(ev.Payload, &join))
		joins <- join.MeetingID

		if n == 1 {
			return // drop the first connection to force a reconnect
		}

		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		conn.ReadMessage()
	})

	controller := NewController(endpoint, "alice", zap.NewNop())
	defer controller.Close()

	require.NoError(t, controller.JoinMeeting("m1"))

	// join on the first connection, then again on the replacement
	for i := 0; i < 2; i++ {
		select {
		case meetingID := <-joins:
			assert.Equal(t, "m1", meetingID)
		case <-time.After(3 * time.Second):
			t.Fatalf("join %d never arrived", i+1)
		}
	}

	assert.GreaterOrEqual(t, connCount.Load(), int32(2))
}

func TestControllerSendMessage(t *testing.T) {
	messages := make(chan event.UserMessagePayload, 1)

	endpoint := newWSServer(t, func(conn *websocket.Conn, r *http.Request) {
		for {
			conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			var ev event.WsEvent
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			if ev.Type != event.EventUser {
				continue
			}
			var msg event.UserMessagePayload
			if err := json.Unmarshal(ev.Payload, &msg); err != nil {
				continue
			}
			messages <- msg
		}
	})

	controller := NewController(endpoint, "alice", zap.NewNop())
	defer controller.Close()

	require.Eventually(t, controller.IsConnected, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, controller.SendMessage("m1", "alice", "hello room"))

	select {
	case msg := <-messages:
		assert.Equal(t, "m1", msg.MeetingID)
		assert.Equal(t, "alice", msg.User)
		assert.Equal(t, "hello room", msg.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("message never arrived")
	}
}

func TestControllerTerminalFailureEmittedOnce(t *testing.T) {
	fastBackoff(t)

	// a server that is already gone: every dial is refused
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	controller := NewController(endpoint, "", zap.NewNop())
	defer controller.Close()

	failures := make(chan event.WsEvent, 4)
	controller.On(EventConnectionFailed, func(ev event.WsEvent) {
		failures <- ev
	})

	select {
	case <-failures:
	case <-time.After(3 * time.Second):
		t.Fatal("connection_failed never dispatched")
	}

	// terminal means exactly once
	select {
	case <-failures:
		t.Fatal("connection_failed dispatched twice")
	case <-time.After(200 * time.Millisecond):
	}

	assert.False(t, controller.IsConnected())
}

func TestControllerCloseSuppressesCallbacks(t *testing.T) {
	fastBackoff(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	controller := NewController(endpoint, "", zap.NewNop())

	failures := make(chan event.WsEvent, 1)
	controller.On(EventConnectionFailed, func(ev event.WsEvent) {
		failures <- ev
	})

	controller.Close()

	select {
	case <-failures:
		t.Fatal("callback fired after Close")
	case <-time.After(300 * time.Millisecond):
	}

	assert.ErrorIs(t, controller.JoinMeeting("m1"), ErrClosed)
	assert.ErrorIs(t, controller.LeaveMeeting("m1"), ErrClosed)
	assert.ErrorIs(t, controller.SendMessage("m1", "a", "b"), ErrClosed)

	// closing again is a no-op
	controller.Close()
}

func TestControllerLeaveMeetingDropsIntent(t *testing.T) {
	fastBackoff(t)

	var connCount atomic.Int32
	frames := make(chan event.WsEvent, 8)

	endpoint := newWSServer(t, func(conn *websocket.Conn, r *http.Request) {
		n := connCount.Add(1)
		for {
			conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			var ev event.WsEvent
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			frames <- ev
			if n == 1 && ev.Type == event.EventLeaveMeeting {
				return // force a reconnect after the leave
			}
		}
	})

	controller := NewController(endpoint, "alice", zap.NewNop())
	defer controller.Close()

	require.Eventually(t, controller.IsConnected, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, controller.JoinMeeting("m1"))
	require.NoError(t, controller.JoinMeeting("m2"))
	require.NoError(t, controller.LeaveMeeting("m1"))

	// drain join m1, join m2, leave m1
	for i := 0; i < 3; i++ {
		select {
		case <-frames:
		case <-time.After(2 * time.Second):
			t.Fatal("expected frame never arrived")
		}
	}

	// the replacement connection replays only m2
	select {
	case ev := <-frames:
		require.Equal(t, event.EventJoinMeeting, ev.Type)
		var join event.JoinMeetingPayload
		require.NoError(t, json.Unmarshal(ev.Payload, &join))
		assert.Equal(t, "m2", join.MeetingID)
	case <-time.After(3 * time.Second):
		t.Fatal("replayed join never arrived")
	}
}
