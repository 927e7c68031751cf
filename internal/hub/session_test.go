package hub

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Meetpulse/internal/event"
	"Meetpulse/internal/model"
)

func TestHandleUserRoundTrip(t *testing.T) {
	h, store, _ := newTestHub(t, true)

	sender := newTestClient("sender")
	observer := newTestClient("observer")
	outsider := newTestClient("outsider")

	h.Subscribe(sender, "m1")
	h.Subscribe(observer, "m1")
	h.Subscribe(outsider, "m2")

	h.handleEvent(event.NewEvent(event.EventUser, event.UserMessagePayload{
		MeetingID: "m1",
		User:      "alice",
		Text:      "what did we decide?",
	}), sender)

	// user message, transcript row, ai reply, suggestions - in order
	evs := drainEvents(t, observer, 4)
	assert.Equal(t, event.EventMessage, evs[0].Type)
	assert.Equal(t, event.EventTranscriptUpdate, evs[1].Type)
	assert.Equal(t, event.EventMessage, evs[2].Type)
	assert.Equal(t, event.EventSuggestions, evs[3].Type)

	var userMsg event.MessagePayload
	require.NoError(t, json.Unmarshal(evs[0].Payload, &userMsg))
	assert.Equal(t, model.RoleUser, userMsg.Role)
	assert.Equal(t, "alice", userMsg.User)
	assert.Equal(t, "what did we decide?", userMsg.Text)

	var aiMsg event.MessagePayload
	require.NoError(t, json.Unmarshal(evs[2].Payload, &aiMsg))
	assert.Equal(t, model.RoleAI, aiMsg.Role)
	assert.Equal(t, "canned reply", aiMsg.Text)

	var sugg event.SuggestionsPayload
	require.NoError(t, json.Unmarshal(evs[3].Payload, &sugg))
	assert.Equal(t, []string{"suggestion one"}, sugg.Suggestions)

	// both the user line and the ai reply were persisted
	rows := store.inserted()
	require.Len(t, rows, 2)
	assert.Equal(t, model.RoleUser, rows[0].Role)
	assert.Equal(t, "chat", rows[0].Source)
	assert.Equal(t, model.RoleAI, rows[1].Role)

	// the other room saw nothing
	assertNoEvent(t, outsider)
}

func TestHandleUserPersistenceFailureStillBroadcasts(t *testing.T) {
	h, store, _ := newTestHub(t, true)
	store.err = errors.New("mongo down")

	sender := newTestClient("sender")
	h.Subscribe(sender, "m1")

	h.handleEvent(event.NewEvent(event.EventUser, event.UserMessagePayload{
		MeetingID: "m1",
		User:      "alice",
		Text:      "hello",
	}), sender)

	// broadcast flow survives the failed insert
	evs := drainEvents(t, sender, 4)
	assert.Equal(t, event.EventMessage, evs[0].Type)
	assert.Empty(t, store.inserted())
}

func TestHandleUserDropsInvalidPayloads(t *testing.T) {
	h, store, _ := newTestHub(t, true)

	c := newTestClient("a")
	h.Subscribe(c, "m1")

	h.handleEvent(event.NewEvent(event.EventUser, event.UserMessagePayload{User: "alice", Text: "no meeting"}), c)
	h.handleEvent(event.NewEvent(event.EventUser, event.UserMessagePayload{MeetingID: "m1", User: "alice"}), c)
	h.handleEvent(event.WsEvent{Type: event.EventUser, Payload: []byte(`{"broken`)}, c)

	assertNoEvent(t, c)
	assert.Empty(t, store.inserted())
}

func TestHandlePresenceBindsAndBroadcasts(t *testing.T) {
	h, _, _ := newTestHub(t, true)

	c := newTestClient("s1")
	h.Subscribe(c, "m1")

	h.handleEvent(event.NewEvent(event.EventPresence, event.PresencePayload{
		UserID:    "alice",
		MeetingID: "m1",
	}), c)

	assert.Equal(t, "alice", c.UserID())

	evs := drainEvents(t, c, 2)
	assert.Equal(t, event.EventParticipants, evs[0].Type)
	assert.Equal(t, event.EventMeetingUpdate, evs[1].Type)

	var parts event.ParticipantsPayload
	require.NoError(t, json.Unmarshal(evs[0].Payload, &parts))
	assert.Equal(t, []string{"alice"}, parts.Participants)

	var update event.MeetingUpdatePayload
	require.NoError(t, json.Unmarshal(evs[1].Payload, &update))
	assert.Equal(t, event.UpdateParticipantJoined, update.Kind)
}

func TestHandlePresenceNeverCreatesMembership(t *testing.T) {
	h, _, _ := newTestHub(t, true)

	c := newTestClient("s1")
	h.Subscribe(c, "m1")

	// presence for a room the session never joined is dropped
	h.handleEvent(event.NewEvent(event.EventPresence, event.PresencePayload{
		UserID:    "alice",
		MeetingID: "m2",
	}), c)

	assertNoEvent(t, c)
	assert.False(t, c.InRoom("m2"))
	assert.Equal(t, []string{}, h.Presence().Participants("m2"))
}

func TestHandlePresenceSecondIdentityDropped(t *testing.T) {
	h, _, _ := newTestHub(t, true)

	c := newTestClient("s1")
	h.Subscribe(c, "m1")

	h.handleEvent(event.NewEvent(event.EventPresence, event.PresencePayload{UserID: "alice", MeetingID: "m1"}), c)
	drainEvents(t, c, 2)

	h.handleEvent(event.NewEvent(event.EventPresence, event.PresencePayload{UserID: "mallory", MeetingID: "m1"}), c)

	assertNoEvent(t, c)
	assert.Equal(t, "alice", c.UserID())
	assert.Equal(t, []string{"alice"}, h.Presence().Participants("m1"))
}

func TestHandlePresenceAnonymousDisabled(t *testing.T) {
	h, _, _ := newTestHub(t, false)

	// no handshake identity: presence cannot bind one
	c := newTestClient("s1")
	h.Subscribe(c, "m1")

	h.handleEvent(event.NewEvent(event.EventPresence, event.PresencePayload{UserID: "alice", MeetingID: "m1"}), c)

	assertNoEvent(t, c)
	assert.Equal(t, "", c.UserID())

	// handshake-bound identity still works
	bound := newTestClient("s2")
	bound.userID = "bob"
	h.Subscribe(bound, "m1")

	h.handleEvent(event.NewEvent(event.EventPresence, event.PresencePayload{UserID: "bob", MeetingID: "m1"}), bound)
	evs := drainEvents(t, bound, 2)
	assert.Equal(t, event.EventParticipants, evs[0].Type)
}

func TestHandleJoinSendsCurrentParticipants(t *testing.T) {
	h, _, _ := newTestHub(t, true)

	first := newTestClient("s1")
	h.Subscribe(first, "m1")
	h.handleEvent(event.NewEvent(event.EventPresence, event.PresencePayload{UserID: "alice", MeetingID: "m1"}), first)
	drainEvents(t, first, 2)

	joiner := newTestClient("s2")
	h.handleEvent(event.NewEvent(event.EventJoinMeeting, event.JoinMeetingPayload{MeetingID: "m1"}), joiner)

	require.True(t, joiner.InRoom("m1"))
	evs := drainEvents(t, joiner, 1)
	assert.Equal(t, event.EventParticipants, evs[0].Type)

	var parts event.ParticipantsPayload
	require.NoError(t, json.Unmarshal(evs[0].Payload, &parts))
	assert.Equal(t, []string{"alice"}, parts.Participants)
}

func TestHandleLeaveRemovesPresenceAndRoom(t *testing.T) {
	h, _, _ := newTestHub(t, true)

	leaver := newTestClient("s1")
	observer := newTestClient("s2")
	h.Subscribe(leaver, "m1")
	h.Subscribe(observer, "m1")

	h.handleEvent(event.NewEvent(event.EventPresence, event.PresencePayload{UserID: "alice", MeetingID: "m1"}), leaver)
	drainEvents(t, leaver, 2)
	drainEvents(t, observer, 2)

	h.handleEvent(event.NewEvent(event.EventLeaveMeeting, event.JoinMeetingPayload{MeetingID: "m1"}), leaver)

	assert.False(t, leaver.InRoom("m1"))

	evs := drainEvents(t, observer, 2)
	assert.Equal(t, event.EventParticipants, evs[0].Type)
	var parts event.ParticipantsPayload
	require.NoError(t, json.Unmarshal(evs[0].Payload, &parts))
	assert.Equal(t, []string{}, parts.Participants)

	var update event.MeetingUpdatePayload
	require.NoError(t, json.Unmarshal(evs[1].Payload, &update))
	assert.Equal(t, event.UpdateParticipantLeft, update.Kind)
}

func TestHandleBinaryBroadcastsTranscription(t *testing.T) {
	h, store, _ := newTestHub(t, true)

	speaker := newTestClient("s1")
	speaker.userID = "alice"
	observer := newTestClient("s2")
	h.Subscribe(speaker, "m1")
	h.Subscribe(observer, "m1")

	h.handleBinary([]byte{0x01, 0x02}, speaker)

	evs := drainEvents(t, observer, 1)
	assert.Equal(t, event.EventMessage, evs[0].Type)

	var msg event.MessagePayload
	require.NoError(t, json.Unmarshal(evs[0].Payload, &msg))
	assert.Equal(t, "spoken words", msg.Text)
	assert.Equal(t, "alice", msg.User)

	rows := store.inserted()
	require.Len(t, rows, 1)
	assert.Equal(t, "audio", rows[0].Source)
}

func TestHandleBinaryFailedTranscriptionSkipped(t *testing.T) {
	h, store, insights := newTestHub(t, true)
	insights.transcribeOK = false

	speaker := newTestClient("s1")
	speaker.userID = "alice"
	h.Subscribe(speaker, "m1")

	h.handleBinary([]byte{0x01}, speaker)

	assertNoEvent(t, speaker)
	assert.Empty(t, store.inserted())
}

// An abrupt disconnect goes through removeClient: the session leaves its
// rooms, its presence entries drop, and remaining participants see the
// updated list plus a participant_left update.
func TestRemoveClientBroadcastsDeparture(t *testing.T) {
	h, _, _ := newTestHub(t, true)

	leaver := newTestClient("s1")
	observer := newTestClient("s2")
	h.Subscribe(leaver, "m1")
	h.Subscribe(observer, "m1")

	h.handleEvent(event.NewEvent(event.EventPresence, event.PresencePayload{UserID: "alice", MeetingID: "m1"}), leaver)
	drainEvents(t, leaver, 2)
	drainEvents(t, observer, 2)

	h.removeClient(leaver)

	evs := drainEvents(t, observer, 2)
	assert.Equal(t, event.EventParticipants, evs[0].Type)
	var parts event.ParticipantsPayload
	require.NoError(t, json.Unmarshal(evs[0].Payload, &parts))
	assert.Equal(t, []string{}, parts.Participants)

	assert.Equal(t, event.EventMeetingUpdate, evs[1].Type)
	var update event.MeetingUpdatePayload
	require.NoError(t, json.Unmarshal(evs[1].Payload, &update))
	assert.Equal(t, event.UpdateParticipantLeft, update.Kind)
	assert.Equal(t, "alice", update.UserID)

	assert.True(t, leaver.IsClosed())
	assert.False(t, leaver.InRoom("m1"))
	assert.Equal(t, []string{}, h.Presence().Participants("m1"))
}

func TestHandleEventUnknownTypeDropped(t *testing.T) {
	h, _, _ := newTestHub(t, true)

	c := newTestClient("s1")
	h.Subscribe(c, "m1")

	h.handleEvent(event.WsEvent{Type: "totally_unknown"}, c)
	assertNoEvent(t, c)
}
