package hub

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"Meetpulse/internal/event"
	"Meetpulse/internal/model"
)

// handleEvent dispatches one inbound frame by its type discriminator.
// Unknown types and malformed payloads are dropped with no reply, so the
// socket never becomes an error oracle for unauthenticated peers.
func (h *Hub) handleEvent(ev event.WsEvent, c *Client) {
	c.Touch()

	switch ev.Type {
	case event.EventPresence:
		h.handlePresence(ev, c)
	case event.EventUser:
		h.handleUser(ev, c)
	case event.EventJoinMeeting:
		h.handleJoin(ev, c)
	case event.EventLeaveMeeting:
		h.handleLeave(ev, c)
	default:
		h.logger.Debug("dropping unknown event type",
			zap.String("type", ev.Type),
			zap.String("session_id", c.ID),
		)
	}
}

func (h *Hub) handlePresence(ev event.WsEvent, c *Client) {
	var payload event.PresencePayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil || payload.UserID == "" {
		return
	}

	if !h.allowAnonymous && c.UserID() == "" {
		// identity must come from the handshake when anonymous presence
		// is disabled
		h.logger.Debug("dropping presence from unauthenticated session",
			zap.String("session_id", c.ID),
		)
		return
	}

	if !c.BindIdentity(payload.UserID) {
		// one concurrent identity per connection
		h.logger.Debug("dropping presence claiming a second identity",
			zap.String("session_id", c.ID),
			zap.String("claimed", payload.UserID),
		)
		return
	}

	targets := c.Rooms()
	if payload.MeetingID != "" {
		if !c.InRoom(payload.MeetingID) {
			// presence never creates room membership
			return
		}
		targets = []string{payload.MeetingID}
	}

	for _, meetingID := range targets {
		participants := h.presence.RecordActivity(meetingID, payload.UserID, c.ID)

		// always the authoritative full list, even when membership is unchanged
		h.Publish(meetingID, event.NewEvent(event.EventParticipants, event.ParticipantsPayload{
			MeetingID:    meetingID,
			Participants: participants,
		}))
		h.Publish(meetingID, event.NewEvent(event.EventMeetingUpdate, event.MeetingUpdatePayload{
			MeetingID: meetingID,
			Kind:      event.UpdateParticipantJoined,
			UserID:    payload.UserID,
		}))
	}
}

func (h *Hub) handleUser(ev event.WsEvent, c *Client) {
	var payload event.UserMessagePayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return
	}
	if payload.MeetingID == "" || payload.Text == "" {
		return
	}
	if !h.allowAnonymous && c.UserID() == "" {
		return
	}

	row := &model.TranscriptRow{
		RowID:     uuid.New().String(),
		MeetingID: payload.MeetingID,
		Speaker:   payload.User,
		Role:      model.RoleUser,
		Text:      payload.Text,
		Source:    "chat",
		CreatedAt: time.Now(),
	}

	// Persistence failure degrades to broadcast-only; the session stays up.
	if _, err := h.transcripts.InsertRow(h.ctx, row); err != nil {
		h.logger.Error("failed to persist transcript row",
			zap.String("meeting_id", payload.MeetingID),
			zap.Error(err),
		)
	}

	h.Publish(payload.MeetingID, event.NewEvent(event.EventMessage, event.MessagePayload{
		MeetingID: payload.MeetingID,
		Role:      model.RoleUser,
		User:      payload.User,
		Text:      payload.Text,
	}))
	h.Publish(payload.MeetingID, event.NewEvent(event.EventTranscriptUpdate, row))

	// AI reply: fallback-total, never errors, never disconnects the peer
	reply := h.insights.Reply(h.ctx, payload.Text)
	aiRow := &model.TranscriptRow{
		RowID:     uuid.New().String(),
		MeetingID: payload.MeetingID,
		Speaker:   "assistant",
		Role:      model.RoleAI,
		Text:      reply,
		Source:    "chat",
		CreatedAt: time.Now(),
	}
	if _, err := h.transcripts.InsertRow(h.ctx, aiRow); err != nil {
		h.logger.Error("failed to persist ai transcript row",
			zap.String("meeting_id", payload.MeetingID),
			zap.Error(err),
		)
	}

	h.Publish(payload.MeetingID, event.NewEvent(event.EventMessage, event.MessagePayload{
		MeetingID: payload.MeetingID,
		Role:      model.RoleAI,
		User:      "assistant",
		Text:      reply,
	}))

	suggestions := h.insights.Suggestions(h.ctx, row.RowID, payload.Text)
	h.Publish(payload.MeetingID, event.NewEvent(event.EventSuggestions, event.SuggestionsPayload{
		MeetingID:   payload.MeetingID,
		Suggestions: suggestions,
	}))
}

// handleBinary routes a raw audio frame through speech-to-text and
// broadcasts the transcription to every room the session joined. A failed
// transcription is skipped silently.
func (h *Hub) handleBinary(audio []byte, c *Client) {
	c.Touch()

	if !h.allowAnonymous && c.UserID() == "" {
		return
	}

	text, ok := h.insights.Transcribe(h.ctx, audio)
	if !ok {
		return
	}

	speaker := c.UserID()
	if speaker == "" {
		speaker = "unknown"
	}

	for _, meetingID := range c.Rooms() {
		row := &model.TranscriptRow{
			RowID:     uuid.New().String(),
			MeetingID: meetingID,
			Speaker:   speaker,
			Role:      model.RoleUser,
			Text:      text,
			Source:    "audio",
			CreatedAt: time.Now(),
		}
		if _, err := h.transcripts.InsertRow(h.ctx, row); err != nil {
			h.logger.Error("failed to persist audio transcript row",
				zap.String("meeting_id", meetingID),
				zap.Error(err),
			)
		}

		h.Publish(meetingID, event.NewEvent(event.EventMessage, event.MessagePayload{
			MeetingID: meetingID,
			Role:      model.RoleUser,
			User:      speaker,
			Text:      text,
		}))
	}
}

func (h *Hub) handleJoin(ev event.WsEvent, c *Client) {
	var payload event.JoinMeetingPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil || payload.MeetingID == "" {
		return
	}

	h.Subscribe(c, payload.MeetingID)

	// let the joiner know current room presence right away
	c.Send(event.NewEvent(event.EventParticipants, event.ParticipantsPayload{
		MeetingID:    payload.MeetingID,
		Participants: h.presence.Participants(payload.MeetingID),
	}))
}

func (h *Hub) handleLeave(ev event.WsEvent, c *Client) {
	var payload event.JoinMeetingPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil || payload.MeetingID == "" {
		return
	}

	if userID := c.UserID(); userID != "" {
		participants := h.presence.RemoveActivity(payload.MeetingID, userID)
		h.Publish(payload.MeetingID, event.NewEvent(event.EventParticipants, event.ParticipantsPayload{
			MeetingID:    payload.MeetingID,
			Participants: participants,
		}))
		h.Publish(payload.MeetingID, event.NewEvent(event.EventMeetingUpdate, event.MeetingUpdatePayload{
			MeetingID: payload.MeetingID,
			Kind:      event.UpdateParticipantLeft,
			UserID:    userID,
		}))
	}

	h.Unsubscribe(c, payload.MeetingID)
}
