package event

import (
	"encoding/json"
	"time"
)

// Inbound event types - Client to Server
const (
	// EventPresence - binds a user identity to the session and upserts presence
	EventPresence = "presence"

	// EventUser - a chat/transcript line from a participant
	EventUser = "user"

	// EventJoinMeeting - subscribe the session to a meeting room
	EventJoinMeeting = "join_meeting"

	// EventLeaveMeeting - unsubscribe the session from a meeting room
	EventLeaveMeeting = "leave_meeting"
)

// Outbound event types - Server to Client
const (
	EventConnectionStatus = "connection_status"
	EventMeetingUpdate    = "meeting_update"
	EventParticipants     = "participants"
	EventNotification     = "notification"
	EventTranscriptUpdate = "transcript_update"
	EventAIInsight        = "ai_insight"
	EventSystemUpdate     = "system_update"
	EventRecordingStatus  = "recording_status"

	// EventMessage carries a transcript line (role "user" or "ai") back to the room
	EventMessage = "message"

	// EventSuggestions carries follow-up suggestions derived from the last message
	EventSuggestions = "suggestions"
)

// Meeting update sub-kinds, carried in MeetingUpdatePayload.Kind
const (
	UpdateParticipantJoined = "participant_joined"
	UpdateParticipantLeft   = "participant_left"
	UpdateStatusChanged     = "status_changed"
	UpdateRecordingStarted  = "recording_started"
	UpdateRecordingStopped  = "recording_stopped"
)

// SSE stream event names, one per polled data category
const (
	StreamAnalytics   = "analytics"
	StreamSummary     = "summary"
	StreamSentiment   = "sentiment"
	StreamTopics      = "topics"
	StreamActionItems = "action_items"
	StreamTimeline    = "timeline"
	StreamAgenda      = "agenda"
	StreamRoles       = "roles"
	StreamAudit       = "audit"
	StreamFeedback    = "feedback"
	StreamHeartbeat   = "heartbeat"
	StreamError       = "error"
)

// WsEvent is the wire envelope exchanged over the socket. Every inbound
// frame must parse to a known Type or it is dropped with no reply.
type WsEvent struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// NewEvent builds an outbound envelope with the payload already marshalled.
// The caller is trusted to pass marshallable types.
func NewEvent(eventType string, payload any) WsEvent {
	raw, _ := json.Marshal(payload)
	return WsEvent{
		Type:      eventType,
		Payload:   raw,
		Timestamp: time.Now().UnixMilli(),
	}
}

// PresencePayload binds a user identity to the session
type PresencePayload struct {
	UserID    string `json:"userId"`
	MeetingID string `json:"meetingId"`
}

// UserMessagePayload is a transcript line sent by a participant
type UserMessagePayload struct {
	MeetingID string `json:"meetingId"`
	User      string `json:"user"`
	Text      string `json:"text"`
}

// JoinMeetingPayload subscribes/unsubscribes the session to a room
type JoinMeetingPayload struct {
	MeetingID string `json:"meetingId"`
}

// MessagePayload is broadcast for every transcript line, user or AI authored
type MessagePayload struct {
	MeetingID string `json:"meetingId"`
	Role      string `json:"role"` // "user" or "ai"
	User      string `json:"user,omitempty"`
	Text      string `json:"text"`
}

// SuggestionsPayload carries follow-up suggestions for the room
type SuggestionsPayload struct {
	MeetingID   string   `json:"meetingId"`
	Suggestions []string `json:"suggestions"`
}

// ParticipantsPayload is the authoritative full membership list for a room,
// ordered by join time. Always the full list, never a delta.
type ParticipantsPayload struct {
	MeetingID    string   `json:"meetingId"`
	Participants []string `json:"participants"`
}

// MeetingUpdatePayload notifies the room of a meeting-level state change
type MeetingUpdatePayload struct {
	MeetingID string `json:"meetingId"`
	Kind      string `json:"kind"`
	UserID    string `json:"userId,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// RecordingStatusPayload reports recording start/stop for a room
type RecordingStatusPayload struct {
	MeetingID string `json:"meetingId"`
	Recording bool   `json:"recording"`
	StartedBy string `json:"startedBy,omitempty"`
}

// ConnectionStatusPayload is sent once right after the handshake
type ConnectionStatusPayload struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
}
