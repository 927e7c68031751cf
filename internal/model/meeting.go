package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Meeting represents a meeting document in MongoDB
type Meeting struct {
	ID           primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	MeetingID    string             `json:"meetingId" bson:"meeting_id"`
	Title        string             `json:"title" bson:"title"`
	HostID       string             `json:"hostId" bson:"host_id"`
	Status       string             `json:"status" bson:"status"` // "scheduled", "live", "ended"
	Participants []string           `json:"participants" bson:"participants"`
	StartedAt    *time.Time         `json:"startedAt" bson:"started_at"`
	EndedAt      *time.Time         `json:"endedAt" bson:"ended_at"`
	IsActive     bool               `json:"isActive" bson:"is_active"`
	CreatedAt    time.Time          `json:"createdAt" bson:"created_at"`
	UpdatedAt    time.Time          `json:"updatedAt" bson:"updated_at"`
}

// AgendaItem is one agenda entry for a meeting
type AgendaItem struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	MeetingID string             `json:"meetingId" bson:"meeting_id"`
	Order     int                `json:"order" bson:"order"`
	Title     string             `json:"title" bson:"title"`
	Notes     string             `json:"notes" bson:"notes"`
	Completed bool               `json:"completed" bson:"completed"`
	UpdatedAt time.Time          `json:"updatedAt" bson:"updated_at"`
}

// MeetingRole assigns a participant a role within a meeting
type MeetingRole struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	MeetingID string             `json:"meetingId" bson:"meeting_id"`
	UserID    string             `json:"userId" bson:"user_id"`
	Role      string             `json:"role" bson:"role"` // "host", "presenter", "notetaker", "attendee"
	UpdatedAt time.Time          `json:"updatedAt" bson:"updated_at"`
}

// AuditEntry records a meeting-level action for the audit log
type AuditEntry struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	MeetingID string             `json:"meetingId" bson:"meeting_id"`
	ActorID   string             `json:"actorId" bson:"actor_id"`
	Action    string             `json:"action" bson:"action"`
	Detail    string             `json:"detail" bson:"detail"`
	CreatedAt time.Time          `json:"createdAt" bson:"created_at"`
}

// FeedbackEntry is participant feedback attached to a meeting
type FeedbackEntry struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	MeetingID string             `json:"meetingId" bson:"meeting_id"`
	UserID    string             `json:"userId" bson:"user_id"`
	Rating    int                `json:"rating" bson:"rating"`
	Comment   string             `json:"comment" bson:"comment"`
	CreatedAt time.Time          `json:"createdAt" bson:"created_at"`
}

// TimelineEntry is a notable moment in the meeting timeline
type TimelineEntry struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	MeetingID string             `json:"meetingId" bson:"meeting_id"`
	Kind      string             `json:"kind" bson:"kind"`
	Label     string             `json:"label" bson:"label"`
	At        time.Time          `json:"at" bson:"at"`
}
