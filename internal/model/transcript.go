package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Speaker roles on a transcript row
const (
	RoleUser = "user"
	RoleAI   = "ai"
)

// TranscriptRow represents a single transcript line in MongoDB. The pipeline
// only ever appends rows; it never updates or deletes them.
type TranscriptRow struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	RowID     string             `json:"rowId" bson:"row_id"`
	MeetingID string             `json:"meetingId" bson:"meeting_id"`
	Speaker   string             `json:"speaker" bson:"speaker"`
	Role      string             `json:"role" bson:"role"`
	Text      string             `json:"text" bson:"text"`
	Source    string             `json:"source" bson:"source"` // "chat" or "audio"
	CreatedAt time.Time          `json:"createdAt" bson:"created_at"`
}

// TranscriptAnalytics is the aggregate recomputed by the polling loop when
// the row count for a meeting changes.
type TranscriptAnalytics struct {
	MeetingID     string         `json:"meetingId"`
	TotalRows     int64          `json:"totalRows"`
	SpeakerCounts map[string]int `json:"speakerCounts"`
	LastActivity  time.Time      `json:"lastActivity"`
}
