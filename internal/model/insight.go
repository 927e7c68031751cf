package model

import "time"

// Insight kinds
const (
	InsightSummary     = "summary"
	InsightSentiment   = "sentiment"
	InsightTopics      = "topics"
	InsightActionItems = "action_items"
)

// SentimentResult is the normalized output of the sentiment operation
type SentimentResult struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// TopicsResult is the normalized output of the topic classification operation
type TopicsResult struct {
	Labels []string  `json:"labels"`
	Scores []float64 `json:"scores"`
}

// InsightEvent is a derived artifact forwarded to room subscribers.
// Immutable once constructed; the pipeline never persists it.
type InsightEvent struct {
	MeetingID  string    `json:"meetingId"`
	Kind       string    `json:"kind"`
	Payload    any       `json:"payload"`
	ProducedAt time.Time `json:"producedAt"`
}
