package model

// -----------------------------------------------------------------
// Monitor API Response Models
// -----------------------------------------------------------------

// MonitorResponse is the main response for the monitor API
type MonitorResponse struct {
	Status      string          `json:"status"` // "healthy", "idle"
	Connections ConnectionStats `json:"connections"`
	Rooms       RoomStats       `json:"rooms"`
	Pollers     PollerStats     `json:"pollers"`
	Sessions    []SessionInfo   `json:"sessions"`
}

// ConnectionStats holds connection-related statistics
type ConnectionStats struct {
	TotalConnected int `json:"totalConnected"` // Sessions currently connected
	TotalBound     int `json:"totalBound"`     // Sessions with a bound user identity
}

// RoomStats holds room statistics
type RoomStats struct {
	TotalRooms  int        `json:"totalRooms"`
	RoomDetails []RoomInfo `json:"roomDetails"`
}

// RoomInfo contains information about a single room
type RoomInfo struct {
	MeetingID    string   `json:"meetingId"`
	Subscribers  int      `json:"subscribers"`  // Connected sessions in the room
	Participants []string `json:"participants"` // Users with a live presence entry
}

// PollerStats reports the change-detection loops currently running
type PollerStats struct {
	ActivePollers int      `json:"activePollers"`
	MeetingIDs    []string `json:"meetingIds"`
}

// SessionInfo contains information about a connected session
type SessionInfo struct {
	SessionID string   `json:"sessionId"`
	UserID    string   `json:"userId,omitempty"` // Empty until presence binds an identity
	Rooms     []string `json:"rooms"`
}
