package hub

import (
	"Meetpulse/internal/model"
)

// PollerSource reports which meetings currently have a change-detection
// loop running. Implemented by the poller manager.
type PollerSource interface {
	ActiveMeetings() []string
}

// MonitorService provides methods to gather hub statistics
type MonitorService struct {
	hub     *Hub
	pollers PollerSource
}

// NewMonitorService creates a new monitor service
func NewMonitorService(hub *Hub, pollers PollerSource) *MonitorService {
	return &MonitorService{hub: hub, pollers: pollers}
}

// GetStats gathers and returns all hub statistics
func (ms *MonitorService) GetStats() model.MonitorResponse {
	connectionStats := ms.getConnectionStats()
	roomStats := ms.getRoomStats()
	pollerStats := ms.getPollerStats()
	sessions := ms.getSessionList()

	status := "healthy"
	if connectionStats.TotalConnected == 0 {
		status = "idle"
	}

	return model.MonitorResponse{
		Status:      status,
		Connections: connectionStats,
		Rooms:       roomStats,
		Pollers:     pollerStats,
		Sessions:    sessions,
	}
}

func (ms *MonitorService) getConnectionStats() model.ConnectionStats {
	ms.hub.sessionsMu.RLock()
	defer ms.hub.sessionsMu.RUnlock()

	stats := model.ConnectionStats{
		TotalConnected: len(ms.hub.sessions),
	}
	for _, client := range ms.hub.sessions {
		if client.UserID() != "" {
			stats.TotalBound++
		}
	}
	return stats
}

func (ms *MonitorService) getRoomStats() model.RoomStats {
	stats := model.RoomStats{
		RoomDetails: make([]model.RoomInfo, 0),
	}

	for _, bucket := range ms.hub.shards {
		bucket.RLock()
		for meetingID, room := range bucket.rooms {
			stats.RoomDetails = append(stats.RoomDetails, model.RoomInfo{
				MeetingID:    meetingID,
				Subscribers:  len(room),
				Participants: ms.hub.presence.Participants(meetingID),
			})
			stats.TotalRooms++
		}
		bucket.RUnlock()
	}

	return stats
}

func (ms *MonitorService) getPollerStats() model.PollerStats {
	stats := model.PollerStats{MeetingIDs: make([]string, 0)}
	if ms.pollers == nil {
		return stats
	}

	stats.MeetingIDs = ms.pollers.ActiveMeetings()
	stats.ActivePollers = len(stats.MeetingIDs)
	return stats
}

func (ms *MonitorService) getSessionList() []model.SessionInfo {
	ms.hub.sessionsMu.RLock()
	defer ms.hub.sessionsMu.RUnlock()

	sessions := make([]model.SessionInfo, 0, len(ms.hub.sessions))
	for _, client := range ms.hub.sessions {
		sessions = append(sessions, model.SessionInfo{
			SessionID: client.ID,
			UserID:    client.UserID(),
			Rooms:     client.Rooms(),
		})
	}
	return sessions
}
