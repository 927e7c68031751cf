package hub

import (
	"sync"
	"time"
)

// PresenceEntry is the live record of a participant's membership in a room.
type PresenceEntry struct {
	UserID     string
	SessionID  string
	LastActive time.Time
}

// PresenceTracker maintains the set of present participants per meeting.
// Entries are kept in join order because recency of join is meaningful for
// UI ordering. At most one entry exists per (meeting, user): a reconnect
// replaces the prior entry in place rather than duplicating it.
//
// All access is mutex-guarded; the hub's worker pool mutates this from
// multiple goroutines.
type PresenceTracker struct {
	mu       sync.Mutex
	meetings map[string][]*PresenceEntry
}

func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{
		meetings: make(map[string][]*PresenceEntry),
	}
}

// RecordActivity upserts the presence entry for (meetingID, userID) and
// returns the current membership as an ordered list of user IDs. Duplicate
// calls are idempotent with respect to membership.
func (p *PresenceTracker) RecordActivity(meetingID, userID, sessionID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	entries := p.meetings[meetingID]
	for _, e := range entries {
		if e.UserID == userID {
			// reconnect or repeated presence: replace, keep position
			e.SessionID = sessionID
			e.LastActive = time.Now()
			return memberList(entries)
		}
	}

	entries = append(entries, &PresenceEntry{
		UserID:     userID,
		SessionID:  sessionID,
		LastActive: time.Now(),
	})
	p.meetings[meetingID] = entries
	return memberList(entries)
}

// RemoveActivity deletes the entry for (meetingID, userID) and returns the
// updated membership list.
func (p *PresenceTracker) RemoveActivity(meetingID, userID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	entries := p.meetings[meetingID]
	for i, e := range entries {
		if e.UserID == userID {
			entries = append(entries[:i], entries[i+1:]...)
			break
		}
	}

	if len(entries) == 0 {
		delete(p.meetings, meetingID)
		return []string{}
	}
	p.meetings[meetingID] = entries
	return memberList(entries)
}

// RemoveSession drops every presence entry held by the given session and
// returns the updated membership list for each affected meeting.
func (p *PresenceTracker) RemoveSession(sessionID string) map[string][]string {
	p.mu.Lock()
	defer p.mu.Unlock()

	affected := make(map[string][]string)
	for meetingID, entries := range p.meetings {
		kept := entries[:0]
		removed := false
		for _, e := range entries {
			if e.SessionID == sessionID {
				removed = true
				continue
			}
			kept = append(kept, e)
		}
		if !removed {
			continue
		}

		if len(kept) == 0 {
			delete(p.meetings, meetingID)
			affected[meetingID] = []string{}
		} else {
			p.meetings[meetingID] = kept
			affected[meetingID] = memberList(kept)
		}
	}
	return affected
}

// Participants returns the current ordered membership list for a meeting.
func (p *PresenceTracker) Participants(meetingID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return memberList(p.meetings[meetingID])
}

// Meetings returns the IDs of all meetings with at least one entry.
func (p *PresenceTracker) Meetings() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]string, 0, len(p.meetings))
	for id := range p.meetings {
		ids = append(ids, id)
	}
	return ids
}

func memberList(entries []*PresenceEntry) []string {
	members := make([]string, 0, len(entries))
	for _, e := range entries {
		members = append(members, e.UserID)
	}
	return members
}
