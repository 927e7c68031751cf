package poller

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const subscriberBuffer = 64

// Subscription is one SSE consumer's handle on a meeting's change feed.
type Subscription struct {
	C chan Event

	meetingID string
	closeOnce sync.Once
	manager   *Manager
}

// Close detaches the subscription. When the last subscription for a
// meeting closes, the polling loop for that meeting is cancelled and its
// snapshots discarded; no timers leak.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.manager.release(s)
	})
}

type detectorRef struct {
	detector *Detector
	cancel   context.CancelFunc
	refs     int
}

// Manager owns one Detector per meeting with at least one subscriber,
// starting loops on first subscribe and tearing them down on last close.
type Manager struct {
	interval      time.Duration
	heartbeatIdle time.Duration
	window        int

	transcripts TranscriptSource
	meetingData MeetingData
	insights    Insights
	broadcaster Broadcaster
	cache       SnapshotCache
	logger      *zap.Logger

	mu        sync.Mutex
	detectors map[string]*detectorRef
}

func NewManager(
	transcripts TranscriptSource,
	meetingData MeetingData,
	insights Insights,
	broadcaster Broadcaster,
	cache SnapshotCache,
	logger *zap.Logger,
	interval, heartbeatIdle time.Duration,
	window int,
) *Manager {
	return &Manager{
		interval:      interval,
		heartbeatIdle: heartbeatIdle,
		window:        window,
		transcripts:   transcripts,
		meetingData:   meetingData,
		insights:      insights,
		broadcaster:   broadcaster,
		cache:         cache,
		logger:        logger,
		detectors:     make(map[string]*detectorRef),
	}
}

// Subscribe attaches a new consumer to the meeting's change feed,
// starting the polling loop if this is the first subscriber.
func (m *Manager) Subscribe(meetingID string) *Subscription {
	sub := &Subscription{
		C:         make(chan Event, subscriberBuffer),
		meetingID: meetingID,
		manager:   m,
	}

	m.mu.Lock()
	ref, ok := m.detectors[meetingID]
	if !ok {
		detector := newDetector(meetingID, m)
		ctx, cancel := context.WithCancel(context.Background())
		ref = &detectorRef{detector: detector, cancel: cancel}
		m.detectors[meetingID] = ref
		go detector.run(ctx)
		m.logger.Info("polling started", zap.String("meeting_id", meetingID))
	}
	ref.refs++
	m.mu.Unlock()

	ref.detector.addSubscriber(sub)
	return sub
}

func (m *Manager) release(sub *Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ref, ok := m.detectors[sub.meetingID]
	if !ok {
		return
	}

	ref.detector.removeSubscriber(sub)
	ref.refs--
	if ref.refs <= 0 {
		ref.cancel()
		delete(m.detectors, sub.meetingID)
		m.logger.Info("polling stopped", zap.String("meeting_id", sub.meetingID))
	}
}

// ActiveMeetings returns the meetings currently being polled.
func (m *Manager) ActiveMeetings() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.detectors))
	for id := range m.detectors {
		ids = append(ids, id)
	}
	return ids
}

// Stop cancels every running polling loop.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, ref := range m.detectors {
		ref.cancel()
		delete(m.detectors, id)
	}
}
