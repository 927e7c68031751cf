package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"Meetpulse/internal/event"
	"Meetpulse/internal/model"
)

type fakeTranscripts struct {
	mu       sync.Mutex
	count    int64
	countErr error
	rows     []model.TranscriptRow
	total    int64
}

func (f *fakeTranscripts) CountRows(ctx context.Context, meetingID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count, f.countErr
}

func (f *fakeTranscripts) LastWindow(ctx context.Context, meetingID string, n int) ([]model.TranscriptRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows, nil
}

func (f *fakeTranscripts) Analytics(ctx context.Context, meetingID string) (*model.TranscriptAnalytics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &model.TranscriptAnalytics{MeetingID: meetingID, TotalRows: f.total}, nil
}

func (f *fakeTranscripts) set(count, total int64, rows []model.TranscriptRow) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count = count
	f.total = total
	f.rows = rows
}

type fakeMeetingData struct{}

func (fakeMeetingData) Agenda(ctx context.Context, meetingID string) ([]model.AgendaItem, error) {
	return []model.AgendaItem{{MeetingID: meetingID, Title: "intro"}}, nil
}

func (fakeMeetingData) Roles(ctx context.Context, meetingID string) ([]model.MeetingRole, error) {
	return nil, nil
}

func (fakeMeetingData) Audit(ctx context.Context, meetingID string) ([]model.AuditEntry, error) {
	return nil, nil
}

func (fakeMeetingData) Feedback(ctx context.Context, meetingID string) ([]model.FeedbackEntry, error) {
	return nil, nil
}

func (fakeMeetingData) Timeline(ctx context.Context, meetingID string) ([]model.TimelineEntry, error) {
	return nil, nil
}

type fakePollerInsights struct {
	summary string
}

func (f *fakePollerInsights) Summarize(ctx context.Context, text string) string {
	return f.summary
}

func (f *fakePollerInsights) Sentiment(ctx context.Context, text string) model.SentimentResult {
	return model.SentimentResult{Label: "positive", Score: 0.9}
}

func (f *fakePollerInsights) Topics(ctx context.Context, text string) model.TopicsResult {
	return model.TopicsResult{Labels: []string{"planning"}, Scores: []float64{0.8}}
}

func (f *fakePollerInsights) ActionItems(ctx context.Context, text string) []string {
	return []string{"ship it"}
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []event.WsEvent
}

func (f *fakeBroadcaster) Publish(meetingID string, ev event.WsEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeBroadcaster) published() []event.WsEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]event.WsEvent, len(f.events))
	copy(out, f.events)
	return out
}

type memoryCache struct {
	mu     sync.Mutex
	hashes map[string]map[string]string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{hashes: make(map[string]map[string]string)}
}

func (c *memoryCache) Load(ctx context.Context, meetingID string) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string)
	for k, v := range c.hashes[meetingID] {
		out[k] = v
	}
	return out, nil
}

func (c *memoryCache) Store(ctx context.Context, meetingID, category, hash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hashes[meetingID] == nil {
		c.hashes[meetingID] = make(map[string]string)
	}
	c.hashes[meetingID][category] = hash
	return nil
}

type detectorFixture struct {
	detector    *Detector
	manager     *Manager
	sub         *Subscription
	transcripts *fakeTranscripts
	broadcaster *fakeBroadcaster
	cache       *memoryCache
}

func newDetectorFixture(t *testing.T, heartbeatIdle time.Duration) *detectorFixture {
	t.Helper()

	transcripts := &fakeTranscripts{}
	broadcaster := &fakeBroadcaster{}
	cache := newMemoryCache()

	m := NewManager(
		transcripts,
		fakeMeetingData{},
		&fakePollerInsights{summary: "short summary"},
		broadcaster,
		cache,
		zap.NewNop(),
		time.Hour, // ticks are driven manually in tests
		heartbeatIdle,
		20,
	)

	d := newDetector("m1", m)
	sub := &Subscription{C: make(chan Event, subscriberBuffer), meetingID: "m1", manager: m}
	d.addSubscriber(sub)

	return &detectorFixture{
		detector:    d,
		manager:     m,
		sub:         sub,
		transcripts: transcripts,
		broadcaster: broadcaster,
		cache:       cache,
	}
}

func drainCategories(sub *Subscription) map[string]int {
	seen := make(map[string]int)
	for {
		select {
		case ev := <-sub.C:
			seen[ev.Category]++
		default:
			return seen
		}
	}
}

func sampleRows() []model.TranscriptRow {
	return []model.TranscriptRow{
		{MeetingID: "m1", Speaker: "alice", Text: "hello"},
		{MeetingID: "m1", Speaker: "bob", Text: "hi there"},
	}
}

func TestDetectorPrimeDoesNotEmit(t *testing.T) {
	f := newDetectorFixture(t, time.Hour)
	f.transcripts.set(5, 5, sampleRows())

	f.detector.prime(context.Background())

	assert.Empty(t, drainCategories(f.sub))
	assert.Equal(t, int64(5), f.detector.lastCount)

	// the next tick with an unchanged count is a pure short-circuit
	f.detector.tick(context.Background())
	assert.Empty(t, drainCategories(f.sub))
}

func TestDetectorEmitsOnChange(t *testing.T) {
	f := newDetectorFixture(t, time.Hour)
	f.transcripts.set(0, 0, nil)
	f.detector.prime(context.Background())

	f.transcripts.set(2, 2, sampleRows())
	f.detector.tick(context.Background())

	seen := drainCategories(f.sub)
	for _, category := range []string{
		event.StreamAnalytics,
		event.StreamSummary,
		event.StreamSentiment,
		event.StreamTopics,
		event.StreamActionItems,
		event.StreamAgenda,
	} {
		assert.Equal(t, 1, seen[category], "category %s", category)
	}
	assert.Zero(t, seen[event.StreamHeartbeat])
}

func TestDetectorSuppressesUnchangedPayloads(t *testing.T) {
	f := newDetectorFixture(t, time.Hour)
	f.transcripts.set(0, 0, nil)
	f.detector.prime(context.Background())

	f.transcripts.set(2, 2, sampleRows())
	f.detector.tick(context.Background())
	drainCategories(f.sub)

	// the count moves but every payload hashes the same: nothing re-emits
	f.transcripts.set(3, 2, sampleRows())
	f.detector.tick(context.Background())

	assert.Empty(t, drainCategories(f.sub))
}

func TestDetectorCountErrorSkipsTick(t *testing.T) {
	f := newDetectorFixture(t, time.Hour)
	f.transcripts.set(2, 2, sampleRows())
	f.detector.prime(context.Background())

	f.transcripts.countErr = errors.New("store down")
	f.transcripts.count = 99
	f.detector.tick(context.Background())

	// only the error category surfaces; no data categories emit
	seen := drainCategories(f.sub)
	assert.Equal(t, map[string]int{event.StreamError: 1}, seen)
	// failed tick keeps the old count so recovery re-detects the change
	assert.Equal(t, int64(2), f.detector.lastCount)
}

func TestDetectorHeartbeatAfterIdle(t *testing.T) {
	f := newDetectorFixture(t, 10*time.Millisecond)
	f.transcripts.set(1, 1, sampleRows())
	f.detector.prime(context.Background())

	f.detector.lastEmit = time.Now().Add(-time.Second)
	f.detector.tick(context.Background())

	seen := drainCategories(f.sub)
	assert.Equal(t, 1, seen[event.StreamHeartbeat])

	// heartbeat resets the idle clock
	f.detector.heartbeatCheck()
	assert.Empty(t, drainCategories(f.sub))
}

func TestDetectorBroadcastsInsightCategories(t *testing.T) {
	f := newDetectorFixture(t, time.Hour)
	f.transcripts.set(0, 0, nil)
	f.detector.prime(context.Background())

	f.transcripts.set(2, 2, sampleRows())
	f.detector.tick(context.Background())

	published := f.broadcaster.published()
	require.NotEmpty(t, published)
	for _, ev := range published {
		assert.Equal(t, event.EventAIInsight, ev.Type)
	}
	// summary, sentiment, topics, action_items go to the room; raw data
	// categories stay on the SSE path only
	assert.Len(t, published, 4)
}

func TestDetectorSeedsSnapshotsFromCache(t *testing.T) {
	f := newDetectorFixture(t, time.Hour)
	f.transcripts.set(2, 2, sampleRows())
	f.detector.prime(context.Background())
	f.transcripts.set(3, 2, sampleRows())
	f.detector.tick(context.Background())
	drainCategories(f.sub)

	// a fresh detector sharing the cache starts with the stored hashes,
	// so identical data emits nothing after a restart
	restarted := newDetector("m1", f.manager)
	sub := &Subscription{C: make(chan Event, subscriberBuffer), meetingID: "m1", manager: f.manager}
	restarted.addSubscriber(sub)

	f.transcripts.set(3, 2, sampleRows())
	restarted.prime(context.Background())
	f.transcripts.set(4, 2, sampleRows())
	restarted.tick(context.Background())

	assert.Empty(t, drainCategories(sub))
}

func TestDetectorSlowSubscriberDropsEvents(t *testing.T) {
	f := newDetectorFixture(t, time.Hour)

	full := &Subscription{C: make(chan Event), meetingID: "m1", manager: f.manager}
	f.detector.addSubscriber(full)

	f.transcripts.set(0, 0, nil)
	f.detector.prime(context.Background())
	f.transcripts.set(2, 2, sampleRows())

	done := make(chan struct{})
	go func() {
		f.detector.tick(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tick blocked on a slow subscriber")
	}

	// the healthy subscriber still received everything
	assert.NotEmpty(t, drainCategories(f.sub))
}

func TestManagerSubscriberLifecycle(t *testing.T) {
	transcripts := &fakeTranscripts{}
	m := NewManager(
		transcripts,
		fakeMeetingData{},
		&fakePollerInsights{summary: "s"},
		&fakeBroadcaster{},
		newMemoryCache(),
		zap.NewNop(),
		time.Hour,
		time.Hour,
		20,
	)
	defer m.Stop()

	first := m.Subscribe("m1")
	second := m.Subscribe("m1")
	other := m.Subscribe("m2")

	assert.ElementsMatch(t, []string{"m1", "m2"}, m.ActiveMeetings())

	first.Close()
	assert.ElementsMatch(t, []string{"m1", "m2"}, m.ActiveMeetings())

	// Close is idempotent
	first.Close()
	assert.ElementsMatch(t, []string{"m1", "m2"}, m.ActiveMeetings())

	second.Close()
	assert.Equal(t, []string{"m2"}, m.ActiveMeetings())

	other.Close()
	assert.Empty(t, m.ActiveMeetings())
}
