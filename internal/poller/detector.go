package poller

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"Meetpulse/internal/event"
	"Meetpulse/internal/model"
)

// TranscriptSource is the transcript surface the detector polls.
type TranscriptSource interface {
	CountRows(ctx context.Context, meetingID string) (int64, error)
	LastWindow(ctx context.Context, meetingID string, n int) ([]model.TranscriptRow, error)
	Analytics(ctx context.Context, meetingID string) (*model.TranscriptAnalytics, error)
}

// MeetingData exposes the per-category row sets hashed each tick.
type MeetingData interface {
	Agenda(ctx context.Context, meetingID string) ([]model.AgendaItem, error)
	Roles(ctx context.Context, meetingID string) ([]model.MeetingRole, error)
	Audit(ctx context.Context, meetingID string) ([]model.AuditEntry, error)
	Feedback(ctx context.Context, meetingID string) ([]model.FeedbackEntry, error)
	Timeline(ctx context.Context, meetingID string) ([]model.TimelineEntry, error)
}

// Insights is the fallback-total insight surface; no method errors.
type Insights interface {
	Summarize(ctx context.Context, text string) string
	Sentiment(ctx context.Context, text string) model.SentimentResult
	Topics(ctx context.Context, text string) model.TopicsResult
	ActionItems(ctx context.Context, text string) []string
}

// Broadcaster pushes derived insights to room subscribers over the socket
// path, in addition to the SSE subscribers.
type Broadcaster interface {
	Publish(meetingID string, ev event.WsEvent)
}

// Event is one change emitted by the detector to its subscribers.
type Event struct {
	MeetingID string `json:"meetingId"`
	Category  string `json:"category"`
	Payload   any    `json:"payload"`
}

// Detector runs the polling loop for one meeting. Each detector is an
// actor: its snapshots and row count are owned by the run goroutine, so
// ticks for one meeting never interleave mid-mutation. Only the
// subscriber set is shared and mutex-guarded.
type Detector struct {
	meetingID     string
	interval      time.Duration
	heartbeatIdle time.Duration
	window        int

	transcripts TranscriptSource
	meetingData MeetingData
	insights    Insights
	broadcaster Broadcaster
	cache       SnapshotCache
	logger      *zap.Logger

	subscribers   map[*Subscription]struct{}
	subscribersMu sync.Mutex

	// owned by the run goroutine
	snapshots map[string]string
	lastCount int64
	lastEmit  time.Time
}

func newDetector(meetingID string, m *Manager) *Detector {
	return &Detector{
		meetingID:     meetingID,
		interval:      m.interval,
		heartbeatIdle: m.heartbeatIdle,
		window:        m.window,
		transcripts:   m.transcripts,
		meetingData:   m.meetingData,
		insights:      m.insights,
		broadcaster:   m.broadcaster,
		cache:         m.cache,
		logger:        m.logger.With(zap.String("meeting_id", meetingID)),
		subscribers:   make(map[*Subscription]struct{}),
		snapshots:     make(map[string]string),
		lastCount:     -1,
	}
}

// run polls until the context is cancelled. The first pass primes the row
// count and snapshots without emitting, so a freshly opened stream sees
// only heartbeats until data actually changes.
func (d *Detector) run(ctx context.Context) {
	d.prime(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Debug("polling stopped")
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

func (d *Detector) prime(ctx context.Context) {
	if d.cache != nil {
		if cached, err := d.cache.Load(ctx, d.meetingID); err != nil {
			d.logger.Warn("failed to load snapshot cache", zap.Error(err))
		} else {
			for category, hash := range cached {
				d.snapshots[category] = hash
			}
		}
	}

	count, err := d.transcripts.CountRows(ctx, d.meetingID)
	if err != nil {
		d.logger.Warn("prime count failed", zap.Error(err))
		return
	}
	d.lastCount = count
	d.lastEmit = time.Now()
}

// tick is one pass of the change-detection algorithm. Any single
// category failing is logged and skipped; the tick continues and the
// loop never stops on error.
func (d *Detector) tick(ctx context.Context) {
	count, err := d.transcripts.CountRows(ctx, d.meetingID)
	if err != nil {
		d.logger.Warn("row count failed, skipping tick", zap.Error(err))
		// let stream consumers tell a dead store apart from a quiet meeting
		d.deliver(Event{
			MeetingID: d.meetingID,
			Category:  event.StreamError,
			Payload:   map[string]string{"message": "change feed temporarily unavailable"},
		})
		d.heartbeatCheck()
		return
	}

	// cheap short-circuit: nothing new means only the heartbeat check runs
	if count == d.lastCount {
		d.heartbeatCheck()
		return
	}
	d.lastCount = count

	d.refreshTranscriptDerived(ctx)
	d.refreshRowCategories(ctx)
	d.heartbeatCheck()
}

func (d *Detector) refreshTranscriptDerived(ctx context.Context) {
	analytics, err := d.transcripts.Analytics(ctx, d.meetingID)
	if err != nil {
		d.logger.Warn("analytics fetch failed", zap.Error(err))
	} else {
		d.emitIfChanged(ctx, event.StreamAnalytics, analytics)
	}

	rows, err := d.transcripts.LastWindow(ctx, d.meetingID, d.window)
	if err != nil {
		d.logger.Warn("window fetch failed", zap.Error(err))
		return
	}
	text := windowText(rows)
	if text == "" {
		return
	}

	d.emitIfChanged(ctx, event.StreamSummary, d.insights.Summarize(ctx, text))
	d.emitIfChanged(ctx, event.StreamSentiment, d.insights.Sentiment(ctx, text))
	d.emitIfChanged(ctx, event.StreamTopics, d.insights.Topics(ctx, text))
	d.emitIfChanged(ctx, event.StreamActionItems, d.insights.ActionItems(ctx, text))
}

func (d *Detector) refreshRowCategories(ctx context.Context) {
	if rows, err := d.meetingData.Timeline(ctx, d.meetingID); err != nil {
		d.logger.Warn("timeline fetch failed", zap.Error(err))
	} else {
		d.emitIfChanged(ctx, event.StreamTimeline, rows)
	}

	if rows, err := d.meetingData.Agenda(ctx, d.meetingID); err != nil {
		d.logger.Warn("agenda fetch failed", zap.Error(err))
	} else {
		d.emitIfChanged(ctx, event.StreamAgenda, rows)
	}

	if rows, err := d.meetingData.Roles(ctx, d.meetingID); err != nil {
		d.logger.Warn("roles fetch failed", zap.Error(err))
	} else {
		d.emitIfChanged(ctx, event.StreamRoles, rows)
	}

	if rows, err := d.meetingData.Audit(ctx, d.meetingID); err != nil {
		d.logger.Warn("audit fetch failed", zap.Error(err))
	} else {
		d.emitIfChanged(ctx, event.StreamAudit, rows)
	}

	if rows, err := d.meetingData.Feedback(ctx, d.meetingID); err != nil {
		d.logger.Warn("feedback fetch failed", zap.Error(err))
	} else {
		d.emitIfChanged(ctx, event.StreamFeedback, rows)
	}
}

// emitIfChanged emits the payload to subscribers if and only if its
// content hash differs from the stored snapshot for the category.
func (d *Detector) emitIfChanged(ctx context.Context, category string, payload any) bool {
	hash := hashPayload(payload)
	if d.snapshots[category] == hash {
		return false
	}
	d.snapshots[category] = hash

	if d.cache != nil {
		if err := d.cache.Store(ctx, d.meetingID, category, hash); err != nil {
			d.logger.Warn("failed to store snapshot hash", zap.Error(err))
		}
	}

	d.deliver(Event{MeetingID: d.meetingID, Category: category, Payload: payload})

	if d.broadcaster != nil && isInsightCategory(category) {
		d.broadcaster.Publish(d.meetingID, event.NewEvent(event.EventAIInsight, model.InsightEvent{
			MeetingID:  d.meetingID,
			Kind:       category,
			Payload:    payload,
			ProducedAt: time.Now(),
		}))
	}

	d.lastEmit = time.Now()
	return true
}

func (d *Detector) heartbeatCheck() {
	if time.Since(d.lastEmit) < d.heartbeatIdle {
		return
	}
	d.deliver(Event{
		MeetingID: d.meetingID,
		Category:  event.StreamHeartbeat,
		Payload:   map[string]int64{"timestamp": time.Now().UnixMilli()},
	})
	d.lastEmit = time.Now()
}

// deliver fans the event out to every SSE subscriber. Best-effort: a
// subscriber whose channel is full has the event dropped rather than
// stalling the loop.
func (d *Detector) deliver(ev Event) {
	d.subscribersMu.Lock()
	defer d.subscribersMu.Unlock()

	for sub := range d.subscribers {
		select {
		case sub.C <- ev:
		default:
			d.logger.Debug("dropping event for slow subscriber",
				zap.String("category", ev.Category),
			)
		}
	}
}

func (d *Detector) addSubscriber(sub *Subscription) {
	d.subscribersMu.Lock()
	defer d.subscribersMu.Unlock()
	d.subscribers[sub] = struct{}{}
}

func (d *Detector) removeSubscriber(sub *Subscription) int {
	d.subscribersMu.Lock()
	defer d.subscribersMu.Unlock()
	delete(d.subscribers, sub)
	return len(d.subscribers)
}

func isInsightCategory(category string) bool {
	switch category {
	case event.StreamSummary, event.StreamSentiment, event.StreamTopics, event.StreamActionItems:
		return true
	}
	return false
}

// hashPayload computes the stable content hash used for change
// suppression: SHA-256 over the canonical JSON serialization.
func hashPayload(payload any) string {
	data, err := json.Marshal(payload)
	if err != nil {
		// unmarshallable payloads hash by their formatted value
		data = []byte(fmt.Sprintf("%v", payload))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func windowText(rows []model.TranscriptRow) string {
	var b strings.Builder
	for _, row := range rows {
		b.WriteString(row.Speaker)
		b.WriteString(": ")
		b.WriteString(row.Text)
		b.WriteString("\n")
	}
	return b.String()
}
