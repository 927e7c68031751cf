package repo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"Meetpulse/internal/db"
	"Meetpulse/internal/model"
)

var (
	ErrMaxRetriesExceeded = errors.New("maximum retry attempts exceeded")
	ErrInvalidRow         = errors.New("invalid row: row cannot be nil")
	ErrInvalidMeetingID   = errors.New("invalid meeting ID: cannot be empty")
	ErrOperationTimeout   = errors.New("operation timeout exceeded")
)

const (
	// Timeouts
	defaultWriteTimeout = 5 * time.Second
	defaultReadTimeout  = 30 * time.Second

	// Retry configuration
	maxRetries     = 3
	baseRetryDelay = 100 * time.Millisecond
	maxRetryDelay  = 2 * time.Second
)

type transcriptRepository struct {
	mongoRepo *db.Repository[model.TranscriptRow]
	logger    *zap.Logger

	// for idempotency - track in-flight inserts by row id
	inFlightOps     map[string]struct{}
	inFlightOpsLock sync.RWMutex
}

type TranscriptRepository interface {
	InsertRow(ctx context.Context, row *model.TranscriptRow) (string, error)
	CountRows(ctx context.Context, meetingID string) (int64, error)
	LastWindow(ctx context.Context, meetingID string, n int) ([]model.TranscriptRow, error)
	PageRows(ctx context.Context, meetingID string, page int64) (*db.PaginatedResult[model.TranscriptRow], error)
	Analytics(ctx context.Context, meetingID string) (*model.TranscriptAnalytics, error)
}

func NewTranscriptRepository(repo *db.Repository[model.TranscriptRow], logger *zap.Logger) TranscriptRepository {
	return &transcriptRepository{
		mongoRepo:   repo,
		logger:      logger,
		inFlightOps: make(map[string]struct{}),
	}
}

// -----------------------------------------------------------------------------
// InsertRow
// -----------------------------------------------------------------------------

func (t *transcriptRepository) InsertRow(ctx context.Context, row *model.TranscriptRow) (string, error) {
	if err := t.validateRow(row); err != nil {
		return "", err
	}

	// Prevent the same row being inserted twice concurrently
	if row.RowID != "" {
		if !t.tryAcquireInFlight(row.RowID) {
			return "", fmt.Errorf("duplicate insert in progress: %s", row.RowID)
		}
		defer t.releaseInFlight(row.RowID)
	}

	ctx, cancel := t.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := t.waitForRetry(ctx, attempt); err != nil {
				return "", err
			}
		}

		result, err := t.mongoRepo.Create(ctx, *row)
		if err == nil {
			insertedID := ""
			if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
				insertedID = oid.Hex()
			}

			t.logger.Info("transcript row inserted",
				zap.String("inserted_id", insertedID),
				zap.String("meeting_id", row.MeetingID),
				zap.Int("attempt", attempt+1),
			)
			return insertedID, nil
		}

		lastErr = err

		if !t.isRetryableError(err) {
			break
		}

		t.logger.Warn("insert attempt failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", maxRetries),
		)
	}

	t.logger.Error("failed to insert transcript row after all retries",
		zap.Error(lastErr),
		zap.String("meeting_id", row.MeetingID),
	)

	return "", fmt.Errorf("insert transcript row failed: %w", lastErr)
}

// -----------------------------------------------------------------------------
// Reads used by the polling loop
// -----------------------------------------------------------------------------

func (t *transcriptRepository) CountRows(ctx context.Context, meetingID string) (int64, error) {
	if err := t.validateMeetingID(meetingID); err != nil {
		return 0, err
	}

	ctx, cancel := t.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	return t.mongoRepo.Count(ctx, db.NewFilter().Eq("meeting_id", meetingID).Build())
}

func (t *transcriptRepository) LastWindow(ctx context.Context, meetingID string, n int) ([]model.TranscriptRow, error) {
	if err := t.validateMeetingID(meetingID); err != nil {
		return nil, err
	}

	ctx, cancel := t.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("meeting_id", meetingID).Build()
	rows, err := t.mongoRepo.FindLastN(ctx, filter, "created_at", int64(n))
	if err != nil {
		return nil, t.handleReadError(err, meetingID)
	}
	return rows, nil
}

func (t *transcriptRepository) PageRows(ctx context.Context, meetingID string, page int64) (*db.PaginatedResult[model.TranscriptRow], error) {
	if err := t.validateMeetingID(meetingID); err != nil {
		return nil, err
	}

	ctx, cancel := t.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("meeting_id", meetingID).Build()

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := t.waitForRetry(ctx, attempt); err != nil {
				return nil, err
			}
			t.logger.Warn("retrying transcript page read",
				zap.String("meeting_id", meetingID),
				zap.Int("attempt", attempt+1),
			)
		}

		result, err := t.mongoRepo.FindWithPagination(ctx, filter, db.PaginationParams{
			Page:     page,
			PageSize: 25,
			SortBy:   "created_at",
			SortDesc: false,
		})
		if err == nil {
			return result, nil
		}

		lastErr = err
		if !t.isRetryableError(err) {
			break
		}
	}

	return nil, t.handleReadError(lastErr, meetingID)
}

func (t *transcriptRepository) Analytics(ctx context.Context, meetingID string) (*model.TranscriptAnalytics, error) {
	if err := t.validateMeetingID(meetingID); err != nil {
		return nil, err
	}

	ctx, cancel := t.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("meeting_id", meetingID).Build()
	rows, err := t.mongoRepo.FindAllSorted(ctx, filter, "created_at", false)
	if err != nil {
		return nil, t.handleReadError(err, meetingID)
	}

	analytics := &model.TranscriptAnalytics{
		MeetingID:     meetingID,
		TotalRows:     int64(len(rows)),
		SpeakerCounts: make(map[string]int),
	}
	for _, row := range rows {
		analytics.SpeakerCounts[row.Speaker]++
		if row.CreatedAt.After(analytics.LastActivity) {
			analytics.LastActivity = row.CreatedAt
		}
	}
	return analytics, nil
}

// -----------------------------------------------------------------------------
// Private Helper Methods
// -----------------------------------------------------------------------------

func (t *transcriptRepository) tryAcquireInFlight(key string) bool {
	t.inFlightOpsLock.Lock()
	defer t.inFlightOpsLock.Unlock()

	if _, exists := t.inFlightOps[key]; exists {
		return false
	}
	t.inFlightOps[key] = struct{}{}
	return true
}

func (t *transcriptRepository) releaseInFlight(key string) {
	t.inFlightOpsLock.Lock()
	defer t.inFlightOpsLock.Unlock()
	delete(t.inFlightOps, key)
}

func (t *transcriptRepository) validateRow(row *model.TranscriptRow) error {
	if row == nil {
		return ErrInvalidRow
	}
	if row.MeetingID == "" {
		return ErrInvalidMeetingID
	}
	return nil
}

func (t *transcriptRepository) validateMeetingID(meetingID string) error {
	if meetingID == "" {
		return ErrInvalidMeetingID
	}
	return nil
}

func (t *transcriptRepository) ensureTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hadDeadline := ctx.Deadline(); hadDeadline {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func (t *transcriptRepository) waitForRetry(ctx context.Context, attempt int) error {
	delay := time.Duration(1<<uint(attempt)) * baseRetryDelay
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("retry wait cancelled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func (t *transcriptRepository) isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Context errors are not retryable
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
		return true
	}

	return false
}

func (t *transcriptRepository) handleReadError(err error, meetingID string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		t.logger.Error("read timeout", zap.String("meeting_id", meetingID))
		return ErrOperationTimeout
	}

	if errors.Is(err, context.Canceled) {
		t.logger.Debug("read cancelled", zap.String("meeting_id", meetingID))
		return err
	}

	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil // Not an error, just empty result
	}

	t.logger.Error("read failed", zap.Error(err), zap.String("meeting_id", meetingID))
	return fmt.Errorf("transcript read failed: %w", err)
}
