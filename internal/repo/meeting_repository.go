package repo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"Meetpulse/internal/db"
	"Meetpulse/internal/model"
)

// MeetingDataRepository exposes the per-meeting row sets the polling loop
// hashes each tick, plus the meeting documents served over REST.
type MeetingDataRepository interface {
	GetMeetings(ctx context.Context) ([]model.Meeting, error)
	GetMeeting(ctx context.Context, meetingID string) (*model.Meeting, error)
	Agenda(ctx context.Context, meetingID string) ([]model.AgendaItem, error)
	Roles(ctx context.Context, meetingID string) ([]model.MeetingRole, error)
	Audit(ctx context.Context, meetingID string) ([]model.AuditEntry, error)
	Feedback(ctx context.Context, meetingID string) ([]model.FeedbackEntry, error)
	Timeline(ctx context.Context, meetingID string) ([]model.TimelineEntry, error)
}

type meetingDataRepository struct {
	meetings *db.Repository[model.Meeting]
	agenda   *db.Repository[model.AgendaItem]
	roles    *db.Repository[model.MeetingRole]
	audit    *db.Repository[model.AuditEntry]
	feedback *db.Repository[model.FeedbackEntry]
	timeline *db.Repository[model.TimelineEntry]
	logger   *zap.Logger
}

func NewMeetingDataRepository(
	meetings *db.Repository[model.Meeting],
	agenda *db.Repository[model.AgendaItem],
	roles *db.Repository[model.MeetingRole],
	audit *db.Repository[model.AuditEntry],
	feedback *db.Repository[model.FeedbackEntry],
	timeline *db.Repository[model.TimelineEntry],
	logger *zap.Logger,
) MeetingDataRepository {
	return &meetingDataRepository{
		meetings: meetings,
		agenda:   agenda,
		roles:    roles,
		audit:    audit,
		feedback: feedback,
		timeline: timeline,
		logger:   logger,
	}
}

func (r *meetingDataRepository) GetMeetings(ctx context.Context) ([]model.Meeting, error) {
	ctx, cancel := r.ensureTimeout(ctx)
	defer cancel()

	meetings, err := r.meetings.FindAllSorted(ctx, db.NewFilter().Eq("is_active", true).Build(), "updated_at", true)
	if err != nil {
		r.logger.Error("failed to query meetings", zap.Error(err))
		return nil, fmt.Errorf("failed to get meetings: %w", err)
	}

	r.logger.Debug("meetings retrieved", zap.Int("count", len(meetings)))
	return meetings, nil
}

func (r *meetingDataRepository) GetMeeting(ctx context.Context, meetingID string) (*model.Meeting, error) {
	if meetingID == "" {
		return nil, ErrInvalidMeetingID
	}

	ctx, cancel := r.ensureTimeout(ctx)
	defer cancel()

	meeting, err := r.meetings.FindOne(ctx, db.NewFilter().Eq("meeting_id", meetingID).Build())
	if err != nil {
		if err == mongo.ErrNoDocuments {
			r.logger.Debug("meeting not found", zap.String("meeting_id", meetingID))
			return nil, nil
		}
		r.logger.Error("failed to fetch meeting",
			zap.String("meeting_id", meetingID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to fetch meeting: %w", err)
	}
	return meeting, nil
}

func (r *meetingDataRepository) Agenda(ctx context.Context, meetingID string) ([]model.AgendaItem, error) {
	return fetchRows(ctx, r, r.agenda, meetingID, "order")
}

func (r *meetingDataRepository) Roles(ctx context.Context, meetingID string) ([]model.MeetingRole, error) {
	return fetchRows(ctx, r, r.roles, meetingID, "user_id")
}

func (r *meetingDataRepository) Audit(ctx context.Context, meetingID string) ([]model.AuditEntry, error) {
	return fetchRows(ctx, r, r.audit, meetingID, "created_at")
}

func (r *meetingDataRepository) Feedback(ctx context.Context, meetingID string) ([]model.FeedbackEntry, error) {
	return fetchRows(ctx, r, r.feedback, meetingID, "created_at")
}

func (r *meetingDataRepository) Timeline(ctx context.Context, meetingID string) ([]model.TimelineEntry, error) {
	return fetchRows(ctx, r, r.timeline, meetingID, "at")
}

// fetchRows reads the full row set for one category in a stable sort order,
// so the polling loop's content hash is deterministic for unchanged data.
func fetchRows[T any](ctx context.Context, r *meetingDataRepository, repo *db.Repository[T], meetingID, sortBy string) ([]T, error) {
	if meetingID == "" {
		return nil, ErrInvalidMeetingID
	}

	ctx, cancel := r.ensureTimeout(ctx)
	defer cancel()

	rows, err := repo.FindAllSorted(ctx, db.NewFilter().Eq("meeting_id", meetingID).Build(), sortBy, false)
	if err != nil {
		r.logger.Error("failed to fetch category rows",
			zap.String("meeting_id", meetingID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to fetch rows: %w", err)
	}
	return rows, nil
}

func (r *meetingDataRepository) ensureTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hadDeadline := ctx.Deadline(); hadDeadline {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, defaultReadTimeout)
}
