package configuration

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"Meetpulse/internal/db"
	"Meetpulse/internal/handler"
	"Meetpulse/internal/hub"
	"Meetpulse/internal/inference"
	"Meetpulse/internal/insight"
	"Meetpulse/internal/model"
	"Meetpulse/internal/poller"
	"Meetpulse/internal/repo"
	"Meetpulse/internal/rtc"
	"Meetpulse/internal/vector"
)

// Container holds every long-lived component and wires them together.
type Container struct {
	Config *Config
	Logger *zap.Logger

	Hub     *hub.Hub
	Pollers *poller.Manager

	MeetingHandler handler.MeetingHandler
	StreamHandler  handler.StreamHandler

	mongoDB *mongo.Database
	rdb     *redis.Client
}

// BuildContainer constructs the full dependency graph from a config file.
func BuildContainer(configPath string) (*Container, error) {
	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	mongoDB, err := db.OpenConnection(config.Store.Uri, config.Store.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	})
	{
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(ctx).Err(); err != nil {
			cancel()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		cancel()
	}

	// Repositories
	transcripts := repo.NewTranscriptRepository(
		db.NewRepository[model.TranscriptRow](mongoDB, config.Store.TranscriptsCollection),
		logger,
	)
	meetingData := repo.NewMeetingDataRepository(
		db.NewRepository[model.Meeting](mongoDB, config.Store.MeetingsCollection),
		db.NewRepository[model.AgendaItem](mongoDB, config.Store.AgendaCollection),
		db.NewRepository[model.MeetingRole](mongoDB, config.Store.RolesCollection),
		db.NewRepository[model.AuditEntry](mongoDB, config.Store.AuditCollection),
		db.NewRepository[model.FeedbackEntry](mongoDB, config.Store.FeedbackCollection),
		db.NewRepository[model.TimelineEntry](mongoDB, config.Store.TimelineCollection),
		logger,
	)

	// Insight pipeline
	provider := inference.NewClient(config.Inference.BaseURL, config.Inference.APIKey, config.InferenceTimeout())
	index := vector.NewIndex(rdb, "messages")
	insights := insight.NewGenerator(provider, index, logger, config.InferenceTimeout())

	// Socket hub and change detection
	h := hub.NewHub(transcripts, insights, logger, config.Pipeline.AllowAnonymousPresence, config.Server.AllowedOrigins)
	pollers := poller.NewManager(
		transcripts,
		meetingData,
		insights,
		h,
		poller.NewRedisSnapshotCache(rdb),
		logger,
		config.PollInterval(),
		config.HeartbeatIdle(),
		config.Pipeline.TranscriptWindow,
	)

	tokens := rtc.NewTokenIssuer(config.LiveKit.APIKey, config.LiveKit.APISecret, config.LiveKit.URL)

	return &Container{
		Config:         config,
		Logger:         logger,
		Hub:            h,
		Pollers:        pollers,
		MeetingHandler: handler.NewMeetingHandler(meetingData, transcripts, tokens, h),
		StreamHandler:  handler.NewStreamHandler(pollers),
		mongoDB:        mongoDB,
		rdb:            rdb,
	}, nil
}

// Close releases every resource the container owns. Safe to call after
// StartServer returns; the hub and pollers tolerate a second stop.
func (c *Container) Close() {
	if c.Pollers != nil {
		c.Pollers.Stop()
	}

	if c.mongoDB != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := c.mongoDB.Client().Disconnect(ctx); err != nil {
			c.Logger.Error("mongo disconnect error", zap.Error(err))
		}
		cancel()
	}

	if c.rdb != nil {
		if err := c.rdb.Close(); err != nil {
			c.Logger.Error("redis close error", zap.Error(err))
		}
	}

	if c.Logger != nil {
		_ = c.Logger.Sync()
	}
}
