package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	snapshotPrefix = "snap:"
	snapshotTTL    = time.Hour
)

// SnapshotCache persists category hashes across server restarts so a
// restart does not re-emit values that never changed. The in-memory
// snapshot map stays authoritative within a detector's lifetime; the
// cache only seeds it.
type SnapshotCache interface {
	Load(ctx context.Context, meetingID string) (map[string]string, error)
	Store(ctx context.Context, meetingID, category, hash string) error
}

type redisSnapshotCache struct {
	rdb *redis.Client
}

func NewRedisSnapshotCache(rdb *redis.Client) SnapshotCache {
	return &redisSnapshotCache{rdb: rdb}
}

func (c *redisSnapshotCache) key(meetingID string) string {
	return snapshotPrefix + meetingID
}

func (c *redisSnapshotCache) Load(ctx context.Context, meetingID string) (map[string]string, error) {
	hashes, err := c.rdb.HGetAll(ctx, c.key(meetingID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshots for %s: %w", meetingID, err)
	}
	return hashes, nil
}

func (c *redisSnapshotCache) Store(ctx context.Context, meetingID, category, hash string) error {
	key := c.key(meetingID)
	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, key, category, hash)
	pipe.Expire(ctx, key, snapshotTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store snapshot %s/%s: %w", meetingID, category, err)
	}
	return nil
}
