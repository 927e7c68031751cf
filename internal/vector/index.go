package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/redis/go-redis/v9"
)

const (
	entryPrefix = "vec:entry:"
	idSetPrefix = "vec:ids:"
)

// Match is one nearest-neighbor search result
type Match struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
	Meta  string  `json:"meta"`
}

type entry struct {
	Vector []float64 `json:"vector"`
	Meta   string    `json:"meta"`
}

// Index is a Redis-backed embedding index supporting upsert-by-id and
// cosine nearest-neighbor search. Entries are namespaced so each meeting
// gets its own id set.
type Index struct {
	rdb       *redis.Client
	namespace string
}

func NewIndex(rdb *redis.Client, namespace string) *Index {
	return &Index{rdb: rdb, namespace: namespace}
}

func (i *Index) entryKey(id string) string {
	return fmt.Sprintf("%s%s:%s", entryPrefix, i.namespace, id)
}

func (i *Index) idSetKey() string {
	return idSetPrefix + i.namespace
}

// Upsert stores or replaces the vector for the given id.
func (i *Index) Upsert(ctx context.Context, id string, vec []float64, meta string) error {
	if len(vec) == 0 {
		return fmt.Errorf("empty vector for id %s", id)
	}

	data, err := json.Marshal(entry{Vector: vec, Meta: meta})
	if err != nil {
		return fmt.Errorf("failed to marshal vector entry: %w", err)
	}

	pipe := i.rdb.TxPipeline()
	pipe.Set(ctx, i.entryKey(id), data, 0)
	pipe.SAdd(ctx, i.idSetKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to upsert vector %s: %w", id, err)
	}
	return nil
}

// Search returns the k entries nearest to vec by cosine similarity,
// best first. A full scan over the namespace's id set; acceptable at
// per-meeting scale.
func (i *Index) Search(ctx context.Context, vec []float64, k int) ([]Match, error) {
	ids, err := i.rdb.SMembers(ctx, i.idSetKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list vector ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	matches := make([]Match, 0, len(ids))
	for _, id := range ids {
		data, err := i.rdb.Get(ctx, i.entryKey(id)).Bytes()
		if err == redis.Nil {
			continue // id set out of sync with entry, skip
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load vector %s: %w", id, err)
		}

		var e entry
		if err := json.Unmarshal(data, &e); err != nil {
			continue
		}

		matches = append(matches, Match{
			ID:    id,
			Score: Cosine(vec, e.Vector),
			Meta:  e.Meta,
		})
	}

	sort.Slice(matches, func(a, b int) bool {
		return matches[a].Score > matches[b].Score
	})

	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Cosine returns the cosine similarity of two vectors. Mismatched lengths
// or zero vectors score 0.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
