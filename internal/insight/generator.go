package insight

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"Meetpulse/internal/model"
	"Meetpulse/internal/vector"
)

// Fallback values returned when the inference provider fails. Callers never
// see a provider error; they see these benign values instead.
const (
	FallbackSummary        = "summary unavailable"
	FallbackSentimentLabel = "unavailable"
	FallbackReply          = "I couldn't process that right now."
)

// DefaultSuggestions seeds the suggestions broadcast when neither the
// provider nor the vector index produced anything usable. The list must
// never be empty.
var DefaultSuggestions = []string{
	"Summarize the discussion so far",
	"What are the open action items?",
	"Capture a decision for the minutes",
}

// Provider is the subset of inference operations the generator needs.
type Provider interface {
	Summarize(ctx context.Context, text string) (string, error)
	Sentiment(ctx context.Context, text string) (model.SentimentResult, error)
	Topics(ctx context.Context, text string) (model.TopicsResult, error)
	ActionItems(ctx context.Context, text string) ([]string, error)
	Reply(ctx context.Context, text string) (string, error)
	Embed(ctx context.Context, text string) ([]float64, error)
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Embeddings is the vector-index surface used for suggestion retrieval.
type Embeddings interface {
	Upsert(ctx context.Context, id string, vec []float64, meta string) error
	Search(ctx context.Context, vec []float64, k int) ([]vector.Match, error)
}

// Generator wraps the inference provider with per-call timeouts and a
// total fallback contract: no method ever returns an error, so the change
// detector and session handlers need no provider-specific error handling.
type Generator struct {
	provider Provider
	index    Embeddings
	logger   *zap.Logger
	timeout  time.Duration
}

func NewGenerator(provider Provider, index Embeddings, logger *zap.Logger, timeout time.Duration) *Generator {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Generator{
		provider: provider,
		index:    index,
		logger:   logger,
		timeout:  timeout,
	}
}

// Summarize returns a summary of the text, or a fixed fallback string.
func (g *Generator) Summarize(ctx context.Context, text string) string {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	summary, err := g.provider.Summarize(ctx, text)
	if err != nil {
		g.logger.Warn("summarize failed, using fallback", zap.Error(err))
		return FallbackSummary
	}
	return summary
}

// Sentiment returns the sentiment of the text, or {unavailable, 0}.
func (g *Generator) Sentiment(ctx context.Context, text string) model.SentimentResult {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	result, err := g.provider.Sentiment(ctx, text)
	if err != nil {
		g.logger.Warn("sentiment failed, using fallback", zap.Error(err))
		return model.SentimentResult{Label: FallbackSentimentLabel, Score: 0}
	}
	return result
}

// Topics returns the topic classification of the text, or empty lists.
func (g *Generator) Topics(ctx context.Context, text string) model.TopicsResult {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	result, err := g.provider.Topics(ctx, text)
	if err != nil {
		g.logger.Warn("topics failed, using fallback", zap.Error(err))
		return model.TopicsResult{Labels: []string{}, Scores: []float64{}}
	}
	if result.Labels == nil {
		result.Labels = []string{}
	}
	if result.Scores == nil {
		result.Scores = []float64{}
	}
	return result
}

// ActionItems returns extracted action items, or an empty list.
func (g *Generator) ActionItems(ctx context.Context, text string) []string {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	items, err := g.provider.ActionItems(ctx, text)
	if err != nil {
		g.logger.Warn("action items failed, using fallback", zap.Error(err))
		return []string{}
	}
	if items == nil {
		items = []string{}
	}
	return items
}

// Reply returns an assistant reply to a participant message, or a fixed
// fallback string.
func (g *Generator) Reply(ctx context.Context, text string) string {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	reply, err := g.provider.Reply(ctx, text)
	if err != nil {
		g.logger.Warn("reply failed, using fallback", zap.Error(err))
		return FallbackReply
	}
	return reply
}

// Transcribe runs speech-to-text over a raw audio frame. Unlike the other
// operations there is no benign transcript to substitute, so a failure
// reports ok=false and the caller skips the broadcast.
func (g *Generator) Transcribe(ctx context.Context, audio []byte) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	text, err := g.provider.Transcribe(ctx, audio)
	if err != nil {
		g.logger.Warn("transcribe failed, skipping frame", zap.Error(err))
		return "", false
	}
	if text == "" {
		return "", false
	}
	return text, true
}

// Suggestions embeds the message, indexes it for future retrieval, and
// returns suggestions seeded from the nearest prior snippets. Any failure
// along the way degrades to the default suggestion list; the result is
// never empty.
func (g *Generator) Suggestions(ctx context.Context, rowID, text string) []string {
	if g.index == nil {
		return DefaultSuggestions
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	vec, err := g.provider.Embed(ctx, text)
	if err != nil {
		g.logger.Warn("embed failed, using default suggestions", zap.Error(err))
		return DefaultSuggestions
	}

	matches, err := g.index.Search(ctx, vec, 3)
	if err != nil {
		g.logger.Warn("vector search failed, using default suggestions", zap.Error(err))
		matches = nil
	}

	if err := g.index.Upsert(ctx, rowID, vec, text); err != nil {
		g.logger.Warn("vector upsert failed", zap.String("row_id", rowID), zap.Error(err))
	}

	suggestions := make([]string, 0, len(matches))
	for _, m := range matches {
		if m.Meta == "" || m.Meta == text {
			continue
		}
		suggestions = append(suggestions, fmt.Sprintf("Revisit: %s", m.Meta))
	}

	if len(suggestions) == 0 {
		return DefaultSuggestions
	}
	return suggestions
}
