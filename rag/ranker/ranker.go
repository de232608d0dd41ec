// Package ranker scores candidate passages against a query by cosine
// similarity of their embeddings and selects the best match.
package ranker

import (
	"context"
	"fmt"
	"strings"
	"time"

	errorskg "github.com/sweetpotato0/ai-advocate/errors"
	"github.com/sweetpotato0/ai-advocate/pkg/logging"
	"github.com/sweetpotato0/ai-advocate/pkg/metrics"
	"github.com/sweetpotato0/ai-advocate/pkg/telemetry"
	"github.com/sweetpotato0/ai-advocate/vector"
	"go.opentelemetry.io/otel/attribute"
)

// Result is one scored passage. Index refers to the passage position in the
// slice handed to Rank, so callers can map results back to their sources.
type Result struct {
	Index   int
	Passage string
	Score   float64
}

// EmbeddingError reports an unreachable provider or a malformed response.
// It matches errors.ErrEmbeddingProvider.
type EmbeddingError struct {
	Reason string
	Err    error
}

func (e *EmbeddingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("embedding provider: %s: %v", e.Reason, e.Err)
	}
	return "embedding provider: " + e.Reason
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// Is reports whether target is errors.ErrEmbeddingProvider.
func (e *EmbeddingError) Is(target error) bool {
	return target == errorskg.ErrEmbeddingProvider
}

// Option customises a Ranker.
type Option func(*Ranker)

// WithMetrics records call outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Ranker) { r.metrics = m }
}

// Ranker scores passages with a single batched embedding request per call.
// It holds no per-call state and is safe for concurrent use.
type Ranker struct {
	embedder vector.Embedder
	metrics  *metrics.Metrics
}

// New constructs a Ranker backed by embedder.
func New(embedder vector.Embedder, opts ...Option) *Ranker {
	r := &Ranker{embedder: embedder}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Rank returns one Result per non-blank passage, in input order.
func (r *Ranker) Rank(ctx context.Context, query string, passages []string) (results []Result, err error) {
	ctx, span := telemetry.Start(ctx, "ranker.Rank", attribute.Int("ranker.passages", len(passages)))
	defer func() { telemetry.End(span, err) }()

	start := time.Now()
	logger := logging.WithComponent("ranker")

	kept := make([]Result, 0, len(passages))
	for i, p := range passages {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		kept = append(kept, Result{Index: i, Passage: p})
	}
	if len(kept) == 0 {
		r.metrics.ObserveRank("empty")
		return nil, errorskg.ErrEmptyInput
	}
	if r.embedder == nil {
		r.metrics.ObserveRank("provider_error")
		return nil, &EmbeddingError{Reason: "no embedder configured"}
	}

	texts := make([]string, 0, len(kept)+1)
	texts = append(texts, strings.TrimSpace(query))
	for _, k := range kept {
		texts = append(texts, k.Passage)
	}

	vecs, err := r.embed(ctx, texts)
	if err != nil {
		r.metrics.ObserveRank("provider_error")
		logger.Warn("embedding failed", "passages", len(kept), "error", err)
		return nil, err
	}

	queryVec := vecs[0]
	for i := range kept {
		kept[i].Score = vector.CosineSimilarity(queryVec, vecs[i+1])
	}

	r.metrics.ObserveRank("ok")
	logger.Debug("ranked passages",
		"query", logging.Trim(query, 80),
		"passages", len(kept),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return kept, nil
}

// RankBest ranks passages and returns only the best match.
func (r *Ranker) RankBest(ctx context.Context, query string, passages []string) (Result, error) {
	results, err := r.Rank(ctx, query, passages)
	if err != nil {
		return Result{}, err
	}
	best, _ := Best(results)
	return best, nil
}

func (r *Ranker) embed(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, &EmbeddingError{Reason: "request failed", Err: err}
	}
	if len(vecs) != len(texts) {
		return nil, &EmbeddingError{Reason: fmt.Sprintf("expected %d vectors, got %d", len(texts), len(vecs))}
	}
	dim := len(vecs[0])
	for i, v := range vecs {
		if len(v) == 0 {
			return nil, &EmbeddingError{Reason: fmt.Sprintf("empty vector at position %d", i)}
		}
		if len(v) != dim {
			return nil, &EmbeddingError{Reason: fmt.Sprintf("dimension mismatch at position %d: %d != %d", i, len(v), dim)}
		}
	}
	return vecs, nil
}

// Best returns the result with the highest score. Ties go to the earliest
// entry. ok is false for an empty slice.
func Best(results []Result) (best Result, ok bool) {
	for i, res := range results {
		if i == 0 || res.Score > best.Score {
			best = res
		}
	}
	return best, len(results) > 0
}

// SplitPassages breaks a document into paragraph passages on blank lines.
func SplitPassages(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var (
		out     []string
		current []string
	)
	flush := func() {
		if p := strings.TrimSpace(strings.Join(current, "\n")); p != "" {
			out = append(out, p)
		}
		current = current[:0]
	}
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()
	return out
}

// FormatBest renders a result the way the research tool reports it.
func FormatBest(res Result) string {
	return fmt.Sprintf("Most Relevant Section (Similarity: %.2f):\n---\n%s", res.Score, res.Passage)
}
