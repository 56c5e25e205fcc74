package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/pagewise/ai"
	"github.com/poiesic/pagewise/core"
	"github.com/poiesic/pagewise/storage"
)

// DefaultTopK is the number of results returned when a caller passes topK <= 0.
const DefaultTopK = 5

// Searcher provides semantic search over stored chunks.
type Searcher struct {
	vectors      storage.VectorRepository
	embedder     ai.Embedder
	topK         int
	minScore     *float32
	keywordBoost float32
	logger       *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithTopK sets the default number of results.
func WithTopK(topK int) Option {
	return func(s *Searcher) error {
		if topK < 1 {
			return fmt.Errorf("top_k must be at least 1, got %d", topK)
		}
		s.topK = topK
		return nil
	}
}

// WithMinScore drops results scoring below minScore. Without it every
// score is kept.
func WithMinScore(minScore float32) Option {
	return func(s *Searcher) error {
		s.minScore = storage.Threshold(minScore)
		return nil
	}
}

// WithKeywordBoost adds boost to the score of chunks containing every
// non-stop-word of the query. Zero, the default, disables boosting.
func WithKeywordBoost(boost float32) Option {
	return func(s *Searcher) error {
		if boost < 0 {
			return fmt.Errorf("keyword boost cannot be negative, got %v", boost)
		}
		s.keywordBoost = boost
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(
	vectors storage.VectorRepository,
	provider ai.AIProvider,
	opts ...Option,
) (*Searcher, error) {
	if vectors == nil {
		return nil, ErrVectorRepositoryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	s := &Searcher{
		vectors:  vectors,
		embedder: provider.Embedder(),
		topK:     DefaultTopK,
		logger:   slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "search")

	return s, nil
}

// TopK returns the default number of results.
func (s *Searcher) TopK() int {
	return s.topK
}

// Search returns up to topK chunks similar to query that pass filter.
// A topK <= 0 selects the searcher default. The searcher's minimum score
// applies unless filter asks for a higher one.
func (s *Searcher) Search(ctx context.Context, query string, topK int, filter *storage.Filter) ([]*core.SearchResult, error) {
	return s.SearchWithMonitor(ctx, query, topK, filter, nil)
}

// SearchWithMonitor is Search with callbacks at each stage.
func (s *Searcher) SearchWithMonitor(ctx context.Context, query string, topK int, filter *storage.Filter, monitor SearchMonitor) ([]*core.SearchResult, error) {
	// Use noop monitor if none provided
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if topK <= 0 {
		topK = s.topK
	}

	monitor.Start(query, topK)

	embedding, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "err", err)
		if !errors.Is(err, core.ErrEmbeddingBackend) {
			err = fmt.Errorf("%w: %w", core.ErrEmbeddingBackend, err)
		}
		return nil, err
	}
	monitor.AfterEmbedding(embedding)

	results, err := s.vectors.SimilaritySearch(ctx, embedding, topK, s.effectiveFilter(filter))
	if err != nil {
		s.logger.Error("error querying for similar records", "err", err)
		return nil, err
	}
	monitor.AfterSimilaritySearch(results)

	if s.keywordBoost > 0 {
		for _, result := range results {
			if containsAllQueryWords(result.Record.Text, query) {
				result.Score += s.keywordBoost
				monitor.KeywordHit(result)
			}
		}
		results = storage.Rank(results, topK)
	}

	s.logger.Debug("search finished", "results", len(results), "top_k", topK)
	monitor.Finish(results)
	return results, nil
}

func (s *Searcher) effectiveFilter(filter *storage.Filter) *storage.Filter {
	if s.minScore == nil {
		return filter
	}
	if filter == nil {
		return &storage.Filter{MinScore: s.minScore}
	}
	effective := *filter
	if effective.MinScore == nil || *effective.MinScore < *s.minScore {
		effective.MinScore = s.minScore
	}
	return &effective
}
