package reembed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/poiesic/pagewise/ai"
	"github.com/poiesic/pagewise/core"
	"github.com/poiesic/pagewise/storage"
)

// BatchProcessor embeds batches of records with the new model and writes them
// to the target repository.
type BatchProcessor struct {
	target         storage.VectorRepository
	embedder       ai.Embedder
	maxRetries     int
	retryBaseDelay time.Duration
	normalize      bool
}

// NewBatchProcessor creates a new batch processor.
// maxRetries: maximum number of attempts for each embedding call
// retryBaseDelay: base delay for exponential backoff
// normalize: scale new vectors to unit length before writing
func NewBatchProcessor(target storage.VectorRepository, embedder ai.Embedder, maxRetries int, retryBaseDelay time.Duration, normalize bool) *BatchProcessor {
	return &BatchProcessor{
		target:         target,
		embedder:       embedder,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
		normalize:      normalize,
	}
}

// Process re-embeds the text of records and upserts copies carrying the new
// vectors. The input records are not modified. A batch is written completely
// or not at all.
func (bp *BatchProcessor) Process(ctx context.Context, records []*core.VectorRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	texts := make([]string, len(records))
	for i, record := range records {
		texts[i] = record.Text
	}

	dimension := bp.embedder.Dimension()
	var embeddings [][]float32
	err := RetryWithBackoff(ctx, func(ctx context.Context) error {
		vectors, err := bp.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return err
		}
		if err := ai.CheckEmbeddings(len(texts), dimension, vectors); err != nil {
			return Permanent(err)
		}
		embeddings = vectors
		return nil
	}, bp.maxRetries, bp.retryBaseDelay)
	if err != nil {
		return 0, fmt.Errorf("embedding batch starting at %s: %w", records[0].NodeID, err)
	}

	now := time.Now()
	updated := make([]*core.VectorRecord, len(records))
	for i, record := range records {
		copied := *record
		copied.Vector = embeddings[i]
		if bp.normalize {
			copied.Vector = NormalizeVector(copied.Vector)
		}
		copied.UpdatedAt = now
		updated[i] = &copied
	}

	written, err := bp.target.Upsert(ctx, updated...)
	if err != nil {
		if errors.Is(err, core.ErrDimensionMismatch) {
			return 0, fmt.Errorf("target store rejects %d-dimension vectors: %w", dimension, err)
		}
		return 0, fmt.Errorf("writing batch starting at %s: %w", records[0].NodeID, err)
	}
	return written, nil
}
