package langchain

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/pagewise/ai"
	"github.com/poiesic/pagewise/core"
	"github.com/tmc/langchaingo/embeddings"
)

// Embedder implements ai.Embedder on top of any langchaingo embedding client.
type Embedder struct {
	embedder  embeddings.Embedder
	dimension int
	logger    *slog.Logger
}

var _ ai.Embedder = (*Embedder)(nil)

// NewEmbedder wraps client in a langchaingo embedder that strips newlines and
// batches requests. Every response is checked against dimension.
func NewEmbedder(client embeddings.EmbedderClient, dimension, batchSize int, logger *slog.Logger) (*Embedder, error) {
	if client == nil {
		return nil, fmt.Errorf("embedding client required")
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be greater than 0")
	}
	if logger == nil {
		logger = slog.Default()
	}
	opts := []embeddings.Option{embeddings.WithStripNewLines(true)}
	if batchSize > 0 {
		opts = append(opts, embeddings.WithBatchSize(batchSize))
	}
	embedder, err := embeddings.NewEmbedder(client, opts...)
	if err != nil {
		return nil, err
	}
	return &Embedder{
		embedder:  embedder,
		dimension: dimension,
		logger:    logger,
	}, nil
}

// Dimension returns the configured vector length.
func (e *Embedder) Dimension() int {
	return e.dimension
}

// EmbedText generates a vector embedding for a single text string.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	e.logger.Debug("generating embedding for single text", "length", len(text))

	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts generates vector embeddings for multiple text strings in a batch.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	e.logger.Debug("generating embeddings for texts", "count", len(texts))

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, fmt.Errorf("%w: %w", core.ErrEmbeddingBackend, err)
	}
	if err := ai.CheckEmbeddings(len(texts), e.dimension, vectors); err != nil {
		e.logger.Error("embedding backend returned malformed output", "err", err)
		return nil, err
	}
	return vectors, nil
}
