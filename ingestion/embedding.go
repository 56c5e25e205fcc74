package ingestion

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/poiesic/pagewise/ai"
	"github.com/poiesic/pagewise/core"
)

// embedChunks embeds every chunk in one batch and builds the records to store.
// Any failure fails the whole batch, so no partial set of records is produced.
func embedChunks(ctx context.Context, embedder ai.Embedder, chunks []core.Chunk) ([]*core.VectorRecord, error) {
	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Text
	}

	embeddings, err := embedder.EmbedTexts(ctx, texts)
	if err != nil {
		if !errors.Is(err, core.ErrEmbeddingBackend) {
			err = fmt.Errorf("%w: %w", core.ErrEmbeddingBackend, err)
		}
		return nil, err
	}
	if err := ai.CheckEmbeddings(len(chunks), embedder.Dimension(), embeddings); err != nil {
		return nil, err
	}

	records := make([]*core.VectorRecord, len(chunks))
	for i, chunk := range chunks {
		records[i] = &core.VectorRecord{
			NodeID:     chunk.NodeID,
			DocumentID: chunk.DocumentID,
			ChunkIndex: chunk.Index,
			Vector:     embeddings[i],
			Text:       chunk.Text,
			Metadata:   maps.Clone(chunk.Metadata),
		}
	}
	return records, nil
}
