package ingestion

import (
	"context"
	"testing"

	"github.com/poiesic/pagewise/ai/mock"
	"github.com/poiesic/pagewise/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestText(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	provider := mock.NewMockProvider()
	source := newTestSource()
	p := setupTestPipeline(t, source, store, provider, WithChunking(20, 5), WithSpaceWhitelist("OPS"))

	result, err := p.IngestText(ctx, TextDocument{
		ID:       "note-1",
		Text:     "  Alpha paragraph. Beta paragraph.\n",
		Metadata: map[string]string{core.MetaTitle: "Release notes", core.MetaSpaceKey: "ENG"},
		Labels:   []string{"Ops", "ops", "Runbook"},
		Type:     "confluence",
	})
	require.NoError(t, err)
	assert.Equal(t, StagePersisted, result.Stage)
	assert.Equal(t, 2, result.Records)
	assert.Zero(t, source.calls, "text ingestion never fetches")

	records, err := store.Vectors().DocumentRecords(ctx, "note-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "note-1#0", records[0].NodeID)
	assert.Equal(t, "Alpha paragraph. ", records[0].Text)
	meta := records[1].Metadata
	assert.Equal(t, "Release notes", meta[core.MetaTitle])
	assert.Equal(t, "note-1", meta[core.MetaPageID])
	assert.Equal(t, "ops,runbook", meta[core.MetaLabels])
	assert.Equal(t, "confluence", meta[core.MetaDocumentType])
}

func TestIngestTextKeepsCallerDocumentType(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	p := setupTestPipeline(t, newTestSource(), store, mock.NewMockProvider())

	_, err := p.IngestText(ctx, TextDocument{
		ID:       "n2",
		Text:     "Short note.",
		Metadata: map[string]string{core.MetaDocumentType: "manual"},
		Type:     "confluence",
	})
	require.NoError(t, err)

	records, err := store.Vectors().DocumentRecords(ctx, "n2")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "manual", records[0].Metadata[core.MetaDocumentType])
}

func TestIngestTextRejectsBadInput(t *testing.T) {
	provider := mock.NewMockProvider()
	p := setupTestPipeline(t, newTestSource(), setupTestStore(t), provider)

	_, err := p.IngestText(context.Background(), TextDocument{ID: " ", Text: "text"})
	assert.ErrorIs(t, err, ErrDocumentIDRequired)

	_, err = p.IngestText(context.Background(), TextDocument{ID: "n1", Text: " \n\t"})
	assert.ErrorIs(t, err, ErrEmptyText)
	assert.Zero(t, provider.GetMockEmbedder().CallCount())

	require.NoError(t, p.Release())
	_, err = p.IngestText(context.Background(), TextDocument{ID: "n1", Text: "text"})
	assert.ErrorIs(t, err, ErrPipelineClosed)
}

func TestIngestTextEmbeddingFailure(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	provider := mock.NewMockProvider()
	provider.GetMockEmbedder().FailOn = "broken"
	p := setupTestPipeline(t, newTestSource(), store, provider)

	_, err := p.IngestText(ctx, TextDocument{ID: "n3", Text: "A broken note."})
	assert.ErrorIs(t, err, core.ErrEmbeddingBackend)
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageEmbedded, stageErr.Stage)

	count, err := store.Vectors().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}
