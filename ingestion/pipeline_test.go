package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/pagewise/ai/mock"
	"github.com/poiesic/pagewise/core"
	"github.com/poiesic/pagewise/storage"
	"github.com/poiesic/pagewise/storage/badger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testSource implements DocumentSource from an in-memory map.
type testSource struct {
	mu    sync.Mutex
	docs  map[string]*core.Document
	calls int
	// block, when set, holds every Fetch until it is closed or ctx ends.
	block chan struct{}
}

func newTestSource(docs ...*core.Document) *testSource {
	s := &testSource{docs: make(map[string]*core.Document)}
	for _, doc := range docs {
		s.docs[doc.ID] = doc
	}
	return s
}

func (s *testSource) Fetch(ctx context.Context, id string) (*core.Document, error) {
	s.mu.Lock()
	s.calls++
	block := s.block
	doc, ok := s.docs[id]
	s.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", core.ErrFetch, ctx.Err())
		}
	}
	if !ok {
		return nil, fmt.Errorf("%w: page %s not found", core.ErrFetch, id)
	}
	return doc, nil
}

func page(id, space, body string) *core.Document {
	return &core.Document{
		ID:       id,
		Body:     body,
		Version:  3,
		Title:    "Page " + id,
		SpaceKey: space,
		Author:   "ada",
		URL:      "https://example.atlassian.net/wiki/pages/" + id,
		Labels:   []string{"HowTo"},
	}
}

func setupTestStore(t *testing.T) storage.Store {
	t.Helper()
	schema := storage.DefaultSchema()
	schema.Dimension = mock.DefaultDimension
	store, err := badger.NewMemoryStore(schema)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func setupTestPipeline(t *testing.T, source DocumentSource, store storage.Store, provider *mock.MockProvider, opts ...Option) *Pipeline {
	t.Helper()
	p, err := NewPipeline(source, store.Vectors(), provider, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Release() })
	return p
}

func TestNewPipelineRequiresDependencies(t *testing.T) {
	store := setupTestStore(t)
	provider := mock.NewMockProvider()

	_, err := NewPipeline(nil, store.Vectors(), provider)
	assert.ErrorIs(t, err, ErrSourceRequired)
	_, err = NewPipeline(newTestSource(), nil, provider)
	assert.ErrorIs(t, err, ErrVectorRepositoryRequired)
	_, err = NewPipeline(newTestSource(), store.Vectors(), nil)
	assert.ErrorIs(t, err, ErrAIProviderRequired)
	_, err = NewPipeline(newTestSource(), store.Vectors(), provider, WithQueueSize(0))
	assert.Error(t, err)
}

func TestIngestTwoChunkPage(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	provider := mock.NewMockProvider()
	source := newTestSource(page("P1", "ENG", "<p>Alpha paragraph. Beta paragraph.</p>"))
	p := setupTestPipeline(t, source, store, provider, WithChunking(20, 5))

	result, err := p.Ingest(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, StagePersisted, result.Stage)
	assert.Equal(t, 2, result.Chunks)
	assert.Equal(t, 2, result.Records)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 1, provider.GetMockEmbedder().CallCount())

	records, err := store.Vectors().DocumentRecords(ctx, "P1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "P1#0", records[0].NodeID)
	assert.Equal(t, "P1#1", records[1].NodeID)
	assert.Equal(t, "Alpha paragraph. ", records[0].Text)
	assert.Equal(t, "ENG", records[1].Metadata[core.MetaSpaceKey])
	assert.Equal(t, "howto", records[1].Metadata[core.MetaLabels])
	assert.Equal(t, "2", records[1].Metadata[core.MetaTotalChunks])
	assert.Equal(t, mock.Vector("Alpha paragraph. ", mock.DefaultDimension), records[0].Vector)

	// A second run rewrites the same node ids.
	_, err = p.Ingest(ctx, "P1")
	require.NoError(t, err)
	count, err := store.Vectors().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestIngestEmptyDocument(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	provider := mock.NewMockProvider()
	p := setupTestPipeline(t, newTestSource(page("E1", "ENG", "<p>  </p><script>x()</script>")), store, provider)

	result, err := p.Ingest(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, StagePersisted, result.Stage)
	assert.Zero(t, result.Records)
	assert.Zero(t, provider.GetMockEmbedder().CallCount())

	count, err := store.Vectors().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestIngestEmbeddingFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	provider := mock.NewMockProvider()
	provider.GetMockEmbedder().FailOn = "third"

	body := "<p>Section first.</p><p>Section second.</p><p>Section third.</p><p>Section fourth.</p><p>Section fifth.</p>"
	p := setupTestPipeline(t, newTestSource(page("P5", "ENG", body)), store, provider, WithChunking(20, 0))

	_, err := p.Ingest(ctx, "P5")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrEmbeddingBackend)

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, StageEmbedded, stageErr.Stage)
	assert.Equal(t, "P5", stageErr.DocumentID)
	assert.Len(t, provider.GetMockEmbedder().Texts(), 5)

	records, err := store.Vectors().DocumentRecords(ctx, "P5")
	require.NoError(t, err)
	assert.Empty(t, records)

	provider.GetMockEmbedder().FailOn = ""
	result, err := p.Ingest(ctx, "P5")
	require.NoError(t, err)
	assert.Equal(t, 5, result.Records)
}

func TestIngestFetchFailure(t *testing.T) {
	p := setupTestPipeline(t, newTestSource(), setupTestStore(t), mock.NewMockProvider())

	_, err := p.Ingest(context.Background(), "missing")
	assert.ErrorIs(t, err, core.ErrFetch)
	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, StageFetched, stageErr.Stage)

	_, err = p.Ingest(context.Background(), " ")
	assert.ErrorIs(t, err, ErrDocumentIDRequired)
}

func TestIngestDimensionMismatch(t *testing.T) {
	provider := mock.NewMockProviderWithServices(mock.NewMockEmbedder(4), mock.NewMockGenerator())
	p := setupTestPipeline(t, newTestSource(page("P1", "ENG", "<p>text</p>")), setupTestStore(t), provider)

	_, err := p.Ingest(context.Background(), "P1")
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, StagePersisted, stageErr.Stage)
}

func TestIngestSkipsSpacesOutsideWhitelist(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	provider := mock.NewMockProvider()
	source := newTestSource(page("P1", "HR", "<p>private</p>"), page("P2", "eng", "<p>public</p>"))
	p := setupTestPipeline(t, source, store, provider, WithSpaceWhitelist(" ENG ", "OPS"))

	result, err := p.Ingest(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, StageSkipped, result.Stage)
	assert.Contains(t, result.Reason, "HR")
	assert.Zero(t, provider.GetMockEmbedder().CallCount())

	result, err = p.Ingest(ctx, "P2")
	require.NoError(t, err)
	assert.Equal(t, StagePersisted, result.Stage)
}

func TestSubmitIngestsInBackground(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	var mu sync.Mutex
	var results []*Result
	hook := func(result *Result, err error) {
		assert.NoError(t, err)
		mu.Lock()
		defer mu.Unlock()
		results = append(results, result)
	}

	source := newTestSource(page("P1", "ENG", "<p>one</p>"), page("P2", "ENG", "<p>two</p>"))
	p := setupTestPipeline(t, source, store, mock.NewMockProvider(), WithPoolSize(2), WithResultHook(hook))

	require.NoError(t, p.Submit(Event{DocumentID: "P1", Kind: KindCreated}))
	require.NoError(t, p.Submit(Event{DocumentID: "P2", Kind: KindUpdated}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(results) == 2
	}, 5*time.Second, 10*time.Millisecond)

	count, err := store.Vectors().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSubmitReportsBackgroundFailures(t *testing.T) {
	errs := make(chan error, 1)
	p := setupTestPipeline(t, newTestSource(), setupTestStore(t), mock.NewMockProvider(),
		WithResultHook(func(result *Result, err error) {
			assert.Nil(t, result)
			errs <- err
		}))

	require.NoError(t, p.Submit(Event{DocumentID: "ghost", Kind: KindUpdated}))
	select {
	case err := <-errs:
		assert.ErrorIs(t, err, core.ErrFetch)
	case <-time.After(5 * time.Second):
		t.Fatal("result hook not called")
	}
}

func TestSubmitIgnoresOtherKinds(t *testing.T) {
	source := newTestSource(page("P1", "ENG", "<p>x</p>"))
	p := setupTestPipeline(t, source, setupTestStore(t), mock.NewMockProvider())

	err := p.Submit(Event{DocumentID: "P1", Kind: KindFromWebhook("page_removed")})
	assert.ErrorIs(t, err, ErrIgnoredEvent)
	assert.ErrorIs(t, p.Submit(Event{Kind: KindCreated}), ErrDocumentIDRequired)
	assert.Zero(t, p.QueueLength())
}

func TestSubmitQueueFull(t *testing.T) {
	source := newTestSource(page("P1", "ENG", "<p>x</p>"))
	source.block = make(chan struct{})
	p := setupTestPipeline(t, source, setupTestStore(t), mock.NewMockProvider(), WithPoolSize(1), WithQueueSize(1))

	// One run in the worker, one held by the dispatcher and one queued at most.
	var full bool
	for range 10 {
		if err := p.Submit(Event{DocumentID: "P1", Kind: KindUpdated}); err != nil {
			require.ErrorIs(t, err, ErrQueueFull)
			full = true
			break
		}
	}
	assert.True(t, full)

	close(source.block)
	require.NoError(t, p.Release())
}

func TestReleaseStopsIntake(t *testing.T) {
	store := setupTestStore(t)
	source := newTestSource(page("P1", "ENG", "<p>x</p>"))
	p, err := NewPipeline(source, store.Vectors(), mock.NewMockProvider())
	require.NoError(t, err)

	require.NoError(t, p.Submit(Event{DocumentID: "P1", Kind: KindCreated}))
	require.NoError(t, p.Release())
	require.NoError(t, p.Release())

	// Queued work finished before Release returned.
	count, err := store.Vectors().Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	assert.ErrorIs(t, p.Submit(Event{DocumentID: "P1", Kind: KindCreated}), ErrPipelineClosed)
	_, err = p.Ingest(context.Background(), "P1")
	assert.ErrorIs(t, err, ErrPipelineClosed)
}

func TestReleaseTimeoutCancelsRuns(t *testing.T) {
	source := newTestSource(page("P1", "ENG", "<p>x</p>"))
	source.block = make(chan struct{})
	defer close(source.block)

	errs := make(chan error, 1)
	p, err := NewPipeline(source, setupTestStore(t).Vectors(), mock.NewMockProvider(),
		WithReleaseTimeout(50*time.Millisecond),
		WithResultHook(func(_ *Result, err error) { errs <- err }))
	require.NoError(t, err)

	require.NoError(t, p.Submit(Event{DocumentID: "P1", Kind: KindCreated}))
	assert.ErrorIs(t, p.Release(), ErrReleaseTimeout)

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled run not reported")
	}
}

func TestPipelineMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	source := newTestSource(page("P1", "ENG", "<p>Alpha paragraph. Beta paragraph.</p>"))
	p := setupTestPipeline(t, source, setupTestStore(t), mock.NewMockProvider(),
		WithRegisterer(reg), WithChunking(20, 5))

	_, err := p.Ingest(context.Background(), "P1")
	require.NoError(t, err)
	_, err = p.Ingest(context.Background(), "missing")
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.runs.WithLabelValues("persisted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.runs.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.failures.WithLabelValues(string(StageFetched))))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.metrics.records))

	// A second pipeline on the same registry shares the collectors.
	other, err := NewPipeline(source, setupTestStore(t).Vectors(), mock.NewMockProvider(), WithRegisterer(reg))
	require.NoError(t, err)
	defer other.Release()
	assert.Same(t, p.metrics.runs, other.metrics.runs)
}

func TestKindFromWebhook(t *testing.T) {
	tests := map[string]Kind{
		"page_created":   KindCreated,
		"page_published": KindCreated,
		"page_updated":   KindUpdated,
		"page_edited":    KindUpdated,
		"page_removed":   KindUnknown,
		"":               KindUnknown,
	}
	for event, want := range tests {
		assert.Equal(t, want, KindFromWebhook(event), event)
	}
}
