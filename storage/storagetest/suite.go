// Package storagetest holds behaviour tests every storage.Store backend must pass.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/poiesic/pagewise/core"
	"github.com/poiesic/pagewise/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Dimension is the vector length of Schema.
const Dimension = 3

// Schema is the schema the suite expects its stores to be opened with.
func Schema() storage.Schema {
	return storage.Schema{
		VectorTable:       "pages",
		ConversationTable: "history",
		Dimension:         Dimension,
		Metric:            storage.MetricCosine,
	}
}

// Record builds a valid record for documentID at index.
func Record(documentID string, index int, vector ...float32) *core.VectorRecord {
	return &core.VectorRecord{
		NodeID:     core.NodeID(documentID, index),
		DocumentID: documentID,
		ChunkIndex: index,
		Vector:     vector,
		Text:       fmt.Sprintf("%s chunk %d", documentID, index),
		Metadata:   map[string]string{core.MetaSpaceKey: "ENG"},
	}
}

// Run exercises open against the repository contracts. open must return a
// fresh, empty store built from Schema.
func Run(t *testing.T, open func(t *testing.T) storage.Store) {
	t.Run("upsert is idempotent", func(t *testing.T) { testUpsertIdempotent(t, open(t)) })
	t.Run("search ordering and filters", func(t *testing.T) { testSearch(t, open(t)) })
	t.Run("schema dimension check", func(t *testing.T) { testEnsureSchema(t, open(t)) })
	t.Run("foreach pages in node order", func(t *testing.T) { testForEach(t, open(t)) })
	t.Run("conversation append and recent", func(t *testing.T) { testConversation(t, open(t)) })
	t.Run("concurrent appends", func(t *testing.T) { testConcurrentAppends(t, open(t)) })
	t.Run("checkpoints", func(t *testing.T) { testCheckpoints(t, open(t)) })
}

func testUpsertIdempotent(t *testing.T, store storage.Store) {
	ctx := context.Background()
	vectors := store.Vectors()

	for range 2 {
		n, err := vectors.Upsert(ctx, Record("P1", 0, 1, 0, 0), Record("P1", 1, 0, 1, 0))
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	}

	count, err := vectors.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	records, err := vectors.DocumentRecords(ctx, "P1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"P1#0", "P1#1"}, []string{records[0].NodeID, records[1].NodeID})
	assert.Equal(t, []float32{0, 1, 0}, records[1].Vector)
	assert.Equal(t, "ENG", records[1].Metadata[core.MetaSpaceKey])

	_, err = vectors.Upsert(ctx, Record("P1", 2, 1, 0, 0), Record("P1", 3, 1, 0))
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
	count, err = vectors.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count, "a rejected batch writes nothing")

	got, err := vectors.GetRecords(ctx, "P1#1", "missing#0", "P1#0")
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func testSearch(t *testing.T, store storage.Store) {
	ctx := context.Background()
	vectors := store.Vectors()

	labeled := Record("P3", 0, 0.6, 0.8, 0)
	labeled.Metadata[core.MetaLabels] = "howto,ops"
	_, err := vectors.Upsert(ctx, Record("P2", 0, 1, 0, 0), Record("P1", 0, 1, 0, 0), labeled, Record("P4", 0, 0, 0, 1))
	require.NoError(t, err)

	results, err := vectors.SimilaritySearch(ctx, []float32{1, 0, 0}, 3, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "P1#0", results[0].Record.NodeID)
	assert.Equal(t, "P2#0", results[1].Record.NodeID)
	assert.Equal(t, "P3#0", results[2].Record.NodeID)

	results, err = vectors.SimilaritySearch(ctx, []float32{1, 0, 0}, 5, &storage.Filter{Labels: []string{"OPS"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "P3#0", results[0].Record.NodeID)

	results, err = vectors.SimilaritySearch(ctx, []float32{1, 0, 0}, 5, &storage.Filter{MinScore: storage.Threshold(0.9)})
	require.NoError(t, err)
	assert.Len(t, results, 2)

	results, err = vectors.SimilaritySearch(ctx, []float32{1, 0, 0}, 5, &storage.Filter{DocumentID: "P4"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 0, results[0].Score, 1e-6)

	_, err = vectors.SimilaritySearch(ctx, []float32{1, 0}, 5, nil)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func testEnsureSchema(t *testing.T, store storage.Store) {
	ctx := context.Background()
	require.NoError(t, store.Vectors().EnsureSchema(ctx, Dimension, storage.MetricCosine))
	require.NoError(t, store.Vectors().EnsureSchema(ctx, Dimension, storage.MetricCosine))
	assert.ErrorIs(t, store.Vectors().EnsureSchema(ctx, Dimension+1, storage.MetricCosine), core.ErrDimensionMismatch)
}

func testForEach(t *testing.T, store storage.Store) {
	ctx := context.Background()
	for i := range 5 {
		_, err := store.Vectors().Upsert(ctx, Record(fmt.Sprintf("D%d", i), 0, 1, 0, 0))
		require.NoError(t, err)
	}

	var ids []string
	err := store.Vectors().ForEachAfter(ctx, "D1#0", 2, func(ctx context.Context, records []*core.VectorRecord) error {
		for _, r := range records {
			ids = append(ids, r.NodeID)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"D2#0", "D3#0", "D4#0"}, ids)
}

func testConversation(t *testing.T, store storage.Store) {
	ctx := context.Background()
	conversations := store.Conversations()

	for i := range 4 {
		role := core.RoleUser
		if i%2 == 1 {
			role = core.RoleAssistant
		}
		_, err := conversations.Append(ctx, &core.ConversationTurn{ConversationID: "conv1", Role: role, Content: fmt.Sprint(i)})
		require.NoError(t, err)
	}

	recent, err := conversations.Recent(ctx, "conv1", 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, []string{"1", "2", "3"}, []string{recent[0].Content, recent[1].Content, recent[2].Content})
	assert.Equal(t, int64(3), recent[2].Index)
	assert.True(t, recent[2].CreatedAt.After(recent[1].CreatedAt))

	empty, err := conversations.Recent(ctx, "conv1", 0)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = conversations.Append(ctx, &core.ConversationTurn{ConversationID: "conv1", Role: "system"})
	assert.ErrorIs(t, err, core.ErrInvalidTurn)

	require.NoError(t, conversations.Delete(ctx, "conv1"))
	gone, err := conversations.Recent(ctx, "conv1", 10)
	require.NoError(t, err)
	assert.Empty(t, gone)
}

func testConcurrentAppends(t *testing.T, store storage.Store) {
	ctx := context.Background()
	conversations := store.Conversations()

	var wg sync.WaitGroup
	for i := range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := conversations.Append(ctx,
				&core.ConversationTurn{ConversationID: "conv1", Role: core.RoleUser, Content: fmt.Sprint(i)},
				&core.ConversationTurn{ConversationID: "conv1", Role: core.RoleAssistant, Content: fmt.Sprint(i)},
			)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	turns, err := conversations.Recent(ctx, "conv1", 100)
	require.NoError(t, err)
	require.Len(t, turns, 12)
	for i, turn := range turns {
		assert.Equal(t, int64(i), turn.Index)
	}
}

func testCheckpoints(t *testing.T, store storage.Store) {
	ctx := context.Background()
	checkpoints := store.Checkpoints()

	require.NoError(t, checkpoints.SaveCheckpoint(ctx, &storage.Checkpoint{Name: "job", LastNodeID: "P1#0", Processed: 1}))
	require.NoError(t, checkpoints.SaveCheckpoint(ctx, &storage.Checkpoint{Name: "job", LastNodeID: "P2#0", Processed: 2}))

	loaded, err := checkpoints.LoadCheckpoint(ctx, "job")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "P2#0", loaded.LastNodeID)
	assert.Equal(t, 2, loaded.Processed)

	require.NoError(t, checkpoints.DeleteCheckpoint(ctx, "job"))
	loaded, err = checkpoints.LoadCheckpoint(ctx, "job")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}
