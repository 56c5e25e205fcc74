package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/poiesic/pagewise/core"
	"github.com/poiesic/pagewise/storage"
	"github.com/poiesic/pagewise/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStore creates a SQLite store in a temporary directory.
func setupTestStore(t *testing.T, schema storage.Schema) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "pagewise.db"), schema)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, store.Close()) })
	return store
}

func TestStoreContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return setupTestStore(t, storagetest.Schema())
	})
}

func TestOpenCreatesNamedTables(t *testing.T) {
	schema := storagetest.Schema()
	schema.VectorTable = "confluence_pages"
	schema.ConversationTable = "conversation_history"
	store := setupTestStore(t, schema)

	var names []string
	rows, err := store.db.Query("SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		names = append(names, name)
	}
	assert.Equal(t, []string{
		"confluence_pages",
		"confluence_pages_checkpoints",
		"confluence_pages_schema",
		"conversation_history",
	}, names)
}

func TestOpenRejectsUnsafeTableName(t *testing.T) {
	schema := storagetest.Schema()
	schema.VectorTable = "pages; DROP TABLE x"
	_, err := Open(filepath.Join(t.TempDir(), "x.db"), schema)
	assert.ErrorIs(t, err, storage.ErrInvalidSchema)
}

func TestReopenKeepsSchemaAndData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "pagewise.db")
	ctx := context.Background()

	store, err := Open(path, storagetest.Schema())
	require.NoError(t, err)
	require.NoError(t, store.Vectors().EnsureSchema(ctx, storagetest.Dimension, storage.MetricCosine))
	_, err = store.Vectors().Upsert(ctx, storagetest.Record("P1", 0, 1, 0, 0))
	require.NoError(t, err)
	_, err = store.Conversations().Append(ctx, &core.ConversationTurn{ConversationID: "c", Role: core.RoleUser, Content: "hi"})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = Open(path, storagetest.Schema())
	require.NoError(t, err)
	defer store.Close()

	err = store.Vectors().EnsureSchema(ctx, 1024, storage.MetricCosine)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)

	count, err := store.Vectors().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	added, err := store.Conversations().Append(ctx, &core.ConversationTurn{ConversationID: "c", Role: core.RoleAssistant, Content: "hello"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), added[0].Index)
}

func TestClosedStoreIsUnavailable(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "x.db"), storagetest.Schema())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	ctx := context.Background()
	_, err = store.Vectors().Upsert(ctx, storagetest.Record("P1", 0, 1, 0, 0))
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)

	_, err = store.Conversations().Recent(ctx, "c", 3)
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
}

func TestUpsertUpdatesRow(t *testing.T) {
	store := setupTestStore(t, storagetest.Schema())
	ctx := context.Background()

	_, err := store.Vectors().Upsert(ctx, storagetest.Record("P1", 0, 1, 0, 0))
	require.NoError(t, err)
	changed := storagetest.Record("P1", 0, 0, 1, 0)
	changed.Text = "rewritten"
	_, err = store.Vectors().Upsert(ctx, changed)
	require.NoError(t, err)

	var rows int
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM pages WHERE node_id = 'P1#0'").Scan(&rows))
	assert.Equal(t, 1, rows)

	got, err := store.Vectors().GetRecords(ctx, "P1#0")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "rewritten", got[0].Text)
	assert.Equal(t, []float32{0, 1, 0}, got[0].Vector)
	assert.False(t, got[0].UpdatedAt.IsZero())
}
