package badger

import (
	"context"
	"testing"

	"github.com/poiesic/pagewise/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	checkpoints := store.Checkpoints()

	missing, err := checkpoints.LoadCheckpoint(ctx, "reembed")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, checkpoints.SaveCheckpoint(ctx, &storage.Checkpoint{Name: "reembed", LastNodeID: "P1#3", Processed: 4}))

	loaded, err := checkpoints.LoadCheckpoint(ctx, "reembed")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "P1#3", loaded.LastNodeID)
	assert.Equal(t, 4, loaded.Processed)
	assert.False(t, loaded.UpdatedAt.IsZero())

	// checkpoints never show up as vector records
	count, err := store.Vectors().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, checkpoints.DeleteCheckpoint(ctx, "reembed"))
	loaded, err = checkpoints.LoadCheckpoint(ctx, "reembed")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}
