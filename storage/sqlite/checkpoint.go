package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/poiesic/pagewise/storage"
)

type checkpointRepository struct {
	db    *sql.DB
	table string
}

var _ storage.CheckpointRepository = (*checkpointRepository)(nil)

func newCheckpointRepository(db *sql.DB, vectorTable string) *checkpointRepository {
	return &checkpointRepository{db: db, table: vectorTable + "_checkpoints"}
}

func (r *checkpointRepository) SaveCheckpoint(ctx context.Context, checkpoint *storage.Checkpoint) error {
	checkpoint.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
	_, err := r.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (name, last_node_id, processed, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			last_node_id = excluded.last_node_id,
			processed = excluded.processed,
			updated_at = excluded.updated_at
	`, r.table), checkpoint.Name, checkpoint.LastNodeID, checkpoint.Processed, checkpoint.UpdatedAt.UnixMicro())
	return storage.Unavailable(err)
}

func (r *checkpointRepository) LoadCheckpoint(ctx context.Context, name string) (*storage.Checkpoint, error) {
	checkpoint := &storage.Checkpoint{Name: name}
	var updatedAt int64
	err := r.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT last_node_id, processed, updated_at FROM %s WHERE name = ?", r.table), name).
		Scan(&checkpoint.LastNodeID, &checkpoint.Processed, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storage.Unavailable(err)
	}
	checkpoint.UpdatedAt = time.UnixMicro(updatedAt).UTC()
	return checkpoint, nil
}

func (r *checkpointRepository) DeleteCheckpoint(ctx context.Context, name string) error {
	_, err := r.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE name = ?", r.table), name)
	return storage.Unavailable(err)
}
