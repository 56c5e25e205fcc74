package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/poiesic/pagewise/core"
	"github.com/poiesic/pagewise/storage"
)

const recordColumns = "node_id, document_id, chunk_index, text, metadata, embedding, updated_at"

type vectorRepository struct {
	db    *sql.DB
	table string

	mu        sync.RWMutex
	dimension int
	metric    storage.Metric
}

var _ storage.VectorRepository = (*vectorRepository)(nil)

func newVectorRepository(db *sql.DB, table string, dimension int, metric storage.Metric) *vectorRepository {
	return &vectorRepository{db: db, table: table, dimension: dimension, metric: metric}
}

func (r *vectorRepository) settings() (int, storage.Metric) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dimension, r.metric
}

// EnsureSchema records dimension and metric on first use and verifies them afterwards.
func (r *vectorRepository) EnsureSchema(ctx context.Context, dimension int, metric storage.Metric) error {
	metric, err := storage.ParseMetric(string(metric))
	if err != nil {
		return err
	}
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension must be greater than 0", storage.ErrInvalidSchema)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.Unavailable(err)
	}
	defer tx.Rollback() //nolint:errcheck

	var (
		recordedDim    int
		recordedMetric string
	)
	err = tx.QueryRowContext(ctx, fmt.Sprintf("SELECT dimension, metric FROM %s_schema WHERE id = 1", r.table)).
		Scan(&recordedDim, &recordedMetric)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s_schema (id, dimension, metric) VALUES (1, ?, ?)", r.table),
			dimension, string(metric)); err != nil {
			return storage.Unavailable(err)
		}
		if err := tx.Commit(); err != nil {
			return storage.Unavailable(err)
		}
	case err != nil:
		return storage.Unavailable(err)
	case recordedDim != dimension:
		return fmt.Errorf("%w: table %s stores %d dimensions, embedder produces %d",
			core.ErrDimensionMismatch, r.table, recordedDim, dimension)
	case storage.Metric(recordedMetric) != metric:
		return fmt.Errorf("%w: table %s uses metric %s, configured %s",
			storage.ErrInvalidSchema, r.table, recordedMetric, metric)
	}

	r.mu.Lock()
	r.dimension = dimension
	r.metric = metric
	r.mu.Unlock()
	return nil
}

// Upsert writes all records in one transaction, replacing existing node ids.
func (r *vectorRepository) Upsert(ctx context.Context, records ...*core.VectorRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	dimension, _ := r.settings()
	metadata := make([]string, len(records))
	for i, record := range records {
		if err := core.ValidateRecord(record, dimension); err != nil {
			return 0, err
		}
		encoded, err := storage.EncodeMetadata(record.Metadata)
		if err != nil {
			return 0, err
		}
		metadata[i] = encoded
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storage.Unavailable(fmt.Errorf("beginning transaction: %w", err))
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET
			document_id = excluded.document_id,
			chunk_index = excluded.chunk_index,
			text = excluded.text,
			metadata = excluded.metadata,
			embedding = excluded.embedding,
			updated_at = excluded.updated_at
	`, r.table, recordColumns))
	if err != nil {
		return 0, storage.Unavailable(fmt.Errorf("preparing statement: %w", err))
	}
	defer stmt.Close()

	now := time.Now().UTC().Truncate(time.Microsecond)
	for i, record := range records {
		if _, err := stmt.ExecContext(ctx, record.NodeID, record.DocumentID, record.ChunkIndex,
			record.Text, metadata[i], storage.EncodeVector(record.Vector), now.UnixMicro()); err != nil {
			return 0, storage.Unavailable(fmt.Errorf("saving record %s: %w", record.NodeID, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, storage.Unavailable(fmt.Errorf("committing transaction: %w", err))
	}
	for _, record := range records {
		record.UpdatedAt = now
	}
	return len(records), nil
}

// SimilaritySearch scores every record that passes filter and keeps the best topK.
func (r *vectorRepository) SimilaritySearch(ctx context.Context, vector []float32, topK int, filter *storage.Filter) ([]*core.SearchResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be greater than 0", storage.ErrInvalidQuery)
	}
	dimension, metric := r.settings()
	if len(vector) != dimension {
		return nil, fmt.Errorf("%w: %w: query has %d dimensions, expected %d",
			storage.ErrInvalidQuery, core.ErrDimensionMismatch, len(vector), dimension)
	}

	query := fmt.Sprintf("SELECT %s FROM %s", recordColumns, r.table)
	var args []any
	if filter != nil && filter.DocumentID != "" {
		query += " WHERE document_id = ?"
		args = append(args, filter.DocumentID)
	}

	var results []*core.SearchResult
	err := r.query(ctx, query, args, func(record *core.VectorRecord) {
		results = storage.Collect(results, metric, vector, record, filter)
	})
	if err != nil {
		return nil, err
	}
	return storage.Rank(results, topK), nil
}

// GetRecords retrieves records by node id, skipping missing ones.
func (r *vectorRepository) GetRecords(ctx context.Context, nodeIDs ...string) ([]*core.VectorRecord, error) {
	if len(nodeIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(nodeIDs)), ",")
	args := make([]any, len(nodeIDs))
	for i, id := range nodeIDs {
		args[i] = id
	}

	byID := make(map[string]*core.VectorRecord, len(nodeIDs))
	err := r.query(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE node_id IN (%s)", recordColumns, r.table, placeholders),
		args, func(record *core.VectorRecord) {
			byID[record.NodeID] = record
		})
	if err != nil {
		return nil, err
	}

	// keep the caller's order
	var results []*core.VectorRecord
	for _, id := range nodeIDs {
		if record, ok := byID[id]; ok {
			results = append(results, record)
			delete(byID, id)
		}
	}
	return results, nil
}

// DocumentRecords returns a document's records ordered by chunk index.
func (r *vectorRepository) DocumentRecords(ctx context.Context, documentID string) ([]*core.VectorRecord, error) {
	var results []*core.VectorRecord
	err := r.query(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE document_id = ? ORDER BY chunk_index", recordColumns, r.table),
		[]any{documentID}, func(record *core.VectorRecord) {
			results = append(results, record)
		})
	return results, err
}

// ForEach streams every record in node id order.
func (r *vectorRepository) ForEach(ctx context.Context, batchSize int, fn func(ctx context.Context, records []*core.VectorRecord) error) error {
	return r.ForEachAfter(ctx, "", batchSize, fn)
}

// ForEachAfter streams records with node ids after afterNodeID using keyset pagination.
func (r *vectorRepository) ForEachAfter(ctx context.Context, afterNodeID string, batchSize int, fn func(ctx context.Context, records []*core.VectorRecord) error) error {
	if batchSize <= 0 {
		return fmt.Errorf("%w: batch size must be greater than 0", storage.ErrInvalidQuery)
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE node_id > ? ORDER BY node_id LIMIT ?", recordColumns, r.table)
	after := afterNodeID
	for {
		batch := make([]*core.VectorRecord, 0, batchSize)
		err := r.query(ctx, query, []any{after, batchSize}, func(record *core.VectorRecord) {
			batch = append(batch, record)
		})
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		if err := fn(ctx, batch); err != nil {
			return err
		}
		if len(batch) < batchSize {
			return nil
		}
		after = batch[len(batch)-1].NodeID
	}
}

// Count returns the number of stored records.
func (r *vectorRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", r.table)).Scan(&count); err != nil {
		return 0, storage.Unavailable(err)
	}
	return count, nil
}

func (r *vectorRepository) query(ctx context.Context, query string, args []any, fn func(record *core.VectorRecord)) error {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return storage.Unavailable(err)
	}
	defer rows.Close()

	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return err
		}
		fn(record)
	}
	if err := rows.Err(); err != nil {
		return storage.Unavailable(err)
	}
	return nil
}

func scanRecord(rows *sql.Rows) (*core.VectorRecord, error) {
	var (
		record    core.VectorRecord
		metadata  string
		embedding []byte
		updatedAt int64
	)
	if err := rows.Scan(&record.NodeID, &record.DocumentID, &record.ChunkIndex, &record.Text,
		&metadata, &embedding, &updatedAt); err != nil {
		return nil, storage.Unavailable(err)
	}
	var err error
	if record.Metadata, err = storage.DecodeMetadata(metadata); err != nil {
		return nil, err
	}
	if record.Vector, err = storage.DecodeVector(embedding); err != nil {
		return nil, err
	}
	record.UpdatedAt = time.UnixMicro(updatedAt).UTC()
	return &record, nil
}
