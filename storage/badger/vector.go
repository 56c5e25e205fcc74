package badger

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/pagewise/core"
	"github.com/poiesic/pagewise/storage"
)

// VectorRepository implements storage.VectorRepository for BadgerDB.
// Records live under the vector table prefix and are scored by brute force.
type VectorRepository struct {
	backend *Backend
	table   string

	mu        sync.RWMutex
	dimension int
	metric    storage.Metric
}

var _ storage.VectorRepository = (*VectorRepository)(nil)

// NewVectorRepository creates a new VectorRepository using the schema's
// vector table, dimension and metric.
func NewVectorRepository(backend *Backend, schema storage.Schema) (*VectorRepository, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	metric, _ := storage.ParseMetric(string(schema.Metric))
	return &VectorRepository{
		backend:   backend,
		table:     schema.VectorTable,
		dimension: schema.Dimension,
		metric:    metric,
	}, nil
}

func (r *VectorRepository) settings() (int, storage.Metric) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dimension, r.metric
}

// EnsureSchema records dimension and metric on first use and verifies them afterwards.
func (r *VectorRepository) EnsureSchema(ctx context.Context, dimension int, metric storage.Metric) error {
	metric, err := storage.ParseMetric(string(metric))
	if err != nil {
		return err
	}
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension must be greater than 0", storage.ErrInvalidSchema)
	}

	err = r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeSchemaKey(r.table)
		item, err := tx.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			value := storage.MarshalSchemaRecord(storage.SchemaRecord{Dimension: dimension, Metric: metric})
			if err := tx.Set(key, value); err != nil {
				return err
			}
			return tx.Commit()
		}
		if err != nil {
			return err
		}

		var recorded storage.SchemaRecord
		if err := item.Value(func(val []byte) error {
			var err error
			recorded, err = storage.UnmarshalSchemaRecord(val)
			return err
		}); err != nil {
			return err
		}
		if recorded.Dimension != dimension {
			return fmt.Errorf("%w: table %s stores %d dimensions, embedder produces %d",
				core.ErrDimensionMismatch, r.table, recorded.Dimension, dimension)
		}
		if recorded.Metric != metric {
			return fmt.Errorf("%w: table %s uses metric %s, configured %s",
				storage.ErrInvalidSchema, r.table, recorded.Metric, metric)
		}
		return nil
	}, true)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.dimension = dimension
	r.metric = metric
	r.mu.Unlock()
	return nil
}

// Upsert writes all records in one transaction, replacing existing node ids.
func (r *VectorRepository) Upsert(ctx context.Context, records ...*core.VectorRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	dimension, _ := r.settings()
	for _, record := range records {
		if err := core.ValidateRecord(record, dimension); err != nil {
			return 0, err
		}
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, record := range records {
			record.UpdatedAt = now
			if err := tx.Set(makeVectorKey(r.table, record.NodeID), storage.MarshalVectorRecord(record)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// SimilaritySearch scores every record that passes filter and keeps the best topK.
func (r *VectorRepository) SimilaritySearch(ctx context.Context, vector []float32, topK int, filter *storage.Filter) ([]*core.SearchResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be greater than 0", storage.ErrInvalidQuery)
	}
	dimension, metric := r.settings()
	if len(vector) != dimension {
		return nil, fmt.Errorf("%w: %w: query has %d dimensions, expected %d",
			storage.ErrInvalidQuery, core.ErrDimensionMismatch, len(vector), dimension)
	}

	prefix := makeVectorPrefix(r.table)
	if filter != nil && filter.DocumentID != "" {
		prefix = makeDocumentPrefix(r.table, filter.DocumentID)
	}

	var results []*core.SearchResult
	err := r.scan(prefix, nil, func(record *core.VectorRecord) error {
		results = storage.Collect(results, metric, vector, record, filter)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return storage.Rank(results, topK), nil
}

// GetRecords retrieves records by node id, skipping missing ones.
func (r *VectorRepository) GetRecords(ctx context.Context, nodeIDs ...string) ([]*core.VectorRecord, error) {
	var results []*core.VectorRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, nodeID := range nodeIDs {
			item, err := tx.Get(makeVectorKey(r.table, nodeID))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			record, err := readRecord(item)
			if err != nil {
				return err
			}
			results = append(results, record)
		}
		return nil
	}, false)
	return results, err
}

// DocumentRecords returns a document's records ordered by chunk index.
func (r *VectorRepository) DocumentRecords(ctx context.Context, documentID string) ([]*core.VectorRecord, error) {
	var results []*core.VectorRecord
	err := r.scan(makeDocumentPrefix(r.table, documentID), nil, func(record *core.VectorRecord) error {
		// "P1#" also prefixes the nodes of a document named "P1#2"
		if record.DocumentID == documentID {
			results = append(results, record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(results, func(a, b *core.VectorRecord) int {
		return cmp.Compare(a.ChunkIndex, b.ChunkIndex)
	})
	return results, nil
}

// ForEach streams every record in node id order.
func (r *VectorRepository) ForEach(ctx context.Context, batchSize int, fn func(ctx context.Context, records []*core.VectorRecord) error) error {
	return r.ForEachAfter(ctx, "", batchSize, fn)
}

// ForEachAfter streams records with node ids after afterNodeID. Each batch is
// read in its own transaction so fn may write to the store.
func (r *VectorRepository) ForEachAfter(ctx context.Context, afterNodeID string, batchSize int, fn func(ctx context.Context, records []*core.VectorRecord) error) error {
	if batchSize <= 0 {
		return fmt.Errorf("%w: batch size must be greater than 0", storage.ErrInvalidQuery)
	}
	var start []byte
	if afterNodeID != "" {
		start = makeVectorKey(r.table, afterNodeID)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch := make([]*core.VectorRecord, 0, batchSize)
		err := r.scan(makeVectorPrefix(r.table), start, func(record *core.VectorRecord) error {
			batch = append(batch, record)
			if len(batch) == batchSize {
				return errStopScan
			}
			return nil
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
		start = makeVectorKey(r.table, batch[len(batch)-1].NodeID)
	}
}

// Count returns the number of stored records.
func (r *VectorRepository) Count(ctx context.Context) (int, error) {
	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = makeVectorPrefix(r.table)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, err
}

var errStopScan = errors.New("stop scan")

// scan decodes every record under prefix. When after is set, iteration starts
// at the first key strictly greater than it. fn may return errStopScan.
func (r *VectorRepository) scan(prefix, after []byte, fn func(record *core.VectorRecord) error) error {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		iter.Rewind()
		if after != nil {
			iter.Seek(after)
			if iter.Valid() && bytes.Equal(iter.Item().Key(), after) {
				iter.Next()
			}
		}
		for ; iter.Valid(); iter.Next() {
			record, err := readRecord(iter.Item())
			if err != nil {
				return err
			}
			if err := fn(record); err != nil {
				return err
			}
		}
		return nil
	}, false)
	if errors.Is(err, errStopScan) {
		return nil
	}
	return err
}

func readRecord(item *badger.Item) (*core.VectorRecord, error) {
	var record *core.VectorRecord
	err := item.Value(func(val []byte) error {
		var err error
		record, err = storage.UnmarshalVectorRecord(val)
		return err
	})
	return record, err
}
