package storage

import (
	"context"
	"time"

	"github.com/poiesic/pagewise/core"
)

// VectorRepository stores chunk embeddings keyed by node id.
// Implementations must be thread-safe and support concurrent access.
type VectorRepository interface {
	// EnsureSchema records dimension and metric on first use and verifies them
	// afterwards. A different recorded dimension returns core.ErrDimensionMismatch.
	EnsureSchema(ctx context.Context, dimension int, metric Metric) error

	// Upsert writes records in a single transaction, replacing any record with
	// the same node id. Either every record is written or none is.
	// Returns the number of records written.
	Upsert(ctx context.Context, records ...*core.VectorRecord) (int, error)

	// SimilaritySearch scores every stored record matching filter against vector
	// and returns at most topK results ordered by descending score, ties broken
	// by node id ascending.
	SimilaritySearch(ctx context.Context, vector []float32, topK int, filter *Filter) ([]*core.SearchResult, error)

	// GetRecords retrieves records by node id.
	// Returns only the records that exist (no error for missing ids).
	GetRecords(ctx context.Context, nodeIDs ...string) ([]*core.VectorRecord, error)

	// DocumentRecords returns every record stored for a document, ordered by chunk index.
	DocumentRecords(ctx context.Context, documentID string) ([]*core.VectorRecord, error)

	// ForEach streams all records in node id order, batchSize at a time.
	// Iteration stops at the first error returned by fn.
	ForEach(ctx context.Context, batchSize int, fn func(ctx context.Context, records []*core.VectorRecord) error) error

	// ForEachAfter is ForEach starting after the given node id.
	// An empty afterNodeID starts at the beginning.
	ForEachAfter(ctx context.Context, afterNodeID string, batchSize int, fn func(ctx context.Context, records []*core.VectorRecord) error) error

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)
}

// ConversationRepository is an append-only log of conversation turns.
// Implementations must be thread-safe and support concurrent access.
type ConversationRepository interface {
	// Append assigns Index and CreatedAt to each turn and writes them atomically.
	// Both are strictly increasing within a conversation.
	// Turns may belong to different conversations.
	Append(ctx context.Context, turns ...*core.ConversationTurn) ([]*core.ConversationTurn, error)

	// Recent returns up to limit most recent turns, oldest first.
	// A limit <= 0 returns no turns.
	Recent(ctx context.Context, conversationID string, limit int) ([]*core.ConversationTurn, error)

	// Delete removes every turn of a conversation. Deleting an unknown
	// conversation is not an error.
	Delete(ctx context.Context, conversationID string) error
}

// Store bundles the repositories of one storage backend.
type Store interface {
	Vectors() VectorRepository
	Conversations() ConversationRepository
	Checkpoints() CheckpointRepository

	// Close closes the storage backend and releases resources.
	Close() error
}

// Checkpoint records how far a long-running maintenance job got.
type Checkpoint struct {
	Name       string    `json:"name"`
	LastNodeID string    `json:"last_node_id"`
	Processed  int       `json:"processed"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CheckpointRepository persists job checkpoints.
type CheckpointRepository interface {
	// SaveCheckpoint persists a checkpoint, setting UpdatedAt.
	SaveCheckpoint(ctx context.Context, checkpoint *Checkpoint) error

	// LoadCheckpoint retrieves the checkpoint for a job.
	// Returns nil, nil if no checkpoint exists.
	LoadCheckpoint(ctx context.Context, name string) (*Checkpoint, error)

	// DeleteCheckpoint removes the checkpoint for a job.
	DeleteCheckpoint(ctx context.Context, name string) error
}
