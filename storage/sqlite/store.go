package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"text/template"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/poiesic/pagewise/storage"
	"github.com/poiesic/pagewise/storage/sqlite/schema"
)

// Store is a SQLite-backed storage.Store.
type Store struct {
	db     *sql.DB
	path   string
	schema storage.Schema
	logger *slog.Logger

	vectors       *vectorRepository
	conversations *conversationRepository
	checkpoints   *checkpointRepository
}

var _ storage.Store = (*Store)(nil)

// Open opens (creating if needed) the database file at path and creates the
// schema's tables.
func Open(path string, s storage.Schema) (*Store, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_txlock=immediate")
	if err != nil {
		return nil, storage.Unavailable(fmt.Errorf("opening database: %w", err))
	}

	store := &Store{
		db:     db,
		path:   path,
		schema: s,
		logger: slog.Default().With("component", "sqlite", "path", path),
	}
	if err := store.createTables(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	metric, _ := storage.ParseMetric(string(s.Metric))
	store.vectors = newVectorRepository(db, s.VectorTable, s.Dimension, metric)
	store.conversations = newConversationRepository(db, s.ConversationTable)
	store.checkpoints = newCheckpointRepository(db, s.VectorTable)
	return store, nil
}

func (s *Store) createTables(ctx context.Context) error {
	tmpl, err := template.ParseFS(schema.FS, "*.sql.tmpl")
	if err != nil {
		return fmt.Errorf("parsing schema: %w", err)
	}
	var ddl bytes.Buffer
	if err := tmpl.Execute(&ddl, s.schema); err != nil {
		return fmt.Errorf("rendering schema: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, ddl.String()); err != nil {
		return storage.Unavailable(fmt.Errorf("creating tables: %w", err))
	}
	s.logger.Debug("schema ready", "vector_table", s.schema.VectorTable, "conversation_table", s.schema.ConversationTable)
	return nil
}

// Vectors returns the vector repository.
func (s *Store) Vectors() storage.VectorRepository { return s.vectors }

// Conversations returns the conversation repository.
func (s *Store) Conversations() storage.ConversationRepository { return s.conversations }

// Checkpoints returns the checkpoint repository.
func (s *Store) Checkpoints() storage.CheckpointRepository { return s.checkpoints }

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
