package badger

import (
	"github.com/poiesic/pagewise/storage"
)

// Store bundles the badger repositories sharing one Backend.
type Store struct {
	backend       *Backend
	vectors       *VectorRepository
	conversations *ConversationRepository
	checkpoints   *CheckpointRepository
}

var _ storage.Store = (*Store)(nil)

// Open opens a badger database at path and builds repositories for schema.
func Open(path string, schema storage.Schema) (*Store, error) {
	backend, err := OpenBackend(path, false)
	if err != nil {
		return nil, err
	}
	return newStore(backend, schema)
}

func newStore(backend *Backend, schema storage.Schema) (*Store, error) {
	vectors, err := NewVectorRepository(backend, schema)
	if err != nil {
		backend.Close()
		return nil, err
	}
	conversations, err := NewConversationRepository(backend, schema)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return &Store{
		backend:       backend,
		vectors:       vectors,
		conversations: conversations,
		checkpoints:   NewCheckpointRepository(backend, schema),
	}, nil
}

// Vectors returns the vector repository.
func (s *Store) Vectors() storage.VectorRepository { return s.vectors }

// Conversations returns the conversation repository.
func (s *Store) Conversations() storage.ConversationRepository { return s.conversations }

// Checkpoints returns the checkpoint repository.
func (s *Store) Checkpoints() storage.CheckpointRepository { return s.checkpoints }

// Backend exposes the underlying database handle.
func (s *Store) Backend() *Backend { return s.backend }

// Close closes the database.
func (s *Store) Close() error {
	return s.backend.Close()
}
