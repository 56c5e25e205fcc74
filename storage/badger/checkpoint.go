// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package badger

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/pagewise/storage"
)

// CheckpointRepository implements storage.CheckpointRepository for BadgerDB.
// Checkpoints are stored next to the vector table they describe.
type CheckpointRepository struct {
	backend *Backend
	table   string
}

var _ storage.CheckpointRepository = (*CheckpointRepository)(nil)

// NewCheckpointRepository creates a new CheckpointRepository.
func NewCheckpointRepository(backend *Backend, schema storage.Schema) *CheckpointRepository {
	return &CheckpointRepository{
		backend: backend,
		table:   schema.VectorTable,
	}
}

// SaveCheckpoint persists a checkpoint for a job.
func (r *CheckpointRepository) SaveCheckpoint(ctx context.Context, checkpoint *storage.Checkpoint) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		checkpoint.UpdatedAt = time.Now().UTC()
		value := storage.MarshalCheckpoint(checkpoint)
		if err := tx.Set(makeCheckpointKey(r.table, checkpoint.Name), value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// LoadCheckpoint retrieves the checkpoint for a job.
// Returns nil, nil if no checkpoint exists.
func (r *CheckpointRepository) LoadCheckpoint(ctx context.Context, name string) (*storage.Checkpoint, error) {
	var checkpoint *storage.Checkpoint
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeCheckpointKey(r.table, name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var err error
			checkpoint, err = storage.UnmarshalCheckpoint(val)
			return err
		})
	}, false)
	return checkpoint, err
}

// DeleteCheckpoint removes the checkpoint for a job.
func (r *CheckpointRepository) DeleteCheckpoint(ctx context.Context, name string) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Delete(makeCheckpointKey(r.table, name)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}
