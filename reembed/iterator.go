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

package reembed

import (
	"context"

	"github.com/poiesic/pagewise/core"
	"github.com/poiesic/pagewise/storage"
)

const (
	// DefaultBatchSize is the default number of records to fetch in each batch
	DefaultBatchSize = 100
)

// RecordIterator iterates over stored vector records in node id order.
type RecordIterator struct {
	repo      storage.VectorRepository
	batchSize int
}

// NewRecordIterator creates a new record iterator.
// batchSize: number of records to fetch in each batch; <= 0 uses DefaultBatchSize
func NewRecordIterator(repo storage.VectorRepository, batchSize int) *RecordIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &RecordIterator{
		repo:      repo,
		batchSize: batchSize,
	}
}

// ForEach calls fn for each batch of records whose node id sorts after
// afterNodeID. An empty afterNodeID starts at the first record.
// Iteration stops on the first error from fn or when the context is done.
func (it *RecordIterator) ForEach(ctx context.Context, afterNodeID string, fn func([]*core.VectorRecord) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return it.repo.ForEachAfter(ctx, afterNodeID, it.batchSize, func(ctx context.Context, records []*core.VectorRecord) error {
		if len(records) == 0 {
			return nil
		}
		if err := fn(records); err != nil {
			return err
		}
		return ctx.Err()
	})
}
