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
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/pagewise/ai"
	"github.com/poiesic/pagewise/core"
	"github.com/poiesic/pagewise/storage"
)

// DefaultCheckpointName names the checkpoint of a reembedding run.
const DefaultCheckpointName = "reembed"

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of records to process in each batch
	BatchSize int

	// ReportInterval is how often to report progress (number of records)
	ReportInterval int

	// MaxRetries is the maximum number of attempts for each embedding call
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// Metric is the similarity metric recorded for the target store
	Metric storage.Metric

	// Normalize scales new vectors to unit length
	Normalize bool

	// CheckpointName identifies the run in the checkpoint repository
	CheckpointName string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
		Metric:         storage.MetricCosine,
		CheckpointName: DefaultCheckpointName,
	}
}

// Summary describes a completed run.
type Summary struct {
	Total     int
	Processed int // records embedded by this run
	Resumed   int // records skipped because an earlier run finished them
	Elapsed   time.Duration
}

// Reembedder orchestrates the reembedding of every stored vector record.
type Reembedder struct {
	source      storage.VectorRepository
	target      storage.VectorRepository
	checkpoints storage.CheckpointRepository
	embedder    ai.Embedder
	config      *Config
	progress    io.Writer
	processor   *BatchProcessor
	iterator    *RecordIterator
	logger      *slog.Logger
}

// NewReembedder creates a new reembedder reading from source and writing to
// target, which may be the same repository. checkpoints may be nil, in which
// case runs always start from the first record.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(
	source, target storage.VectorRepository,
	checkpoints storage.CheckpointRepository,
	embedder ai.Embedder,
	config *Config,
	progress io.Writer,
	logger *slog.Logger,
) (*Reembedder, error) {
	if source == nil || target == nil {
		return nil, ErrVectorRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.CheckpointName == "" {
		config.CheckpointName = DefaultCheckpointName
	}
	if config.Metric == "" {
		config.Metric = storage.MetricCosine
	}
	if progress == nil {
		progress = io.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Reembedder{
		source:      source,
		target:      target,
		checkpoints: checkpoints,
		embedder:    embedder,
		config:      config,
		progress:    progress,
		processor:   NewBatchProcessor(target, embedder, config.MaxRetries, config.RetryDelay, config.Normalize),
		iterator:    NewRecordIterator(source, config.BatchSize),
		logger:      logger.With("component", "reembed"),
	}, nil
}

// Run re-embeds every record after the saved checkpoint. The checkpoint is
// advanced after each written batch and removed when the run completes.
func (r *Reembedder) Run(ctx context.Context) (*Summary, error) {
	if err := r.target.EnsureSchema(ctx, r.embedder.Dimension(), r.config.Metric); err != nil {
		return nil, fmt.Errorf("preparing target store: %w", err)
	}

	total, err := r.source.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}
	if total == 0 {
		fmt.Fprintf(r.progress, "No records found in store (0 records)\n")
		return &Summary{}, nil
	}

	checkpoint, err := r.loadCheckpoint(ctx)
	if err != nil {
		return nil, err
	}
	if checkpoint.LastNodeID != "" {
		fmt.Fprintf(r.progress, "Resuming reembedding after %s (%d of %d records done)\n",
			checkpoint.LastNodeID, checkpoint.Processed, total)
	} else {
		fmt.Fprintf(r.progress, "Starting reembedding of %d records (batch size: %d)\n",
			total, r.iterator.batchSize)
	}

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start(checkpoint.Processed)
	resumed := checkpoint.Processed
	processed := 0

	err = r.iterator.ForEach(ctx, checkpoint.LastNodeID, func(records []*core.VectorRecord) error {
		written, err := r.processor.Process(ctx, records)
		if err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}
		processed += written
		tracker.Add(written)

		checkpoint.LastNodeID = records[len(records)-1].NodeID
		checkpoint.Processed += written
		return r.saveCheckpoint(ctx, checkpoint)
	})
	if err != nil {
		r.logger.Error("reembedding stopped", "last_node_id", checkpoint.LastNodeID, "processed", processed, "err", err)
		return nil, err
	}

	tracker.Finish()
	if r.checkpoints != nil {
		if err := r.checkpoints.DeleteCheckpoint(ctx, r.config.CheckpointName); err != nil {
			return nil, fmt.Errorf("removing checkpoint: %w", err)
		}
	}

	summary := &Summary{Total: total, Processed: processed, Resumed: resumed, Elapsed: tracker.Elapsed()}
	fmt.Fprintf(r.progress, "Reembedding complete. Processed %d records in %v (%.1f records/sec)\n",
		processed, summary.Elapsed.Round(time.Millisecond), tracker.Rate())
	return summary, nil
}

func (r *Reembedder) loadCheckpoint(ctx context.Context) (*storage.Checkpoint, error) {
	fresh := &storage.Checkpoint{Name: r.config.CheckpointName}
	if r.checkpoints == nil {
		return fresh, nil
	}
	checkpoint, err := r.checkpoints.LoadCheckpoint(ctx, r.config.CheckpointName)
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint: %w", err)
	}
	if checkpoint == nil {
		return fresh, nil
	}
	return checkpoint, nil
}

func (r *Reembedder) saveCheckpoint(ctx context.Context, checkpoint *storage.Checkpoint) error {
	if r.checkpoints == nil {
		return nil
	}
	if err := r.checkpoints.SaveCheckpoint(ctx, checkpoint); err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}
	return nil
}
