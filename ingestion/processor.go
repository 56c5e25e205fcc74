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

package ingestion

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/pagewise/ai"
	"github.com/poiesic/pagewise/chunker"
	"github.com/poiesic/pagewise/core"
	"github.com/poiesic/pagewise/normalize"
	"github.com/poiesic/pagewise/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DocumentSource retrieves raw documents by id.
// Implementations return errors wrapping core.ErrFetch.
type DocumentSource interface {
	Fetch(ctx context.Context, id string) (*core.Document, error)
}

// processor runs one document through every stage.
type processor interface {
	process(ctx context.Context, documentID, runID string) (*Result, error)
	processText(ctx context.Context, doc *core.NormalizedDocument, runID string) (*Result, error)
}

type documentProcessor struct {
	source    DocumentSource
	vectors   storage.VectorRepository
	embedder  ai.Embedder
	chunker   *chunker.Chunker
	whitelist map[string]struct{}
	metrics   *metrics
	logger    *slog.Logger
}

var _ processor = (*documentProcessor)(nil)

func (dp *documentProcessor) process(ctx context.Context, documentID, runID string) (*Result, error) {
	start := time.Now()
	logger := dp.logger.With("document_id", documentID, "run_id", runID)

	ctx, span := tracer.Start(ctx, "ingestion.run", trace.WithAttributes(
		attribute.String("pagewise.document.id", documentID),
		attribute.String("pagewise.run.id", runID),
	))
	defer span.End()

	result := &Result{RunID: runID, DocumentID: documentID}

	var doc *core.Document
	err := dp.stage(ctx, StageFetched, documentID, func(ctx context.Context) error {
		var err error
		doc, err = dp.source.Fetch(ctx, documentID)
		return err
	})
	if err != nil {
		return nil, dp.fail(span, logger, err)
	}

	if !dp.allowed(doc.SpaceKey) {
		result.Stage = StageSkipped
		result.Reason = "space " + doc.SpaceKey + " is not whitelisted"
		result.Duration = time.Since(start)
		logger.Info("skipping document", "space_key", doc.SpaceKey, "reason", result.Reason)
		span.SetAttributes(attribute.String("pagewise.run.result", string(StageSkipped)))
		return result, nil
	}

	var normalized *core.NormalizedDocument
	err = dp.stage(ctx, StageNormalized, documentID, func(ctx context.Context) error {
		var err error
		normalized, err = normalize.Normalize(doc)
		return err
	})
	if err != nil {
		return nil, dp.fail(span, logger, err)
	}
	return dp.index(ctx, span, logger, result, normalized, start)
}

// processText indexes text that was supplied instead of fetched. It starts at
// the chunk stage and ignores the space whitelist.
func (dp *documentProcessor) processText(ctx context.Context, doc *core.NormalizedDocument, runID string) (*Result, error) {
	start := time.Now()
	logger := dp.logger.With("document_id", doc.DocumentID, "run_id", runID)

	ctx, span := tracer.Start(ctx, "ingestion.text", trace.WithAttributes(
		attribute.String("pagewise.document.id", doc.DocumentID),
		attribute.String("pagewise.run.id", runID),
	))
	defer span.End()

	result := &Result{RunID: runID, DocumentID: doc.DocumentID}
	return dp.index(ctx, span, logger, result, doc, start)
}

// index chunks, embeds and persists a normalized document.
func (dp *documentProcessor) index(
	ctx context.Context,
	span trace.Span,
	logger *slog.Logger,
	result *Result,
	normalized *core.NormalizedDocument,
	start time.Time,
) (*Result, error) {
	documentID := normalized.DocumentID
	var chunks []core.Chunk
	_ = dp.stage(ctx, StageChunked, documentID, func(ctx context.Context) error {
		chunks = dp.chunker.Chunk(normalized)
		return nil
	})
	result.Chunks = len(chunks)

	if len(chunks) > 0 {
		var records []*core.VectorRecord
		err := dp.stage(ctx, StageEmbedded, documentID, func(ctx context.Context) error {
			var err error
			records, err = embedChunks(ctx, dp.embedder, chunks)
			return err
		})
		if err != nil {
			return nil, dp.fail(span, logger, err)
		}

		err = dp.stage(ctx, StagePersisted, documentID, func(ctx context.Context) error {
			var err error
			result.Records, err = dp.vectors.Upsert(ctx, records...)
			return err
		})
		if err != nil {
			return nil, dp.fail(span, logger, err)
		}
	}

	result.Stage = StagePersisted
	result.Duration = time.Since(start)
	span.SetAttributes(
		attribute.String("pagewise.run.result", string(StagePersisted)),
		attribute.Int("pagewise.run.records", result.Records),
	)
	logger.Info("document ingested", "chunks", result.Chunks, "records", result.Records, "duration", result.Duration)
	return result, nil
}

// stage times fn under its own span and wraps a failure in a StageError.
func (dp *documentProcessor) stage(ctx context.Context, stage Stage, documentID string, fn func(ctx context.Context) error) error {
	ctx, span := tracer.Start(ctx, "ingestion."+string(stage))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	dp.metrics.observe(stage, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &StageError{DocumentID: documentID, Stage: stage, Err: err}
	}
	return nil
}

func (dp *documentProcessor) fail(span trace.Span, logger *slog.Logger, err error) error {
	span.SetStatus(codes.Error, err.Error())
	logger.Debug("ingestion run failed", "err", err)
	return err
}

func (dp *documentProcessor) allowed(spaceKey string) bool {
	if len(dp.whitelist) == 0 {
		return true
	}
	_, ok := dp.whitelist[strings.ToUpper(strings.TrimSpace(spaceKey))]
	return ok
}
