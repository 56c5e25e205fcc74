package ingestion

import (
	"errors"
	"fmt"
)

var (
	// ErrVectorRepositoryRequired is returned when a vector repository is not provided.
	ErrVectorRepositoryRequired = errors.New("vector repository required")

	// ErrSourceRequired is returned when a document source is not provided.
	ErrSourceRequired = errors.New("document source required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrDocumentIDRequired is returned for events or calls without a document id.
	ErrDocumentIDRequired = errors.New("document id required")

	// ErrEmptyText is returned by IngestText for blank text.
	ErrEmptyText = errors.New("text must not be empty")

	// ErrIgnoredEvent is returned by Submit for event kinds that do not trigger ingestion.
	ErrIgnoredEvent = errors.New("event ignored")

	// ErrQueueFull is returned by Submit when the queue is saturated.
	ErrQueueFull = errors.New("ingestion queue full")

	// ErrPipelineClosed is returned after Release.
	ErrPipelineClosed = errors.New("pipeline closed")

	// ErrReleaseTimeout is returned when queued work outlives the release timeout.
	ErrReleaseTimeout = errors.New("timed out waiting for queued ingestion")
)

// StageError reports the stage a run failed to reach.
// Err wraps the underlying taxonomy error (core.ErrFetch, core.ErrEmbeddingBackend, ...).
type StageError struct {
	DocumentID string
	Stage      Stage
	Err        error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("ingest %s: %s: %v", e.DocumentID, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
