// Package ingestion turns document change events into stored vector records.
//
// A Pipeline runs each document through a fixed sequence of stages:
//
//	Fetched → Normalized → Chunked → Embedded → Persisted
//
// A run ends Persisted, Skipped (space not whitelisted) or failed at one stage,
// reported as a *StageError. Node ids derive from the document id and chunk
// position, so re-running a document overwrites its records instead of adding
// new ones.
//
// Submit enqueues an event on a bounded queue and returns immediately. A
// dispatcher drains the queue into an ants worker pool. Background failures are
// logged, counted in Prometheus metrics and handed to an optional result hook.
// Ingest runs the same stages synchronously.
//
// Two runs for the same document may execute concurrently. No lock is taken:
// the last Upsert to commit wins.
package ingestion
