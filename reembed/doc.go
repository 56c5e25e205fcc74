// Package reembed re-embeds stored vector records with a new or updated
// embedding model.
//
// Records are streamed in node id order, embedded in batches with retry and
// exponential backoff, and upserted into a target repository. A checkpoint is
// saved after every batch so an interrupted run resumes where it stopped.
// The target may be the source repository itself when the model keeps the
// same dimension, or a fresh store when the dimension changes.
package reembed
