package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// Returns an error wrapping core.ErrEmbeddingBackend if the backend fails
	// or returns a malformed vector.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains exactly one embedding per input text, in the
	// same order as the input. Any failure fails the whole batch.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension reports the fixed vector length produced by the configured model.
	Dimension() int
}

// Generator produces an answer from an ordered list of chat messages.
// Implementations must be thread-safe for concurrent use.
type Generator interface {
	// Generate runs the language model over messages and returns its text.
	// Returns an error wrapping core.ErrGeneration on any backend failure.
	Generate(ctx context.Context, messages []Message, opts GenerateOptions) (string, error)
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
// A provider creates and manages Embedder and Generator instances,
// ensuring they share configuration and resources appropriately.
type AIProvider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// Generator returns the answer generation service.
	Generator() Generator

	// GenerateOptions returns the configured pass-through generation options.
	GenerateOptions() GenerateOptions

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
