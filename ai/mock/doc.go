// Package mock provides test doubles for ai.Embedder, ai.Generator and
// ai.AIProvider.
//
// The mocks run without any model server and behave deterministically:
//
//   - MockEmbedder: returns a unit vector derived from an FNV hash of the text
//   - MockGenerator: echoes the final user message and records every prompt
//   - MockProvider: aggregates one of each
//
// Behaviour can be replaced per test through the exported Func fields:
//
//	embedder := mock.NewMockEmbedder(8)
//	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
//	    return nil, core.ErrEmbeddingBackend
//	}
//
// All mocks are safe for concurrent use.
package mock
