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

// Package ai provides abstractions for the model services used by Pagewise.
//
// The ingestion pipeline, searcher and chat responder depend only on the
// interfaces declared here:
//
//   - Embedder: turns text into fixed-dimension vectors
//   - Generator: turns an ordered list of messages into an answer
//   - AIProvider: bundles both with the configured generation options
//
// # Implementation Packages
//
//   - ai/ollama: native Ollama API through langchaingo
//   - ai/openai: OpenAI-compatible APIs through langchaingo
//   - ai/langchain: shared adapters both backends build on
//   - ai/mock: test doubles with deterministic output
//
// Production constructors return interfaces. Mock constructors return
// concrete types so tests can inject behaviour and count calls:
//
//	provider := mock.NewMockProvider()
//	provider.GetMockGenerator().GenerateFunc = func(...) (string, error) {
//	    return "", core.ErrGeneration
//	}
//
// # Failure Semantics
//
// Every backend failure is wrapped with core.ErrEmbeddingBackend or
// core.ErrGeneration so callers can branch with errors.Is. Embedding results
// are checked for count, dimension and finiteness by CheckEmbeddings before
// they leave the package.
package ai
