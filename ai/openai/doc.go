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

// Package openai builds an ai.AIProvider against OpenAI-compatible APIs
// (OpenAI, vLLM, LocalAI, or Ollama's /v1 layer) using langchaingo.
//
// # Usage
//
//	config := ai.NewConfig(
//	    ai.WithBackend(ai.BackendOpenAI),
//	    ai.WithHost("http://localhost:8000"), // /v1 added automatically
//	    ai.WithEmbeddingModel("text-embedding-3-small"),
//	    ai.WithEmbeddingDimension(1536),
//	    ai.WithGenerationModel("gpt-4o-mini"),
//	)
//
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vector, err := provider.Embedder().EmbedText(ctx, "sample text")
package openai
