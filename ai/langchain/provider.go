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

package langchain

import (
	"log/slog"

	"github.com/poiesic/pagewise/ai"
)

// Provider implements ai.AIProvider for any pair of langchaingo clients.
// Backend packages build the clients and hand them here.
type Provider struct {
	embedder  *Embedder
	generator *Generator
	options   ai.GenerateOptions
	logger    *slog.Logger
}

var _ ai.AIProvider = (*Provider)(nil)

// NewProvider bundles an embedder and a generator.
func NewProvider(embedder *Embedder, generator *Generator, options ai.GenerateOptions, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		embedder:  embedder,
		generator: generator,
		options:   options,
		logger:    logger,
	}
}

// Embedder returns the text embedding service.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// Generator returns the answer generation service.
func (p *Provider) Generator() ai.Generator {
	return p.generator
}

// GenerateOptions returns the configured generation options.
func (p *Provider) GenerateOptions() ai.GenerateOptions {
	return p.options
}

// Close releases resources held by the provider.
// Currently a no-op as the underlying HTTP clients don't require explicit cleanup.
func (p *Provider) Close() error {
	p.logger.Debug("closing AI provider")
	return nil
}
