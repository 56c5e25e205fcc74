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

package ai

import (
	"errors"
	"strings"
)

// Supported backends.
const (
	BackendOllama = "ollama"
	BackendOpenAI = "openai"
)

// Config holds configuration for AI service providers.
type Config struct {
	// Backend selects the client implementation: "ollama" or "openai".
	Backend string `yaml:"backend"`

	// EmbeddingHost is the base URL for the embedding service API.
	// Example: "http://localhost:11434" for a local Ollama server
	EmbeddingHost string `yaml:"embedding_host"`

	// GenerationHost is the base URL for the chat/generation service API.
	GenerationHost string `yaml:"generation_host"`

	// EmbeddingModel is the model identifier to use for text embeddings.
	// Example: "bge-m3", "text-embedding-3-small"
	EmbeddingModel string `yaml:"embedding_model"`

	// GenerationModel is the model identifier used to answer questions.
	// Example: "llama3.1:8b", "gpt-4o-mini"
	GenerationModel string `yaml:"generation_model"`

	// EmbeddingDimension is the vector length the embedding model produces.
	// bge-m3 produces 1024.
	EmbeddingDimension int `yaml:"embedding_dimension"`

	// APIToken authenticates against hosted OpenAI-compatible APIs.
	// Local servers accept any value.
	APIToken string `yaml:"api_token"`

	// Temperature, MaxTokens and ContextWindow are passed to the generator as-is.
	Temperature   float64 `yaml:"temperature"`
	MaxTokens     int     `yaml:"max_tokens"`
	ContextWindow int     `yaml:"context_window"`

	// EmbeddingBatchSize caps how many texts are sent per embedding request.
	EmbeddingBatchSize int `yaml:"embedding_batch_size"`
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithBackend selects the client implementation.
func WithBackend(backend string) ConfigOption {
	return func(c *Config) {
		c.Backend = backend
	}
}

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithGenerationHost sets the generation service host URL.
func WithGenerationHost(host string) ConfigOption {
	return func(c *Config) {
		c.GenerationHost = host
	}
}

// WithHost sets both embedding and generation hosts to the same URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
		c.GenerationHost = host
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithGenerationModel sets the generation model identifier.
func WithGenerationModel(model string) ConfigOption {
	return func(c *Config) {
		c.GenerationModel = model
	}
}

// WithEmbeddingDimension sets the expected embedding vector length.
func WithEmbeddingDimension(dim int) ConfigOption {
	return func(c *Config) {
		c.EmbeddingDimension = dim
	}
}

// WithAPIToken sets the token sent to OpenAI-compatible APIs.
func WithAPIToken(token string) ConfigOption {
	return func(c *Config) {
		c.APIToken = token
	}
}

// WithGenerateOptions sets temperature, max output tokens and context window.
func WithGenerateOptions(opts GenerateOptions) ConfigOption {
	return func(c *Config) {
		c.Temperature = opts.Temperature
		c.MaxTokens = opts.MaxTokens
		c.ContextWindow = opts.ContextWindow
	}
}

// DefaultConfig returns a Config with sensible defaults for a local Ollama server.
func DefaultConfig() *Config {
	defaultHost := "http://localhost:11434"
	return &Config{
		Backend:            BackendOllama,
		EmbeddingHost:      defaultHost,
		GenerationHost:     defaultHost,
		EmbeddingModel:     "bge-m3",
		GenerationModel:    "llama3.1:8b",
		EmbeddingDimension: 1024,
		Temperature:        0.1,
		EmbeddingBatchSize: 32,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithBackend(BackendOpenAI),
//	    WithHost("http://localhost:8000/v1"),
//	    WithEmbeddingModel("text-embedding-3-small"),
//	    WithEmbeddingDimension(1536),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// GenerateOptions returns the pass-through generation options.
func (c *Config) GenerateOptions() GenerateOptions {
	return GenerateOptions{
		Temperature:   c.Temperature,
		MaxTokens:     c.MaxTokens,
		ContextWindow: c.ContextWindow,
	}
}

// Normalize ensures the configuration is in a canonical form.
// OpenAI-compatible APIs (vLLM, LocalAI, Ollama's compatibility layer) need the /v1
// suffix; the native Ollama client adds its own paths and must not see it.
func (c *Config) Normalize() {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	if c.Backend == "" {
		c.Backend = BackendOllama
	}
	if c.GenerationHost == "" {
		c.GenerationHost = c.EmbeddingHost
	}
	c.EmbeddingHost = normalizeHost(c.Backend, c.EmbeddingHost)
	c.GenerationHost = normalizeHost(c.Backend, c.GenerationHost)
}

func normalizeHost(backend, host string) string {
	if host == "" {
		return host
	}
	host = strings.TrimSuffix(host, "/")
	switch backend {
	case BackendOpenAI:
		if !strings.HasSuffix(host, "/v1") {
			host += "/v1"
		}
	case BackendOllama:
		host = strings.TrimSuffix(host, "/v1")
	}
	return host
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if c.Backend != BackendOllama && c.Backend != BackendOpenAI {
		return errors.New("ai config: Backend must be ollama or openai")
	}
	if c.EmbeddingHost == "" {
		return errors.New("ai config: EmbeddingHost is required")
	}
	if c.EmbeddingModel == "" {
		return errors.New("ai config: EmbeddingModel is required")
	}
	if c.GenerationModel == "" {
		return errors.New("ai config: GenerationModel is required")
	}
	if c.EmbeddingDimension <= 0 {
		return errors.New("ai config: EmbeddingDimension must be greater than 0")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return errors.New("ai config: Temperature must be between 0 and 2")
	}
	if c.MaxTokens < 0 || c.ContextWindow < 0 {
		return errors.New("ai config: MaxTokens and ContextWindow cannot be negative")
	}
	if c.EmbeddingBatchSize < 0 {
		return errors.New("ai config: EmbeddingBatchSize cannot be negative")
	}
	return nil
}
