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

// Package pagewise wires the configured store, AI backend and Confluence
// source into ingestion pipelines, searchers and responders.
package pagewise

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/pagewise/ai"
	"github.com/poiesic/pagewise/ai/ollama"
	"github.com/poiesic/pagewise/ai/openai"
	"github.com/poiesic/pagewise/chat"
	"github.com/poiesic/pagewise/config"
	"github.com/poiesic/pagewise/core"
	"github.com/poiesic/pagewise/ingestion"
	"github.com/poiesic/pagewise/search"
	"github.com/poiesic/pagewise/source/confluence"
	"github.com/poiesic/pagewise/storage"
	"github.com/poiesic/pagewise/storage/badger"
	"github.com/poiesic/pagewise/storage/sqlite"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrSourceNotConfigured is returned when ingestion is requested without a Confluence site.
var ErrSourceNotConfigured = errors.New("confluence base URL not configured")

// Engine owns the long-lived resources of the service.
type Engine struct {
	cfg        config.Config
	store      storage.Store
	provider   ai.AIProvider
	source     ingestion.DocumentSource
	registerer prometheus.Registerer
	logger     *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	store      storage.Store
	provider   ai.AIProvider
	source     ingestion.DocumentSource
	registerer prometheus.Registerer
	logger     *slog.Logger
}

// WithStore uses store instead of opening the configured backend.
// The engine takes ownership and closes it.
func WithStore(store storage.Store) EngineOption {
	return func(o *engineOptions) { o.store = store }
}

// WithProvider uses provider instead of the configured AI backend.
func WithProvider(provider ai.AIProvider) EngineOption {
	return func(o *engineOptions) { o.provider = provider }
}

// WithSource uses source instead of the configured Confluence client.
func WithSource(source ingestion.DocumentSource) EngineOption {
	return func(o *engineOptions) { o.source = source }
}

// WithRegisterer registers pipeline and responder metrics with reg.
func WithRegisterer(reg prometheus.Registerer) EngineOption {
	return func(o *engineOptions) { o.registerer = reg }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(o *engineOptions) { o.logger = logger }
}

// NewEngine validates cfg, opens the store and AI backend and verifies that
// the store's recorded embedding dimension matches the embedder.
func NewEngine(ctx context.Context, cfg config.Config, opts ...EngineOption) (*Engine, error) {
	options := &engineOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:        cfg,
		store:      options.store,
		provider:   options.provider,
		source:     options.source,
		registerer: options.registerer,
		logger:     options.logger,
	}

	if e.store == nil {
		store, err := OpenStore(cfg.Store)
		if err != nil {
			return nil, err
		}
		e.store = store
	}

	if e.provider == nil {
		provider, err := NewProvider(&cfg.AI)
		if err != nil {
			e.store.Close()
			return nil, err
		}
		e.provider = provider
	}

	if err := e.ensureSchema(ctx); err != nil {
		e.Close()
		return nil, err
	}

	if e.source == nil && cfg.Confluence.BaseURL != "" {
		client, err := confluence.New(cfg.Confluence.BaseURL, cfg.Confluence.Username, cfg.Confluence.APIToken,
			confluence.WithRateLimit(cfg.Confluence.RequestsPerSecond),
			confluence.WithTimeout(cfg.Confluence.Timeout),
			confluence.WithLogger(e.logger),
		)
		if err != nil {
			e.Close()
			return nil, err
		}
		e.source = client
	}

	return e, nil
}

func (e *Engine) ensureSchema(ctx context.Context) error {
	dimension := e.provider.Embedder().Dimension()
	if dimension != e.cfg.Store.Schema.Dimension {
		return fmt.Errorf("%w: embedder produces %d dimensions, store is configured for %d",
			core.ErrDimensionMismatch, dimension, e.cfg.Store.Schema.Dimension)
	}
	return e.store.Vectors().EnsureSchema(ctx, dimension, e.cfg.Store.Schema.Metric)
}

// OpenStore opens the configured storage backend.
func OpenStore(cfg config.StoreConfig) (storage.Store, error) {
	switch cfg.Backend {
	case config.StoreBadger:
		return badger.Open(cfg.Path, cfg.Schema)
	case config.StoreSQLite:
		return sqlite.Open(cfg.Path, cfg.Schema)
	default:
		return nil, fmt.Errorf("%w: unknown store backend %q", config.ErrInvalidConfig, cfg.Backend)
	}
}

// NewProvider creates the configured AI provider.
func NewProvider(cfg *ai.Config) (ai.AIProvider, error) {
	switch cfg.Backend {
	case ai.BackendOpenAI:
		return openai.NewProvider(cfg)
	case ai.BackendOllama, "":
		return ollama.NewProvider(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown ai backend %q", config.ErrInvalidConfig, cfg.Backend)
	}
}

// NewEmbedder creates an embedder for cfg without a generator.
func NewEmbedder(cfg *ai.Config) (ai.Embedder, error) {
	var (
		embedder ai.Embedder
		err      error
	)
	switch cfg.Backend {
	case ai.BackendOpenAI:
		embedder, err = openai.NewEmbedder(cfg)
	case ai.BackendOllama, "":
		embedder, err = ollama.NewEmbedder(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown ai backend %q", config.ErrInvalidConfig, cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return embedder, nil
}

// Close releases the AI provider and the store.
func (e *Engine) Close() error {
	// Close AI provider first
	if err := e.provider.Close(); err != nil {
		e.logger.Error("error closing AI provider", "err", err)
	}
	if err := e.store.Close(); err != nil {
		e.logger.Error("error closing store", "err", err)
		return err
	}
	return nil
}

// Config returns the configuration the engine was built from.
func (e *Engine) Config() config.Config {
	return e.cfg
}

// Store returns the storage backend.
func (e *Engine) Store() storage.Store {
	return e.store
}

// Provider returns the AI provider.
func (e *Engine) Provider() ai.AIProvider {
	return e.provider
}

// NewIngestionPipeline builds a pipeline from the configuration. opts are
// applied after the configured options.
func (e *Engine) NewIngestionPipeline(opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	if e.source == nil {
		return nil, ErrSourceNotConfigured
	}
	cfg := e.cfg
	base := []ingestion.Option{
		ingestion.WithChunking(cfg.Chunking.MaxChars, cfg.Chunking.Overlap),
		ingestion.WithQueueSize(cfg.Ingestion.QueueSize),
		ingestion.WithReleaseTimeout(cfg.Ingestion.ReleaseTimeout),
		ingestion.WithSpaceWhitelist(cfg.Confluence.SpaceWhitelist...),
		ingestion.WithRegisterer(e.registerer),
		ingestion.WithLogger(e.logger),
	}
	if cfg.Ingestion.PoolSize > 0 {
		base = append(base, ingestion.WithPoolSize(cfg.Ingestion.PoolSize))
	}
	return ingestion.NewPipeline(e.source, e.store.Vectors(), e.provider, append(base, opts...)...)
}

// NewSearcher builds a searcher from the retrieval configuration.
func (e *Engine) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	cfg := e.cfg.Retrieval
	base := []search.Option{
		search.WithTopK(cfg.TopK),
		search.WithKeywordBoost(cfg.KeywordBoost),
		search.WithLogger(e.logger),
	}
	// min_score 0 leaves results unthresholded.
	if cfg.MinScore != 0 {
		base = append(base, search.WithMinScore(cfg.MinScore))
	}
	return search.NewSearcher(e.store.Vectors(), e.provider, append(base, opts...)...)
}

// NewResponder builds a responder backed by a new searcher.
func (e *Engine) NewResponder(opts ...chat.Option) (*chat.Responder, error) {
	searcher, err := e.NewSearcher()
	if err != nil {
		return nil, err
	}
	cfg := e.cfg.Retrieval
	base := []chat.Option{
		chat.WithSystemPrompt(cfg.SystemPrompt),
		chat.WithHistoryTurns(cfg.HistoryTurns),
		chat.WithMaxCharsPerSource(cfg.MaxCharsPerSource),
		chat.WithRegisterer(e.registerer),
		chat.WithLogger(e.logger),
	}
	return chat.NewResponder(searcher, e.store.Conversations(), e.provider, append(base, opts...)...)
}
