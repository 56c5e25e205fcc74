// Package config loads the service configuration.
//
// Values come from Default, then an optional YAML file, then environment
// variables. A .env file, when present, is read into the environment first.
// The resulting Config is passed around by value and never modified after Load.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/pagewise/ai"
	"github.com/poiesic/pagewise/chat"
	"github.com/poiesic/pagewise/chunker"
	"github.com/poiesic/pagewise/ingestion"
	"github.com/poiesic/pagewise/search"
	"github.com/poiesic/pagewise/source/confluence"
	"github.com/poiesic/pagewise/storage"
	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	StoreBadger = "badger"
	StoreSQLite = "sqlite"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete service configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store"`
	AI         ai.Config        `yaml:"ai"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Confluence ConfluenceConfig `yaml:"confluence"`
	Ingestion  IngestionConfig  `yaml:"ingestion"`
	Server     ServerConfig     `yaml:"server"`
}

// StoreConfig selects the persistence backend. The schema dimension defaults
// to the embedding dimension and must match it.
type StoreConfig struct {
	Backend string         `yaml:"backend"`
	Path    string         `yaml:"path"`
	Schema  storage.Schema `yaml:",inline"`
}

// ChunkingConfig sizes chunks in runes.
type ChunkingConfig struct {
	MaxChars int `yaml:"max_chars"`
	Overlap  int `yaml:"overlap"`
}

// RetrievalConfig tunes search and prompt assembly.
type RetrievalConfig struct {
	TopK              int     `yaml:"top_k"`
	MinScore          float32 `yaml:"min_score"`
	KeywordBoost      float32 `yaml:"keyword_boost"`
	MaxCharsPerSource int     `yaml:"max_chars_per_source"`
	HistoryTurns      int     `yaml:"history_turns"`
	SystemPrompt      string  `yaml:"system_prompt"`
}

// ConfluenceConfig points at the Confluence site pages are fetched from.
type ConfluenceConfig struct {
	BaseURL           string        `yaml:"base_url"`
	Username          string        `yaml:"username"`
	APIToken          string        `yaml:"api_token"`
	SpaceWhitelist    []string      `yaml:"space_whitelist"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout"`
}

// IngestionConfig sizes the background pipeline.
type IngestionConfig struct {
	PoolSize       int           `yaml:"pool_size"`
	QueueSize      int           `yaml:"queue_size"`
	ReleaseTimeout time.Duration `yaml:"release_timeout"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	aiConfig := ai.DefaultConfig()
	schema := storage.DefaultSchema()
	schema.Dimension = aiConfig.EmbeddingDimension
	return Config{
		Store: StoreConfig{
			Backend: StoreBadger,
			Path:    "pagewise-data",
			Schema:  schema,
		},
		AI: *aiConfig,
		Chunking: ChunkingConfig{
			MaxChars: chunker.DefaultMaxChars,
			Overlap:  chunker.DefaultOverlap,
		},
		Retrieval: RetrievalConfig{
			TopK:              search.DefaultTopK,
			MaxCharsPerSource: chat.DefaultMaxCharsPerSource,
			HistoryTurns:      chat.DefaultHistoryTurns,
			SystemPrompt:      chat.DefaultSystemPrompt,
		},
		Confluence: ConfluenceConfig{
			RequestsPerSecond: confluence.DefaultRequestsPerSecond,
			Timeout:           confluence.DefaultTimeout,
		},
		Ingestion: IngestionConfig{
			QueueSize:      ingestion.DefaultQueueSize,
			ReleaseTimeout: ingestion.DefaultReleaseTimeout,
		},
		Server: ServerConfig{
			ListenAddr: ":8080",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (optional,
// may be empty) and the environment. envFiles are read into the environment
// first without overriding variables that are already set; with none given an
// optional ./.env is read.
func Load(path string, envFiles ...string) (Config, error) {
	if err := loadEnvFiles(envFiles); err != nil {
		return Config{}, err
	}

	cfg := Default()
	// Zero means "follow ai.embedding_dimension" until finish runs.
	cfg.Store.Schema.Dimension = 0
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := decode(bytes.NewReader(data), &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	cfg.finish()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadEnvFiles(files []string) error {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("reading .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("reading env files: %w", err)
	}
	return nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// finish fills values derived from other settings.
func (c *Config) finish() {
	c.AI.Normalize()
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if c.Store.Schema.Dimension == 0 {
		c.Store.Schema.Dimension = c.AI.EmbeddingDimension
	}
	if c.Store.Schema.Metric == "" {
		c.Store.Schema.Metric = storage.MetricCosine
	}
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Store.Backend == StoreBadger || c.Store.Backend == StoreSQLite,
		"store.backend must be %s or %s, got %q", StoreBadger, StoreSQLite, c.Store.Backend)
	check(c.Store.Path != "", "store.path is required")
	if err := c.Store.Schema.Validate(); err != nil {
		errs = append(errs, err)
	}
	check(c.Store.Schema.Dimension == c.AI.EmbeddingDimension,
		"store dimension %d does not match ai.embedding_dimension %d", c.Store.Schema.Dimension, c.AI.EmbeddingDimension)

	aiConfig := c.AI
	if err := aiConfig.Validate(); err != nil {
		errs = append(errs, err)
	}

	check(c.Chunking.MaxChars > 0, "chunking.max_chars must be greater than 0")
	check(c.Chunking.Overlap >= 0 && c.Chunking.Overlap < c.Chunking.MaxChars,
		"chunking.overlap must be in [0, max_chars)")

	check(c.Retrieval.TopK > 0, "retrieval.top_k must be greater than 0")
	check(c.Retrieval.KeywordBoost >= 0, "retrieval.keyword_boost cannot be negative")
	check(c.Retrieval.MaxCharsPerSource >= 0, "retrieval.max_chars_per_source cannot be negative")
	check(c.Retrieval.HistoryTurns >= 0, "retrieval.history_turns cannot be negative")

	check(c.Confluence.RequestsPerSecond >= 0, "confluence.requests_per_second cannot be negative")
	check(c.Confluence.Timeout >= 0, "confluence.timeout cannot be negative")

	check(c.Ingestion.PoolSize >= 0, "ingestion.pool_size cannot be negative")
	check(c.Ingestion.QueueSize > 0, "ingestion.queue_size must be greater than 0")
	check(c.Ingestion.ReleaseTimeout >= 0, "ingestion.release_timeout cannot be negative")

	check(c.Server.ListenAddr != "", "server.listen_addr is required")

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
