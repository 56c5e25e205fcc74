package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/poiesic/pagewise/storage"
)

type envVar struct {
	key   string
	apply func(value string) error
}

func str(field *string) func(string) error {
	return func(v string) error {
		*field = v
		return nil
	}
}

func integer(field *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*field = n
		return nil
	}
}

func float64Value(field *float64) func(string) error {
	return func(v string) error {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return err
		}
		*field = f
		return nil
	}
}

func float32Value(field *float32) func(string) error {
	return func(v string) error {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 32)
		if err != nil {
			return err
		}
		*field = float32(f)
		return nil
	}
}

func duration(field *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*field = d
		return nil
	}
}

func list(field *[]string) func(string) error {
	return func(v string) error {
		var items []string
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		*field = items
		return nil
	}
}

func metric(field *storage.Metric) func(string) error {
	return func(v string) error {
		m, err := storage.ParseMetric(v)
		if err != nil {
			return err
		}
		*field = m
		return nil
	}
}

// envVars lists every supported environment override, bound to c's fields.
func envVars(c *Config) []envVar {
	return []envVar{
		{"PAGEWISE_STORE_BACKEND", str(&c.Store.Backend)},
		{"PAGEWISE_STORE_PATH", str(&c.Store.Path)},
		{"PAGEWISE_VECTOR_TABLE", str(&c.Store.Schema.VectorTable)},
		{"PAGEWISE_CONVERSATION_TABLE", str(&c.Store.Schema.ConversationTable)},
		{"PAGEWISE_METRIC", metric(&c.Store.Schema.Metric)},

		{"PAGEWISE_AI_BACKEND", str(&c.AI.Backend)},
		{"PAGEWISE_EMBEDDING_HOST", str(&c.AI.EmbeddingHost)},
		{"PAGEWISE_GENERATION_HOST", str(&c.AI.GenerationHost)},
		{"PAGEWISE_EMBEDDING_MODEL", str(&c.AI.EmbeddingModel)},
		{"PAGEWISE_GENERATION_MODEL", str(&c.AI.GenerationModel)},
		{"PAGEWISE_EMBEDDING_DIMENSION", integer(&c.AI.EmbeddingDimension)},
		{"PAGEWISE_API_TOKEN", str(&c.AI.APIToken)},
		{"PAGEWISE_TEMPERATURE", float64Value(&c.AI.Temperature)},
		{"PAGEWISE_MAX_TOKENS", integer(&c.AI.MaxTokens)},
		{"PAGEWISE_CONTEXT_WINDOW", integer(&c.AI.ContextWindow)},

		{"PAGEWISE_CHUNK_SIZE", integer(&c.Chunking.MaxChars)},
		{"PAGEWISE_CHUNK_OVERLAP", integer(&c.Chunking.Overlap)},

		{"PAGEWISE_TOP_K", integer(&c.Retrieval.TopK)},
		{"PAGEWISE_MIN_SCORE", float32Value(&c.Retrieval.MinScore)},
		{"PAGEWISE_MAX_CHARS_PER_SOURCE", integer(&c.Retrieval.MaxCharsPerSource)},
		{"PAGEWISE_HISTORY_TURNS", integer(&c.Retrieval.HistoryTurns)},
		{"PAGEWISE_SYSTEM_PROMPT", str(&c.Retrieval.SystemPrompt)},

		{"CONFLUENCE_BASE_URL", str(&c.Confluence.BaseURL)},
		{"CONFLUENCE_USERNAME", str(&c.Confluence.Username)},
		{"CONFLUENCE_API_TOKEN", str(&c.Confluence.APIToken)},
		{"CONFLUENCE_SPACE_WHITELIST", list(&c.Confluence.SpaceWhitelist)},
		{"CONFLUENCE_REQUESTS_PER_SECOND", float64Value(&c.Confluence.RequestsPerSecond)},
		{"CONFLUENCE_TIMEOUT", duration(&c.Confluence.Timeout)},

		{"PAGEWISE_POOL_SIZE", integer(&c.Ingestion.PoolSize)},
		{"PAGEWISE_QUEUE_SIZE", integer(&c.Ingestion.QueueSize)},
		{"PAGEWISE_RELEASE_TIMEOUT", duration(&c.Ingestion.ReleaseTimeout)},

		{"PAGEWISE_LISTEN_ADDR", str(&c.Server.ListenAddr)},
	}
}

// applyEnv overrides c with every variable lookup finds.
func applyEnv(c *Config, lookup func(string) (string, bool)) error {
	for _, v := range envVars(c) {
		value, ok := lookup(v.key)
		if !ok {
			continue
		}
		if err := v.apply(value); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, v.key, err)
		}
	}
	return nil
}
