package openai

import (
	"log/slog"

	"github.com/poiesic/pagewise/ai"
	"github.com/poiesic/pagewise/ai/langchain"
	"github.com/tmc/langchaingo/llms/openai"
)

// NewProvider creates an AI provider backed by OpenAI-compatible services.
// The config is validated and normalized before use.
//
// Returns ai.AIProvider interface to prevent coupling to backend details.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	logger := slog.Default().With("component", "openai-provider")

	embedder, err := NewEmbedder(config)
	if err != nil {
		return nil, err
	}

	chatClient, err := openai.New(
		openai.WithBaseURL(config.GenerationHost),
		openai.WithToken(token(config)),
		openai.WithModel(config.GenerationModel),
	)
	if err != nil {
		return nil, err
	}
	generator, err := langchain.NewGenerator(chatClient, logger.With("service", "generator"))
	if err != nil {
		return nil, err
	}

	return langchain.NewProvider(embedder, generator, config.GenerateOptions(), logger), nil
}

// NewEmbedder creates only the embedding half of the provider.
// Used by maintenance commands that never generate text.
func NewEmbedder(config *ai.Config) (*langchain.Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	client, err := openai.New(
		openai.WithBaseURL(config.EmbeddingHost),
		openai.WithToken(token(config)),
		openai.WithEmbeddingModel(config.EmbeddingModel),
	)
	if err != nil {
		return nil, err
	}
	return langchain.NewEmbedder(client, config.EmbeddingDimension, config.EmbeddingBatchSize,
		slog.Default().With("component", "openai-embedder"))
}

// token falls back to a placeholder for local servers that don't require authentication.
func token(config *ai.Config) string {
	if config.APIToken == "" {
		return "none"
	}
	return config.APIToken
}
