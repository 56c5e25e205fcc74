// Package ollama builds an ai.AIProvider against a native Ollama server using
// langchaingo. The context window is applied to the chat client as num_ctx.
package ollama

import (
	"log/slog"

	"github.com/poiesic/pagewise/ai"
	"github.com/poiesic/pagewise/ai/langchain"
	"github.com/tmc/langchaingo/llms/ollama"
)

// NewProvider creates an AI provider backed by Ollama.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	logger := slog.Default().With("component", "ollama-provider")

	embedder, err := NewEmbedder(config)
	if err != nil {
		return nil, err
	}

	chatOpts := []ollama.Option{
		ollama.WithServerURL(config.GenerationHost),
		ollama.WithModel(config.GenerationModel),
	}
	if config.ContextWindow > 0 {
		chatOpts = append(chatOpts, ollama.WithRunnerNumCtx(config.ContextWindow))
	}
	chatClient, err := ollama.New(chatOpts...)
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
func NewEmbedder(config *ai.Config) (*langchain.Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	client, err := ollama.New(
		ollama.WithServerURL(config.EmbeddingHost),
		ollama.WithModel(config.EmbeddingModel),
	)
	if err != nil {
		return nil, err
	}
	return langchain.NewEmbedder(client, config.EmbeddingDimension, config.EmbeddingBatchSize,
		slog.Default().With("component", "ollama-embedder"))
}
