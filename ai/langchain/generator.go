package langchain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/pagewise/ai"
	"github.com/poiesic/pagewise/core"
	"github.com/tmc/langchaingo/llms"
)

// Generator implements ai.Generator on top of a langchaingo chat model.
type Generator struct {
	model  llms.Model
	logger *slog.Logger
}

var _ ai.Generator = (*Generator)(nil)

// NewGenerator wraps a langchaingo model.
func NewGenerator(model llms.Model, logger *slog.Logger) (*Generator, error) {
	if model == nil {
		return nil, fmt.Errorf("language model required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{model: model, logger: logger}, nil
}

// Generate sends the messages to the model and returns the first choice.
// ContextWindow is fixed when the client is built and is not a per-call option.
func (g *Generator) Generate(ctx context.Context, messages []ai.Message, opts ai.GenerateOptions) (string, error) {
	content := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		content = append(content, llms.TextParts(messageType(msg.Role), msg.Content))
	}

	callOpts := []llms.CallOption{llms.WithTemperature(opts.Temperature)}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}

	g.logger.Debug("generating answer", "messages", len(messages))
	resp, err := g.model.GenerateContent(ctx, content, callOpts...)
	if err != nil {
		g.logger.Error("generation failed", "err", err)
		return "", fmt.Errorf("%w: %w", core.ErrGeneration, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: %w", core.ErrGeneration, errors.New("model returned no choices"))
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}

func messageType(role ai.MessageRole) llms.ChatMessageType {
	switch role {
	case ai.MessageRoleSystem:
		return llms.ChatMessageTypeSystem
	case ai.MessageRoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}
