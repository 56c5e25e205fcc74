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

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/pagewise/ai"
	"github.com/poiesic/pagewise/core"
	"github.com/poiesic/pagewise/normalize"
	"github.com/poiesic/pagewise/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultSystemPrompt instructs the model to stay grounded in the retrieved context.
	DefaultSystemPrompt = "You are a helpful assistant answering questions about the organisation's Confluence knowledge base. " +
		"Answer from the provided context. If the context does not contain the answer, say so instead of guessing."

	// DefaultHistoryTurns is the number of previous turns included in the prompt.
	DefaultHistoryTurns = 10

	// DefaultMaxCharsPerSource caps the runes of each retrieved chunk in the prompt.
	DefaultMaxCharsPerSource = 1500
)

// Retriever finds stored chunks relevant to a question.
// *search.Searcher implements it.
type Retriever interface {
	Search(ctx context.Context, query string, topK int, filter *storage.Filter) ([]*core.SearchResult, error)
}

// Answer is the outcome of one Respond call.
type Answer struct {
	Text string
	// Sources are the retrieved chunks as they appeared in the prompt, already truncated.
	Sources []*core.SearchResult
	// Messages is the prompt sent to the language model.
	Messages []ai.Message
	// Turns are the user and assistant turns appended to the conversation.
	Turns []*core.ConversationTurn
}

// Responder runs retrieval-augmented generation over a conversation.
type Responder struct {
	retriever         Retriever
	conversations     storage.ConversationRepository
	generator         ai.Generator
	generateOptions   ai.GenerateOptions
	systemPrompt      string
	historyTurns      int
	maxCharsPerSource int
	registerer        prometheus.Registerer
	metrics           *metrics
	logger            *slog.Logger
}

// Option configures a Responder.
type Option func(*Responder) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Responder) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// WithSystemPrompt replaces DefaultSystemPrompt.
func WithSystemPrompt(prompt string) Option {
	return func(r *Responder) error {
		if strings.TrimSpace(prompt) != "" {
			r.systemPrompt = prompt
		}
		return nil
	}
}

// WithHistoryTurns sets how many recent turns are included. Zero disables history.
func WithHistoryTurns(turns int) Option {
	return func(r *Responder) error {
		if turns < 0 {
			return fmt.Errorf("history turns cannot be negative, got %d", turns)
		}
		r.historyTurns = turns
		return nil
	}
}

// WithMaxCharsPerSource sets the rune cap per retrieved chunk. Zero disables the cap.
func WithMaxCharsPerSource(maxChars int) Option {
	return func(r *Responder) error {
		if maxChars < 0 {
			return fmt.Errorf("max chars per source cannot be negative, got %d", maxChars)
		}
		r.maxCharsPerSource = maxChars
		return nil
	}
}

// WithGenerateOptions overrides the options taken from the AI provider.
func WithGenerateOptions(opts ai.GenerateOptions) Option {
	return func(r *Responder) error {
		r.generateOptions = opts
		return nil
	}
}

// WithRegisterer registers the responder metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(r *Responder) error {
		r.registerer = reg
		return nil
	}
}

// NewResponder creates a responder.
func NewResponder(
	retriever Retriever,
	conversations storage.ConversationRepository,
	provider ai.AIProvider,
	opts ...Option,
) (*Responder, error) {
	if retriever == nil {
		return nil, ErrRetrieverRequired
	}
	if conversations == nil {
		return nil, ErrConversationRepositoryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	r := &Responder{
		retriever:         retriever,
		conversations:     conversations,
		generator:         provider.Generator(),
		generateOptions:   provider.GenerateOptions(),
		systemPrompt:      DefaultSystemPrompt,
		historyTurns:      DefaultHistoryTurns,
		maxCharsPerSource: DefaultMaxCharsPerSource,
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.logger = r.logger.With("component", "chat")

	m, err := newMetrics(r.registerer)
	if err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}
	r.metrics = m
	return r, nil
}

// RespondOption adjusts a single Respond call.
type RespondOption func(*respondConfig)

type respondConfig struct {
	topK   int
	labels []string
}

// WithTopK sets the number of sources to retrieve. Zero keeps the retriever default.
func WithTopK(topK int) RespondOption {
	return func(c *respondConfig) {
		c.topK = topK
	}
}

// WithLabels restricts retrieval to chunks carrying any of labels.
func WithLabels(labels ...string) RespondOption {
	return func(c *respondConfig) {
		c.labels = normalize.Labels(labels)
	}
}

// Respond answers question within conversationID.
//
// Retrieval finding nothing is not an error; the prompt then says so. Embedding
// failures wrap core.ErrEmbeddingBackend, generation failures core.ErrGeneration
// and store failures core.ErrStoreUnavailable. The conversation is only
// modified when the whole call succeeds.
func (r *Responder) Respond(ctx context.Context, conversationID, question string, opts ...RespondOption) (*Answer, error) {
	start := time.Now()
	cfg := &respondConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	ctx, span := tracer.Start(ctx, "chat.respond", trace.WithAttributes(
		attribute.String("pagewise.conversation.id", conversationID),
	))
	defer span.End()

	answer, err := r.respond(ctx, conversationID, question, cfg)
	r.metrics.duration.Observe(time.Since(start).Seconds())
	if err != nil {
		r.metrics.responses.WithLabelValues("failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Error("error responding", "conversation_id", conversationID, "err", err)
		return nil, err
	}
	r.metrics.responses.WithLabelValues("answered").Inc()
	r.metrics.sources.Observe(float64(len(answer.Sources)))
	span.SetAttributes(attribute.Int("pagewise.chat.sources", len(answer.Sources)))
	return answer, nil
}

func (r *Responder) respond(ctx context.Context, conversationID, question string, cfg *respondConfig) (*Answer, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, core.ErrEmptyConversationID
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	var filter *storage.Filter
	if len(cfg.labels) > 0 {
		filter = &storage.Filter{Labels: cfg.labels}
	}
	results, err := r.retriever.Search(ctx, question, cfg.topK, filter)
	if err != nil {
		return nil, fmt.Errorf("retrieving context: %w", err)
	}
	sources := truncateSources(results, r.maxCharsPerSource)
	if len(sources) == 0 {
		r.logger.Debug("no relevant context found", "conversation_id", conversationID)
	}

	history, err := r.conversations.Recent(ctx, conversationID, r.historyTurns)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	messages := make([]ai.Message, 0, len(history)+2)
	messages = append(messages, ai.Message{Role: ai.MessageRoleSystem, Content: r.systemPrompt})
	for _, turn := range history {
		messages = append(messages, ai.Message{Role: ai.MessageRole(turn.Role), Content: turn.Content})
	}
	messages = append(messages, ai.Message{Role: ai.MessageRoleUser, Content: userMessage(sources, question)})

	text, err := r.generator.Generate(ctx, messages, r.generateOptions)
	if err != nil {
		if !errors.Is(err, core.ErrGeneration) {
			err = fmt.Errorf("%w: %w", core.ErrGeneration, err)
		}
		return nil, err
	}
	text = strings.TrimSpace(text)

	turns, err := r.conversations.Append(ctx,
		&core.ConversationTurn{ConversationID: conversationID, Role: core.RoleUser, Content: question},
		&core.ConversationTurn{ConversationID: conversationID, Role: core.RoleAssistant, Content: text},
	)
	if err != nil {
		return nil, fmt.Errorf("saving turns: %w", err)
	}

	r.logger.Info("question answered",
		"conversation_id", conversationID,
		"sources", len(sources),
		"history_turns", len(history),
	)
	return &Answer{Text: text, Sources: sources, Messages: messages, Turns: turns}, nil
}
