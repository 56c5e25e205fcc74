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

package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/poiesic/pagewise/chat"
	"github.com/poiesic/pagewise/core"
	"github.com/poiesic/pagewise/ingestion"
	"github.com/poiesic/pagewise/source/confluence"
	"github.com/poiesic/pagewise/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// DefaultHistoryLimit is the number of turns GET /history returns without ?limit.
	DefaultHistoryLimit = 50

	maxWebhookBody = 1 << 20
)

// Submitter queues ingestion events and indexes supplied text.
// *ingestion.Pipeline implements it.
type Submitter interface {
	Submit(event ingestion.Event) error
	IngestText(ctx context.Context, doc ingestion.TextDocument) (*ingestion.Result, error)
	QueueLength() int
}

// Retriever runs similarity searches. *search.Searcher implements it.
type Retriever interface {
	Search(ctx context.Context, query string, topK int, filter *storage.Filter) ([]*core.SearchResult, error)
	TopK() int
}

// Responder answers questions. *chat.Responder implements it.
type Responder interface {
	Respond(ctx context.Context, conversationID, question string, opts ...chat.RespondOption) (*chat.Answer, error)
}

// Server is the HTTP front end of the service.
type Server struct {
	echo          *echo.Echo
	submitter     Submitter
	responder     Responder
	retriever     Retriever
	conversations storage.ConversationRepository
	gatherer      prometheus.Gatherer
	logger        *slog.Logger
}

// Option configures a Server.
type Option func(*Server) error

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		if logger != nil {
			s.logger = logger
		}
		return nil
	}
}

// WithRetriever enables POST /retriever/query.
func WithRetriever(r Retriever) Option {
	return func(s *Server) error {
		s.retriever = r
		return nil
	}
}

// WithGatherer serves metrics from g on /metrics.
// Default is prometheus.DefaultGatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) error {
		if g != nil {
			s.gatherer = g
		}
		return nil
	}
}

// New creates a server and registers its routes.
func New(submitter Submitter, responder Responder, conversations storage.ConversationRepository, opts ...Option) (*Server, error) {
	if submitter == nil {
		return nil, ErrSubmitterRequired
	}
	if responder == nil {
		return nil, ErrResponderRequired
	}
	if conversations == nil {
		return nil, ErrConversationRepositoryRequired
	}

	s := &Server{
		echo:          echo.New(),
		submitter:     submitter,
		responder:     responder,
		conversations: conversations,
		gatherer:      prometheus.DefaultGatherer,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "server")

	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Debug("request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))
	s.Register(s.echo)
	return s, nil
}

// Register adds the routes to e.
func (s *Server) Register(e *echo.Echo) {
	e.POST("/webhook/confluence", s.webhook)
	e.POST("/embeddings/create", s.createEmbeddings)
	e.POST("/chat", s.chat)
	if s.retriever != nil {
		e.POST("/retriever/query", s.query)
	}
	e.GET("/history/:conversation", s.history)
	e.DELETE("/history/:conversation", s.deleteHistory)
	e.GET("/healthz", s.health)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("listening", "addr", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for active requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) webhook(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable body"})
	}
	hook, err := confluence.ParseWebhook(body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	kind := ingestion.KindFromWebhook(hook.Event)
	if !kind.Ingestable() {
		s.logger.Debug("ignoring webhook", "event", hook.Event, "page_id", hook.PageID)
		return c.JSON(http.StatusOK, webhookResponse{Status: "ignored", Event: hook.Event, PageID: hook.PageID})
	}

	if err := s.submitter.Submit(ingestion.Event{DocumentID: hook.PageID, Kind: kind}); err != nil {
		s.logger.Warn("webhook not queued", "page_id", hook.PageID, "err", err)
		return s.fail(c, err)
	}
	return c.JSON(http.StatusAccepted, webhookResponse{Status: "accepted", Event: hook.Event, PageID: hook.PageID})
}

func (s *Server) chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid json"})
	}
	req.ConversationID = strings.TrimSpace(req.ConversationID)
	if req.ConversationID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "conversation_id is required"})
	}

	var opts []chat.RespondOption
	if req.TopK > 0 {
		opts = append(opts, chat.WithTopK(req.TopK))
	}
	if len(req.Labels) > 0 {
		opts = append(opts, chat.WithLabels(req.Labels...))
	}

	answer, err := s.responder.Respond(c.Request().Context(), req.ConversationID, req.Question, opts...)
	if err != nil {
		s.logger.Error("respond failed", "conversation_id", req.ConversationID, "err", err)
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, newChatResponse(req.ConversationID, answer))
}

func (s *Server) createEmbeddings(c echo.Context) error {
	var req embeddingRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid json"})
	}

	result, err := s.submitter.IngestText(c.Request().Context(), ingestion.TextDocument{
		ID:       req.NodeID,
		Text:     req.Text,
		Metadata: req.Metadata,
		Labels:   req.Labels,
		Type:     req.DocumentType,
	})
	if err != nil {
		s.logger.Error("text ingestion failed", "node_id", req.NodeID, "err", err)
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, embeddingResponse{
		Status:  "accepted",
		NodeID:  result.DocumentID,
		Chunks:  result.Chunks,
		Records: result.Records,
	})
}

func (s *Server) query(c echo.Context) error {
	var req queryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid json"})
	}
	if req.TopK < 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "top_k must be at least 1"})
	}
	topK := req.TopK
	if topK == 0 {
		topK = s.retriever.TopK()
	}

	var filter *storage.Filter
	if len(req.Labels) > 0 {
		filter = &storage.Filter{Labels: req.Labels}
	}
	results, err := s.retriever.Search(c.Request().Context(), req.Query, topK, filter)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, newQueryResponse(topK, results))
}

func (s *Server) history(c echo.Context) error {
	conversationID := c.Param("conversation")
	limit := DefaultHistoryLimit
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid limit"})
		}
		limit = n
	}

	turns, err := s.conversations.Recent(c.Request().Context(), conversationID, limit)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, newHistoryResponse(conversationID, turns))
}

func (s *Server) deleteHistory(c echo.Context) error {
	if err := s.conversations.Delete(c.Request().Context(), c.Param("conversation")); err != nil {
		return s.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "ok", "queue_length": s.submitter.QueueLength()})
}

func (s *Server) fail(c echo.Context, err error) error {
	return c.JSON(statusFor(err), echo.Map{"error": err.Error()})
}
