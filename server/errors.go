package server

import (
	"errors"
	"net/http"

	"github.com/poiesic/pagewise/chat"
	"github.com/poiesic/pagewise/core"
	"github.com/poiesic/pagewise/ingestion"
	"github.com/poiesic/pagewise/search"
)

var (
	// ErrSubmitterRequired is returned when no ingestion pipeline is provided.
	ErrSubmitterRequired = errors.New("submitter required")

	// ErrResponderRequired is returned when no responder is provided.
	ErrResponderRequired = errors.New("responder required")

	// ErrConversationRepositoryRequired is returned when no conversation repository is provided.
	ErrConversationRepositoryRequired = errors.New("conversation repository required")
)

// statusFor maps the error taxonomy to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, chat.ErrEmptyQuestion),
		errors.Is(err, search.ErrEmptyQuery),
		errors.Is(err, core.ErrEmptyConversationID),
		errors.Is(err, core.ErrInvalidTurn),
		errors.Is(err, ingestion.ErrDocumentIDRequired),
		errors.Is(err, ingestion.ErrEmptyText):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrGeneration),
		errors.Is(err, core.ErrEmbeddingBackend),
		errors.Is(err, core.ErrFetch):
		return http.StatusBadGateway
	case errors.Is(err, core.ErrStoreUnavailable),
		errors.Is(err, ingestion.ErrQueueFull),
		errors.Is(err, ingestion.ErrPipelineClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
