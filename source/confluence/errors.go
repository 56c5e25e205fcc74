package confluence

import (
	"errors"
	"fmt"
)

var (
	// ErrBaseURLRequired is returned when a client is created without a site URL.
	ErrBaseURLRequired = errors.New("confluence base URL required")

	// ErrPageIDRequired is returned when Fetch is called with an empty id.
	ErrPageIDRequired = errors.New("page id required")

	// ErrMalformedWebhook is returned when a webhook body is not valid JSON.
	ErrMalformedWebhook = errors.New("malformed webhook payload")
)

// StatusError reports a non-2xx response from the REST API.
type StatusError struct {
	PageID     string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("page %s: unexpected status %d", e.PageID, e.StatusCode)
	}
	return fmt.Sprintf("page %s: unexpected status %d: %s", e.PageID, e.StatusCode, e.Body)
}
