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

package confluence

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/poiesic/pagewise/core"
	"golang.org/x/time/rate"
)

const (
	// DefaultRequestsPerSecond is the proactive throttle applied to REST calls.
	DefaultRequestsPerSecond = 5.0

	// DefaultTimeout bounds a single REST call.
	DefaultTimeout = 30 * time.Second

	contentPath = "/wiki/rest/api/content/"
	expand      = "body.storage,version,space,history.lastUpdated,metadata.labels"

	// maxErrorBody caps how much of an error response is kept for diagnostics.
	maxErrorBody = 512
)

// Client is a minimal Confluence Cloud REST client.
type Client struct {
	baseURL    string
	username   string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Useful for tests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithRateLimit sets the sustained request rate. A value <= 0 disables throttling.
func WithRateLimit(requestsPerSecond float64) Option {
	return func(c *Client) {
		if requestsPerSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a client for the site at baseURL, e.g. https://example.atlassian.net.
func New(baseURL, username, token string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, ErrBaseURLRequired
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}

	c := &Client{
		baseURL:    baseURL,
		username:   username,
		token:      token,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRequestsPerSecond), 1),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "confluence")
	return c, nil
}

// Fetch retrieves a page with its storage-format body and metadata.
// Every failure wraps core.ErrFetch.
func (c *Client) Fetch(ctx context.Context, id string) (*core.Document, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: %w", core.ErrFetch, ErrPageIDRequired)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: waiting for rate limiter: %w", core.ErrFetch, err)
	}

	endpoint := c.baseURL + contentPath + url.PathEscape(id) + "?" + url.Values{"expand": {expand}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrFetch, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.username != "" || c.token != "" {
		req.SetBasicAuth(c.username, c.token)
	}

	c.logger.Debug("fetching page", "page_id", id)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: %w", core.ErrFetch, &StatusError{
			PageID:     id,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		})
	}

	var p page
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: decoding page %s: %w", core.ErrFetch, id, err)
	}
	if p.ID == "" {
		p.ID = id
	}
	return p.document(c.baseURL), nil
}
