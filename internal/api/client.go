// Package api is the REST client for the game backend. Every call is a
// plain request/response; the backend pushes side effects over the
// websocket separately.
package api

import (
	"log/slog"
	"net/http"
	"time"
)

// TokenSource supplies the bearer token for requests.
type TokenSource interface {
	Token() (string, bool)
}

// staticToken adapts a fixed string to TokenSource.
type staticToken string

func (s staticToken) Token() (string, bool) { return string(s), s != "" }

// Client provides access to the game REST API.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a REST API client.
func NewClient(baseURL string, tokens TokenSource, opts ...ClientOption) *Client {
	if tokens == nil {
		tokens = staticToken("")
	}
	c := &Client{
		baseURL: baseURL,
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:       slog.Default(),
		maxRetries:   3,
		retryBackoff: time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the retry configuration.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithStaticToken uses a fixed bearer token.
func WithStaticToken(token string) ClientOption {
	return func(c *Client) {
		c.tokens = staticToken(token)
	}
}
