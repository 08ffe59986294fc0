package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/gil10101/sokin-sub003/internal/auth"
	"github.com/gil10101/sokin-sub003/internal/cache"
)

// apiBasePath is the versioned prefix for all REST endpoints.
const apiBasePath = "/api/v1"

// Client provides access to the Sokin market-data REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	tokens auth.TokenSource
	cache  *cache.Store
	flight singleflight.Group

	maxRetries     int
	attemptTimeout time.Duration

	// sleep waits between retries; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new REST API client. The base URL carries no
// path; the versioned prefix is appended per call.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:        baseURL,
		httpClient:     &http.Client{},
		logger:         slog.Default(),
		cache:          cache.New(),
		maxRetries:     3,
		attemptTimeout: 30 * time.Second,
		sleep:          sleepFor,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTokenSource sets the identity collaborator used for
// authenticated endpoints.
func WithTokenSource(ts auth.TokenSource) ClientOption {
	return func(c *Client) {
		c.tokens = ts
	}
}

// WithCache sets a shared response cache. Useful when several clients
// must observe the same invalidation.
func WithCache(store *cache.Store) ClientOption {
	return func(c *Client) {
		c.cache = store
	}
}

// WithRetries sets the retry cap for rate-limited and transport
// failures.
func WithRetries(max int) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
	}
}

// WithAttemptTimeout sets the hard per-attempt timeout.
func WithAttemptTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.attemptTimeout = d
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

// Cache exposes the response cache so callers can force a refresh.
func (c *Client) Cache() *cache.Store {
	return c.cache
}
