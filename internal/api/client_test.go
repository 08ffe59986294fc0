package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/gil10101/sokin-sub003/internal/auth"
	"github.com/gil10101/sokin-sub003/internal/cache"
)

// recordingSleeper captures retry waits instead of sleeping.
type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waits = append(r.waits, d)
	return nil
}

func (r *recordingSleeper) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.waits...)
}

// newTestClient builds a client against a test server with retries
// that never actually sleep.
func newTestClient(serverURL string, opts ...ClientOption) (*Client, *recordingSleeper) {
	rec := &recordingSleeper{}
	c := NewClient(serverURL, opts...)
	c.sleep = rec.sleep
	return c, rec
}

// writeEnvelope writes a success envelope with data.
func writeEnvelope(t *testing.T, w http.ResponseWriter, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal test data: %v", err)
	}
	json.NewEncoder(w).Encode(envelope{Success: true, Data: raw})
}

func TestNewClient(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c := NewClient("https://api.example.com")

		if c.baseURL != "https://api.example.com" {
			t.Errorf("baseURL = %q, want %q", c.baseURL, "https://api.example.com")
		}
		if c.maxRetries != 3 {
			t.Errorf("maxRetries = %d, want 3", c.maxRetries)
		}
		if c.attemptTimeout != 30*time.Second {
			t.Errorf("attemptTimeout = %v, want 30s", c.attemptTimeout)
		}
		if c.cache == nil {
			t.Error("cache should not be nil")
		}
		if c.logger == nil {
			t.Error("logger should not be nil")
		}
	})

	t.Run("with options", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		store := cache.New()
		ts := auth.NewStaticTokenSource("tok")
		hc := &http.Client{}

		c := NewClient("https://api.example.com",
			WithRetries(5),
			WithAttemptTimeout(10*time.Second),
			WithLogger(logger),
			WithCache(store),
			WithTokenSource(ts),
			WithHTTPClient(hc),
		)

		if c.maxRetries != 5 {
			t.Errorf("maxRetries = %d, want 5", c.maxRetries)
		}
		if c.attemptTimeout != 10*time.Second {
			t.Errorf("attemptTimeout = %v, want 10s", c.attemptTimeout)
		}
		if c.logger != logger {
			t.Error("logger not set")
		}
		if c.cache != store {
			t.Error("cache not set")
		}
		if c.tokens != ts {
			t.Error("token source not set")
		}
		if c.httpClient != hc {
			t.Error("http client not set")
		}
	})
}

func TestEnvelopeFailureSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(envelope{Success: false, Error: "no data available"})
	}))
	defer server.Close()

	c, _ := newTestClient(server.URL)

	_, err := c.GetMarketIndices(context.Background())
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("err = %T(%v), want *APIError", err, err)
	}
	if apiErr.Message != "no data available" {
		t.Errorf("Message = %q, want %q", apiErr.Message, "no data available")
	}
}

func TestErrorStrings(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&ValidationError{Field: "limit", Message: "must be between 1 and 50"}, "invalid limit: must be between 1 and 50"},
		{&APIError{Message: "boom"}, "api error: boom"},
		{&StatusError{StatusCode: 503}, "unexpected status 503"},
		{&RateLimitedError{RetryAfter: 2 * time.Second}, "rate limited, retry after 2s"},
	}

	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}
