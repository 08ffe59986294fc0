package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// envelope is the uniform response wrapper used by every endpoint.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// rateLimitBody is the optional 429 payload carrying a suggested wait.
type rateLimitBody struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retryAfter"` // seconds
}

// sleepFor waits d unless the context is cancelled first.
func sleepFor(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// backoffDelay returns the exponential backoff for a zero-based
// attempt index: 1s, 2s, 4s, ...
func backoffDelay(attempt int) time.Duration {
	return time.Duration(1<<attempt) * time.Second
}

// doAttempt performs a single HTTP attempt under the per-attempt
// timeout and returns the raw body on 2xx.
func (c *Client) doAttempt(ctx context.Context, method, path string, query url.Values, body []byte, token string) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(attemptCtx, method, fullURL, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		var rl rateLimitBody
		json.Unmarshal(respBody, &rl)
		return nil, &RateLimitedError{
			RetryAfter: time.Duration(rl.RetryAfter) * time.Second,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Body:       respBody,
		}
	}

	return respBody, nil
}

// execute performs a logical request with retry. 429 responses honor
// the server-suggested wait (falling back to exponential backoff) up
// to the retry cap; transport failures use exponential backoff; other
// non-2xx statuses fail immediately.
func (c *Client) execute(ctx context.Context, method, path string, query url.Values, body []byte, token string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		respBody, err := c.doAttempt(ctx, method, path, query, body, token)
		if err == nil {
			return respBody, nil
		}
		lastErr = err

		var rateLimited *RateLimitedError
		var statusErr *StatusError

		switch {
		case errors.As(err, &rateLimited):
			wait := rateLimited.RetryAfter
			if wait <= 0 {
				wait = backoffDelay(attempt)
			}
			c.logger.Warn("rate limited, backing off",
				"path", path,
				"attempt", attempt+1,
				"wait", wait,
			)
			if attempt == c.maxRetries-1 {
				return nil, &RateLimitedError{RetryAfter: wait}
			}
			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}

		case errors.As(err, &statusErr):
			// A logical fault at the HTTP layer; retrying cannot help.
			return nil, err

		default:
			// Transport-level failure.
			if attempt == c.maxRetries-1 {
				break
			}
			wait := backoffDelay(attempt)
			c.logger.Debug("transport failure, retrying",
				"path", path,
				"attempt", attempt+1,
				"wait", wait,
				"error", err,
			)
			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}
	}

	var rateLimited *RateLimitedError
	if errors.As(lastErr, &rateLimited) {
		return nil, lastErr
	}

	return nil, &TransportError{
		Attempts: c.maxRetries,
		Timeout:  isTimeout(lastErr),
		Err:      lastErr,
	}
}

// isTimeout reports whether err stems from an elapsed deadline.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var timeoutErr interface{ Timeout() bool }
	return errors.As(err, &timeoutErr) && timeoutErr.Timeout()
}

// call performs a request and unwraps the response envelope into out.
func (c *Client) call(ctx context.Context, method, path string, query url.Values, reqBody any, token string, out any) error {
	var payload []byte
	if reqBody != nil {
		var err error
		payload, err = json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	body, err := c.execute(ctx, method, path, query, payload, token)
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("unmarshal envelope: %w", err)
	}
	if !env.Success {
		return &APIError{Message: env.Error}
	}

	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("unmarshal data: %w", err)
		}
	}

	return nil
}

// cached wraps a read operation with cache lookup and single-flight
// fetch collapse. The fetch result is stored under key with ttl.
func (c *Client) cached(ctx context.Context, key string, ttl time.Duration, fetch func(ctx context.Context) (any, error)) (any, error) {
	if v, ok := c.cache.Get(key); ok {
		return v, nil
	}

	v, err, _ := c.flight.Do(key, func() (any, error) {
		// Another caller may have populated the key while we queued.
		if v, ok := c.cache.Get(key); ok {
			return v, nil
		}

		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.cache.Set(key, v, ttl)
		return v, nil
	})
	return v, err
}
