package api

import (
	"fmt"
	"time"
)

// ValidationError reports bad caller input. It is raised before any
// network attempt and never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// APIError is a logical failure reported by the server through the
// response envelope. Not retried; the message is surfaced verbatim.
type APIError struct {
	Message string
}

func (e *APIError) Error() string {
	return "api error: " + e.Message
}

// StatusError is a non-2xx response other than 429. It signals a
// logical rather than transient fault and is not retried.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// RateLimitedError is returned once 429 retries are exhausted.
// RetryAfter carries the server-suggested wait from the last response.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// TransportError is a network-level failure (connection refused, DNS,
// aborted transfer) that survived the retry budget. Timeout is true
// when the per-attempt deadline elapsed.
type TransportError struct {
	Attempts int
	Timeout  bool
	Err      error
}

func (e *TransportError) Error() string {
	kind := "network error"
	if e.Timeout {
		kind = "timeout"
	}
	return fmt.Sprintf("%s after %d attempts: %v", kind, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
