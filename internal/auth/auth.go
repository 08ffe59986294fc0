// Package auth supplies bearer tokens for authenticated API calls.
//
// The client never mints tokens itself; it consumes them from an
// external identity provider through the TokenSource interface.
// An absent identity is reported as ErrNoIdentity before any network
// attempt is made.
package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// ErrNoIdentity indicates no identity has been resolved; the caller
// should prompt for sign-in rather than retry.
var ErrNoIdentity = errors.New("no identity resolved")

// TokenSource provides a bearer token per call.
type TokenSource interface {
	// Token returns the current bearer token, or ErrNoIdentity when
	// the user is signed out.
	Token(ctx context.Context) (string, error)
}

// TokenSourceFunc adapts a function to the TokenSource interface.
type TokenSourceFunc func(ctx context.Context) (string, error)

func (f TokenSourceFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// StaticTokenSource returns a fixed token, or ErrNoIdentity when the
// token is empty. Useful for CLIs and tests.
type StaticTokenSource struct {
	mu    sync.RWMutex
	token string
}

// NewStaticTokenSource creates a StaticTokenSource holding token.
func NewStaticTokenSource(token string) *StaticTokenSource {
	return &StaticTokenSource{token: token}
}

// Token implements TokenSource.
func (s *StaticTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.token == "" {
		return "", ErrNoIdentity
	}
	return s.token, nil
}

// SetToken replaces the held token. An empty token signs the user out.
func (s *StaticTokenSource) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// FileTokenSource reads the token from a file on every call, so an
// external process can rotate it without restarting the client.
type FileTokenSource struct {
	Path string
}

// Token implements TokenSource.
func (f *FileTokenSource) Token(ctx context.Context) (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoIdentity
		}
		return "", fmt.Errorf("read token file: %w", err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", ErrNoIdentity
	}
	return token, nil
}
