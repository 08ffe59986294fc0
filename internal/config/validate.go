package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *ClientConfig) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}
	if !strings.HasPrefix(c.API.BaseURL, "http://") && !strings.HasPrefix(c.API.BaseURL, "https://") {
		return fmt.Errorf("api.base_url must be an http(s) URL, got %q", c.API.BaseURL)
	}
	if c.API.MaxRetries < 1 {
		return errors.New("api.max_retries must be >= 1")
	}
	if c.API.AttemptTimeout <= 0 {
		return errors.New("api.attempt_timeout must be positive")
	}

	if c.Stream.WSURL == "" {
		return errors.New("stream.ws_url is required")
	}
	if !strings.HasPrefix(c.Stream.WSURL, "ws://") && !strings.HasPrefix(c.Stream.WSURL, "wss://") {
		return fmt.Errorf("stream.ws_url must be a ws(s) URL, got %q", c.Stream.WSURL)
	}
	if c.Stream.SymbolLimit < 1 {
		return errors.New("stream.symbol_limit must be >= 1")
	}
	if c.Stream.WatchdogTimeout <= 0 {
		return errors.New("stream.watchdog_timeout must be positive")
	}
	if c.Stream.ReconnectCooldown < 0 {
		return errors.New("stream.reconnect_cooldown must be >= 0")
	}
	if c.Stream.BufferSize < 1 {
		return errors.New("stream.buffer_size must be >= 1")
	}

	if c.Watch.PollInterval <= 0 {
		return errors.New("watch.poll_interval must be positive")
	}

	return nil
}
