package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultAttemptTimeout    = 30 * time.Second
	DefaultMaxRetries        = 3
	DefaultSymbolLimit       = 20
	DefaultWatchdogTimeout   = 10 * time.Second
	DefaultReconnectCooldown = 2 * time.Second
	DefaultProbeTimeout      = 5 * time.Second
	DefaultWriteTimeout      = 5 * time.Second
	DefaultBufferSize        = 256
	DefaultPollInterval      = 30 * time.Second
)

func (c *ClientConfig) applyDefaults() {
	// API defaults
	if c.API.AttemptTimeout == 0 {
		c.API.AttemptTimeout = DefaultAttemptTimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}

	// Stream defaults
	if c.Stream.SymbolLimit == 0 {
		c.Stream.SymbolLimit = DefaultSymbolLimit
	}
	if c.Stream.WatchdogTimeout == 0 {
		c.Stream.WatchdogTimeout = DefaultWatchdogTimeout
	}
	if c.Stream.ReconnectCooldown == 0 {
		c.Stream.ReconnectCooldown = DefaultReconnectCooldown
	}
	if c.Stream.ProbeTimeout == 0 {
		c.Stream.ProbeTimeout = DefaultProbeTimeout
	}
	if c.Stream.WriteTimeout == 0 {
		c.Stream.WriteTimeout = DefaultWriteTimeout
	}
	if c.Stream.BufferSize == 0 {
		c.Stream.BufferSize = DefaultBufferSize
	}

	// Watch defaults
	if c.Watch.PollInterval == 0 {
		c.Watch.PollInterval = DefaultPollInterval
	}
}
