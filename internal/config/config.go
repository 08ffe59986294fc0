package config

import "time"

// ClientConfig is the root configuration for the market data client.
type ClientConfig struct {
	API    APIConfig    `yaml:"api"`
	Auth   AuthConfig   `yaml:"auth"`
	Stream StreamConfig `yaml:"stream"`
	Watch  WatchConfig  `yaml:"watch"`
}

// APIConfig holds REST endpoint settings.
type APIConfig struct {
	BaseURL        string        `yaml:"base_url"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	MaxRetries     int           `yaml:"max_retries"`
}

// AuthConfig holds the caller identity source. Token takes precedence
// over TokenFile when both are set.
type AuthConfig struct {
	Token     string `yaml:"token"`
	TokenFile string `yaml:"token_file"`
}

// StreamConfig holds push channel settings.
type StreamConfig struct {
	WSURL             string        `yaml:"ws_url"`
	HealthURL         string        `yaml:"health_url"`
	SymbolLimit       int           `yaml:"symbol_limit"`
	WatchdogTimeout   time.Duration `yaml:"watchdog_timeout"`
	ReconnectCooldown time.Duration `yaml:"reconnect_cooldown"`
	ProbeTimeout      time.Duration `yaml:"probe_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	BufferSize        int           `yaml:"buffer_size"`
}

// WatchConfig holds the REST polling fallback settings.
type WatchConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}
