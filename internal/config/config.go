package config

import "time"

// Config is the root configuration for a feed instance.
type Config struct {
	Instance    InstanceConfig          `yaml:"instance"`
	Instruments []InstrumentConfig      `yaml:"instruments"`
	Sources     map[string]SourceConfig `yaml:"sources"`
	Feed        FeedConfig              `yaml:"feed"`
	Metrics     MetricsConfig           `yaml:"metrics"`
}

// InstanceConfig identifies this feed instance.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// InstrumentConfig is one tracked market group.
type InstrumentConfig struct {
	TabName    string `yaml:"tab_name"`
	BaseSymbol string `yaml:"base_symbol"`
	Settlement string `yaml:"settlement"` // "usd" or "coin"
	Source     string `yaml:"source"`     // e.g., "deribit"
}

// SourceConfig holds per-exchange endpoints and credentials.
// Credentials may be absent for sources that only need public access.
type SourceConfig struct {
	RestURL      string        `yaml:"rest_url"`
	WSURL        string        `yaml:"ws_url"`
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
}

// FeedConfig holds bootstrap, reconnect, and staleness settings.
type FeedConfig struct {
	BootstrapAttempts   int           `yaml:"bootstrap_attempts"`
	BootstrapRetryDelay time.Duration `yaml:"bootstrap_retry_delay"`
	ReconnectBaseDelay  time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay   time.Duration `yaml:"reconnect_max_delay"`
	DegradedThreshold   int           `yaml:"degraded_threshold"` // consecutive failures before degraded
	HeartbeatInterval   time.Duration `yaml:"heartbeat_interval"`
	StaleAfter          time.Duration `yaml:"stale_after"`
	StopTimeout         time.Duration `yaml:"stop_timeout"`
}

// MetricsConfig holds the health/metrics HTTP endpoint settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
