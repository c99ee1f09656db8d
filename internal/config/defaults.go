package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultDeribitRestURL = "https://www.deribit.com/api/v2"
	DefaultDeribitWSURL   = "wss://www.deribit.com/ws/api/v2"
	DefaultBybitRestURL   = "https://api.bybit.com"
	DefaultBybitWSURL     = "wss://stream.bybit.com/v5/public/spot"

	DefaultSourceTimeout       = 10 * time.Second
	DefaultSourceMaxRetries    = 3
	DefaultBootstrapAttempts   = 3
	DefaultBootstrapRetryDelay = 2 * time.Second
	DefaultReconnectBaseDelay  = 1 * time.Second
	DefaultReconnectMaxDelay   = 60 * time.Second
	DefaultDegradedThreshold   = 5
	DefaultHeartbeatInterval   = 15 * time.Second
	DefaultStaleAfter          = 30 * time.Second
	DefaultStopTimeout         = 10 * time.Second
	DefaultMetricsPort         = 9090
	DefaultMetricsPath         = "/metrics"
)

// defaultSourceURLs maps known sources to their public endpoints.
var defaultSourceURLs = map[string]struct{ rest, ws string }{
	"deribit": {DefaultDeribitRestURL, DefaultDeribitWSURL},
	"bybit":   {DefaultBybitRestURL, DefaultBybitWSURL},
}

func (c *Config) applyDefaults() {
	if c.Sources == nil {
		c.Sources = make(map[string]SourceConfig)
	}

	// Every source referenced by an instrument gets an entry, so known
	// public sources work with zero source configuration.
	for _, inst := range c.Instruments {
		if _, ok := c.Sources[inst.Source]; !ok {
			c.Sources[inst.Source] = SourceConfig{}
		}
	}

	for name, src := range c.Sources {
		if urls, ok := defaultSourceURLs[name]; ok {
			if src.RestURL == "" {
				src.RestURL = urls.rest
			}
			if src.WSURL == "" {
				src.WSURL = urls.ws
			}
		}
		if src.Timeout == 0 {
			src.Timeout = DefaultSourceTimeout
		}
		if src.MaxRetries == 0 {
			src.MaxRetries = DefaultSourceMaxRetries
		}
		c.Sources[name] = src
	}

	if c.Feed.BootstrapAttempts == 0 {
		c.Feed.BootstrapAttempts = DefaultBootstrapAttempts
	}
	if c.Feed.BootstrapRetryDelay == 0 {
		c.Feed.BootstrapRetryDelay = DefaultBootstrapRetryDelay
	}
	if c.Feed.ReconnectBaseDelay == 0 {
		c.Feed.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Feed.ReconnectMaxDelay == 0 {
		c.Feed.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Feed.DegradedThreshold == 0 {
		c.Feed.DegradedThreshold = DefaultDegradedThreshold
	}
	if c.Feed.HeartbeatInterval == 0 {
		c.Feed.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Feed.StaleAfter == 0 {
		c.Feed.StaleAfter = DefaultStaleAfter
	}
	if c.Feed.StopTimeout == 0 {
		c.Feed.StopTimeout = DefaultStopTimeout
	}

	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}
