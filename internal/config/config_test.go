package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feed.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validYAML = `
instance:
  id: "feed-test"

instruments:
  - tab_name: "BTC-USD"
    base_symbol: "BTC"
    settlement: "usd"
    source: "deribit"
  - tab_name: "ETH-COIN"
    base_symbol: "ETH"
    settlement: "coin"
    source: "deribit"

sources:
  deribit:
    rest_url: "https://example.com/api/v2"
    ws_url: "wss://example.com/ws/api/v2"
    timeout: 5s
    max_retries: 2

feed:
  reconnect_base_delay: 500ms
  reconnect_max_delay: 10s

metrics:
  port: 9191
`

func TestLoad(t *testing.T) {
	path := writeConfig(t, validYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Instance.ID != "feed-test" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "feed-test")
	}
	if len(cfg.Instruments) != 2 {
		t.Fatalf("len(Instruments) = %d, want 2", len(cfg.Instruments))
	}
	if cfg.Instruments[0].Settlement != "usd" {
		t.Errorf("Instruments[0].Settlement = %q, want %q", cfg.Instruments[0].Settlement, "usd")
	}
	if cfg.Instruments[1].Settlement != "coin" {
		t.Errorf("Instruments[1].Settlement = %q, want %q", cfg.Instruments[1].Settlement, "coin")
	}

	src, ok := cfg.Sources["deribit"]
	if !ok {
		t.Fatal("Sources missing deribit entry")
	}
	if src.Timeout != 5*time.Second {
		t.Errorf("Sources[deribit].Timeout = %v, want 5s", src.Timeout)
	}
	if src.MaxRetries != 2 {
		t.Errorf("Sources[deribit].MaxRetries = %d, want 2", src.MaxRetries)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Error("Load() on missing file should return error")
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_FEED_CLIENT_ID", "abc123")
	t.Setenv("TEST_FEED_CLIENT_SECRET", "s3cret")

	path := writeConfig(t, `
instance:
  id: "feed-test"
instruments:
  - tab_name: "BTC-USD"
    base_symbol: "BTC"
    settlement: "usd"
    source: "deribit"
sources:
  deribit:
    client_id: "${TEST_FEED_CLIENT_ID}"
    client_secret: "${TEST_FEED_CLIENT_SECRET}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	src := cfg.Sources["deribit"]
	if src.ClientID != "abc123" {
		t.Errorf("ClientID = %q, want %q", src.ClientID, "abc123")
	}
	if src.ClientSecret != "s3cret" {
		t.Errorf("ClientSecret = %q, want %q", src.ClientSecret, "s3cret")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	// Minimal config: known sources need no sources block at all.
	path := writeConfig(t, `
instance:
  id: "feed-test"
instruments:
  - tab_name: "BTC-USD"
    base_symbol: "BTC"
    settlement: "usd"
    source: "deribit"
  - tab_name: "SOL-USD"
    base_symbol: "SOL"
    settlement: "usd"
    source: "bybit"
`)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults() error = %v", err)
	}

	deribit := cfg.Sources["deribit"]
	if deribit.RestURL != DefaultDeribitRestURL {
		t.Errorf("deribit RestURL = %q, want %q", deribit.RestURL, DefaultDeribitRestURL)
	}
	if deribit.WSURL != DefaultDeribitWSURL {
		t.Errorf("deribit WSURL = %q, want %q", deribit.WSURL, DefaultDeribitWSURL)
	}

	bybit := cfg.Sources["bybit"]
	if bybit.RestURL != DefaultBybitRestURL {
		t.Errorf("bybit RestURL = %q, want %q", bybit.RestURL, DefaultBybitRestURL)
	}

	if cfg.Feed.BootstrapAttempts != DefaultBootstrapAttempts {
		t.Errorf("BootstrapAttempts = %d, want %d", cfg.Feed.BootstrapAttempts, DefaultBootstrapAttempts)
	}
	if cfg.Feed.ReconnectMaxDelay != DefaultReconnectMaxDelay {
		t.Errorf("ReconnectMaxDelay = %v, want %v", cfg.Feed.ReconnectMaxDelay, DefaultReconnectMaxDelay)
	}
	if cfg.Feed.DegradedThreshold != DefaultDegradedThreshold {
		t.Errorf("DegradedThreshold = %d, want %d", cfg.Feed.DegradedThreshold, DefaultDegradedThreshold)
	}
	if cfg.Metrics.Port != DefaultMetricsPort {
		t.Errorf("Metrics.Port = %d, want %d", cfg.Metrics.Port, DefaultMetricsPort)
	}
	if cfg.Metrics.Path != DefaultMetricsPath {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, DefaultMetricsPath)
	}
}

func TestDefaultsPreserveExplicitValues(t *testing.T) {
	path := writeConfig(t, validYAML)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults() error = %v", err)
	}

	if cfg.Sources["deribit"].RestURL != "https://example.com/api/v2" {
		t.Errorf("explicit rest_url overwritten: %q", cfg.Sources["deribit"].RestURL)
	}
	if cfg.Feed.ReconnectBaseDelay != 500*time.Millisecond {
		t.Errorf("ReconnectBaseDelay = %v, want 500ms", cfg.Feed.ReconnectBaseDelay)
	}
	if cfg.Metrics.Port != 9191 {
		t.Errorf("Metrics.Port = %d, want 9191", cfg.Metrics.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing instance id",
			mutate:  func(c *Config) { c.Instance.ID = "" },
			wantErr: "instance.id",
		},
		{
			name:    "no instruments",
			mutate:  func(c *Config) { c.Instruments = nil },
			wantErr: "at least one instrument",
		},
		{
			name:    "missing tab name",
			mutate:  func(c *Config) { c.Instruments[0].TabName = "" },
			wantErr: "tab_name",
		},
		{
			name:    "missing base symbol",
			mutate:  func(c *Config) { c.Instruments[0].BaseSymbol = "" },
			wantErr: "base_symbol",
		},
		{
			name:    "bad settlement",
			mutate:  func(c *Config) { c.Instruments[0].Settlement = "eur" },
			wantErr: "settlement",
		},
		{
			name:    "unknown source without urls",
			mutate:  func(c *Config) { c.Instruments[0].Source = "kraken" },
			wantErr: "source",
		},
		{
			name:    "known source with urls cleared",
			mutate:  func(c *Config) { c.Sources["deribit"] = SourceConfig{} },
			wantErr: "rest_url and ws_url are required",
		},
		{
			name: "base delay above max",
			mutate: func(c *Config) {
				c.Feed.ReconnectBaseDelay = time.Minute
				c.Feed.ReconnectMaxDelay = time.Second
			},
			wantErr: "reconnect_base_delay",
		},
		{
			name:    "zero bootstrap attempts",
			mutate:  func(c *Config) { c.Feed.BootstrapAttempts = 0 },
			wantErr: "bootstrap_attempts",
		},
		{
			name:    "bad metrics port",
			mutate:  func(c *Config) { c.Metrics.Port = 70000 },
			wantErr: "metrics.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, validYAML)
			cfg, err := LoadWithDefaults(path)
			if err != nil {
				t.Fatalf("LoadWithDefaults() error = %v", err)
			}

			tt.mutate(cfg)
			err = cfg.Validate()

			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestToModel(t *testing.T) {
	ic := InstrumentConfig{TabName: "BTC-USD", BaseSymbol: "BTC", Settlement: "usd", Source: "deribit"}
	m := ic.ToModel()

	if m.TabName != "BTC-USD" || m.BaseSymbol != "BTC" || m.Settlement != "usd" || m.Source != "deribit" {
		t.Errorf("ToModel() = %+v, want all fields carried over", m)
	}
}
