package config

import (
	"errors"
	"fmt"

	"github.com/rickgao/market-feed/internal/model"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if len(c.Instruments) == 0 {
		return errors.New("at least one instrument is required")
	}

	for i, inst := range c.Instruments {
		if inst.TabName == "" {
			return fmt.Errorf("instruments[%d].tab_name is required", i)
		}
		if inst.BaseSymbol == "" {
			return fmt.Errorf("instruments[%d].base_symbol is required", i)
		}
		if inst.Settlement != model.SettlementUSD && inst.Settlement != model.SettlementCoin {
			return fmt.Errorf("instruments[%d].settlement must be %q or %q, got %q",
				i, model.SettlementUSD, model.SettlementCoin, inst.Settlement)
		}
		if inst.Source == "" {
			return fmt.Errorf("instruments[%d].source is required", i)
		}
		src, ok := c.Sources[inst.Source]
		if !ok {
			return fmt.Errorf("instruments[%d]: source %q has no sources entry", i, inst.Source)
		}
		if src.RestURL == "" || src.WSURL == "" {
			return fmt.Errorf("sources.%s: rest_url and ws_url are required", inst.Source)
		}
	}

	if c.Feed.ReconnectBaseDelay > c.Feed.ReconnectMaxDelay {
		return fmt.Errorf("feed.reconnect_base_delay (%s) cannot exceed feed.reconnect_max_delay (%s)",
			c.Feed.ReconnectBaseDelay, c.Feed.ReconnectMaxDelay)
	}
	if c.Feed.BootstrapAttempts < 1 {
		return errors.New("feed.bootstrap_attempts must be >= 1")
	}
	if c.Feed.DegradedThreshold < 1 {
		return errors.New("feed.degraded_threshold must be >= 1")
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

// ToModel converts a config instrument into the domain type.
func (ic InstrumentConfig) ToModel() model.Instrument {
	return model.Instrument{
		TabName:    ic.TabName,
		BaseSymbol: ic.BaseSymbol,
		Settlement: ic.Settlement,
		Source:     ic.Source,
	}
}
