package feed

import (
	"log/slog"

	"github.com/rickgao/market-feed/internal/config"
	"github.com/rickgao/market-feed/internal/exchange"
	"github.com/rickgao/market-feed/internal/exchange/bybit"
	"github.com/rickgao/market-feed/internal/exchange/deribit"
	"github.com/rickgao/market-feed/internal/model"
)

// AdapterFactory builds the adapter for one source. Replaceable in tests.
type AdapterFactory func(source string, cfg config.SourceConfig, instruments []model.Instrument, logger *slog.Logger) (exchange.Adapter, error)

// newAdapter is the default factory: it selects the adapter variant by
// the source value and rejects invalid instrument/source pairings before
// any network activity.
func newAdapter(source string, cfg config.SourceConfig, instruments []model.Instrument, logger *slog.Logger) (exchange.Adapter, error) {
	switch source {
	case deribit.SourceName:
		return deribit.New(deribit.Config{
			RestURL:      cfg.RestURL,
			WSURL:        cfg.WSURL,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Timeout:      cfg.Timeout,
			MaxRetries:   cfg.MaxRetries,
		}, logger), nil

	case bybit.SourceName:
		for _, inst := range instruments {
			if inst.Settlement != model.SettlementUSD {
				return nil, &exchange.ConfigError{
					Source: source,
					Reason: "only usd settlement is supported (tab " + inst.TabName + ")",
				}
			}
		}
		return bybit.New(bybit.Config{
			RestURL: cfg.RestURL,
			WSURL:   cfg.WSURL,
			Timeout: cfg.Timeout,
		}, logger), nil

	default:
		return nil, &exchange.ConfigError{Source: source, Reason: "unknown source"}
	}
}
