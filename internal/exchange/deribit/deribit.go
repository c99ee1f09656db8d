package deribit

import (
	"context"
	"log/slog"
	"time"

	"github.com/rickgao/market-feed/internal/exchange"
	"github.com/rickgao/market-feed/internal/model"
	"github.com/rickgao/market-feed/internal/registry"
)

// SourceName is the config source value this adapter serves.
const SourceName = "deribit"

// Config holds Deribit endpoints and optional credentials.
type Config struct {
	RestURL      string
	WSURL        string
	ClientID     string // empty = public access only
	ClientSecret string
	Timeout      time.Duration
	MaxRetries   int
}

// Adapter implements exchange.Adapter for Deribit.
type Adapter struct {
	cfg    Config
	rest   *restClient
	logger *slog.Logger
}

// New creates a Deribit adapter.
func New(cfg Config, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("source", SourceName)
	return &Adapter{
		cfg:    cfg,
		rest:   newRESTClient(cfg.RestURL, cfg.Timeout, cfg.MaxRetries, logger),
		logger: logger,
	}
}

// Name returns the source name.
func (a *Adapter) Name() string { return SourceName }

// Bootstrap fetches the option chain per instrument group and the
// current reference prices over REST.
func (a *Adapter) Bootstrap(ctx context.Context, instruments []model.Instrument) (*exchange.Bootstrap, error) {
	b := &exchange.Bootstrap{
		Source:      SourceName,
		Instruments: make(map[string][]model.InstrumentMeta),
		IndexPrices: make(map[string]float64),
		FetchedAt:   time.Now(),
	}

	fetched := make(map[string][]instrumentWire) // currency → chain, fetched once
	for _, inst := range instruments {
		currency := apiCurrency(inst)
		chain, ok := fetched[currency]
		if !ok {
			var err error
			chain, err = a.rest.getInstruments(ctx, currency)
			if err != nil {
				return nil, &exchange.FetchError{Source: SourceName, Err: err}
			}
			fetched[currency] = chain
		}

		var metas []model.InstrumentMeta
		for _, w := range chain {
			if matchesGroup(inst, w.InstrumentName) {
				metas = append(metas, w.toMeta())
			}
		}
		b.Instruments[inst.TabName] = append(b.Instruments[inst.TabName], metas...)
		a.logger.Info("fetched option chain",
			"tab", inst.TabName,
			"currency", currency,
			"contracts", len(metas),
		)
	}

	// Reference prices are best-effort: a missing ticker leaves the key
	// absent, the stream fills it in later.
	seen := make(map[string]struct{})
	for _, inst := range instruments {
		for _, key := range registry.ReferenceKeys(inst) {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			tkr, err := a.rest.getTicker(ctx, key)
			if err != nil {
				a.logger.Warn("bootstrap ticker fetch failed", "key", key, "error", err)
				continue
			}
			if px := tkr.referencePrice(); px > 0 {
				b.IndexPrices[key] = px
			}
		}
	}

	return b, nil
}

// OpenStream dials the WebSocket endpoint, authenticates when
// credentials are configured, and enables protocol heartbeats.
func (a *Adapter) OpenStream(ctx context.Context, instruments []model.Instrument) (exchange.Stream, error) {
	return openStream(ctx, a.cfg, instruments, a.logger)
}
