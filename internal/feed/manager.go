package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/market-feed/internal/config"
	"github.com/rickgao/market-feed/internal/model"
	"github.com/rickgao/market-feed/internal/registry"
	"github.com/rickgao/market-feed/internal/snapshot"
	"github.com/rickgao/market-feed/internal/supervisor"
)

// Manager orchestrates bootstrap and streaming for all configured
// sources and owns the snapshot store.
type Manager struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *snapshot.Store
	registry *registry.Registry

	supervisors []*supervisor.Supervisor

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures a Manager.
type Option func(*managerOptions)

type managerOptions struct {
	factory AdapterFactory
}

// WithAdapterFactory overrides how adapters are constructed per source.
func WithAdapterFactory(f AdapterFactory) Option {
	return func(o *managerOptions) {
		o.factory = f
	}
}

// New resolves configuration into per-source supervisors. Invalid
// instrument/source pairings fail here, before any network activity.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}

	options := managerOptions{factory: newAdapter}
	for _, opt := range opts {
		opt(&options)
	}

	instruments := make([]model.Instrument, 0, len(cfg.Instruments))
	for _, ic := range cfg.Instruments {
		instruments = append(instruments, ic.ToModel())
	}
	reg := registry.New(instruments)

	m := &Manager{
		cfg:      cfg,
		logger:   logger,
		store:    snapshot.NewStore(),
		registry: reg,
	}

	supCfg := supervisor.Config{
		BootstrapAttempts:   cfg.Feed.BootstrapAttempts,
		BootstrapRetryDelay: cfg.Feed.BootstrapRetryDelay,
		ReconnectBaseDelay:  cfg.Feed.ReconnectBaseDelay,
		ReconnectMaxDelay:   cfg.Feed.ReconnectMaxDelay,
		DegradedThreshold:   cfg.Feed.DegradedThreshold,
		HeartbeatInterval:   cfg.Feed.HeartbeatInterval,
	}

	for _, source := range reg.Sources() {
		group := reg.InstrumentsFor(source)
		adapter, err := options.factory(source, cfg.Sources[source], group, logger)
		if err != nil {
			return nil, fmt.Errorf("configure source %s: %w", source, err)
		}
		m.supervisors = append(m.supervisors,
			supervisor.New(supCfg, adapter, group, m.store, logger))
	}

	return m, nil
}

// Start bootstraps every source concurrently, then launches the stream
// supervisors in the background. Per-source failures are isolated: a
// source that cannot bootstrap is marked degraded, never aborts Start.
// Idempotent; returns once the bootstrap phase completes.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true

	runCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.mu.Unlock()

	m.logger.Info("bootstrapping sources", "sources", len(m.supervisors))

	var g errgroup.Group
	for _, sup := range m.supervisors {
		sup := sup
		g.Go(func() error {
			sup.Bootstrap(ctx)
			return nil
		})
	}
	g.Wait()

	for _, sup := range m.supervisors {
		sup := sup
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			sup.Run(runCtx)
		}()
	}

	m.logger.Info("feed started", "sources", len(m.supervisors))
	return nil
}

// Snapshot returns the current merged state. Never blocks on network I/O.
func (m *Manager) Snapshot() model.MarketSnapshot {
	return m.store.Snapshot()
}

// SubscriptionMap selects the option contracts for one tab whose strike
// lies within [minPct, maxPct] percent of the current reference price and
// whose expiry is in targetDates, subscribes their tickers on the tab's
// stream (re-applied automatically after reconnect), and returns the
// strike ladder per expiry. Returns an empty map when the tab is unknown
// or no reference price is known yet.
func (m *Manager) SubscriptionMap(ctx context.Context, tab string, targetDates []string, minPct, maxPct float64) map[string]*registry.StrikeMap {
	var inst *model.Instrument
	for _, cand := range m.registry.Instruments() {
		if cand.TabName == tab {
			inst = &cand
			break
		}
	}
	if inst == nil {
		return map[string]*registry.StrikeMap{}
	}

	snap := m.store.Snapshot()

	spot := snap.IndexPrices[registry.IndexKey(*inst)]
	if spot == 0 {
		spot = snap.IndexPrices[registry.PerpKey(*inst)]
	}
	if spot == 0 && inst.Settlement == model.SettlementCoin {
		spot = snap.IndexPrices[inst.BaseSymbol+"_USDC"]
	}
	if spot == 0 {
		return map[string]*registry.StrikeMap{}
	}

	lo := spot * (1 + minPct/100)
	hi := spot * (1 + maxPct/100)
	structure := registry.OptionStructure(snap.Instruments[tab], targetDates, lo, hi)

	var keys []string
	for _, sm := range structure {
		keys = append(keys, sm.Names()...)
	}
	if len(keys) > 0 {
		for _, sup := range m.supervisors {
			if sup.Source() != inst.Source {
				continue
			}
			if err := sup.Extend(ctx, keys); err != nil {
				m.logger.Warn("extend subscriptions failed",
					"tab", tab,
					"source", inst.Source,
					"error", err,
				)
			}
			break
		}
	}

	return structure
}

// Stop signals all supervisors to terminate and joins them within the
// context deadline. Idempotent; the last snapshot stays readable.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.started || m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	cancel := m.cancel
	m.mu.Unlock()

	m.logger.Info("stopping feed")
	cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("feed stopped")
		return nil
	case <-ctx.Done():
		m.logger.Warn("feed stop timed out")
		return ctx.Err()
	}
}

// Registry exposes the resolved instrument groups (read-only).
func (m *Manager) Registry() *registry.Registry {
	return m.registry
}
