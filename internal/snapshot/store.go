package snapshot

import (
	"sync"
	"time"

	"github.com/rickgao/market-feed/internal/model"
)

// Store holds the mutable market state behind a read/write lock.
// No I/O ever happens under the lock; writers are stream supervisors,
// readers are consumers calling Snapshot.
type Store struct {
	mu sync.RWMutex

	// Latest index price per unified key, with the exchange timestamp of
	// the event that set it (0 when set by merge order).
	indexPrices map[string]float64
	indexTS     map[string]int64

	// Latest ticker per unified key, with its exchange timestamp.
	tickers  map[string]model.Ticker
	tickerTS map[string]int64

	// Contracts discovered at bootstrap, deduped per tab.
	instruments   map[string][]model.InstrumentMeta
	instrumentSet map[string]map[string]struct{}

	// Local time of the last accepted merge per key.
	lastUpdated map[string]time.Time

	// Stream health per source.
	status map[string]model.ConnectionStatus
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		indexPrices:   make(map[string]float64),
		indexTS:       make(map[string]int64),
		tickers:       make(map[string]model.Ticker),
		tickerTS:      make(map[string]int64),
		instruments:   make(map[string][]model.InstrumentMeta),
		instrumentSet: make(map[string]map[string]struct{}),
		lastUpdated:   make(map[string]time.Time),
		status:        make(map[string]model.ConnectionStatus),
	}
}

// Merge applies one normalized delta atomically. Returns true if any
// field was accepted. An event older than (or equal to) the stored
// exchange timestamp for a field is a no-op for that field.
func (s *Store) Merge(ev model.UpdateEvent) bool {
	if ev.Key == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	applied := false

	if ev.Ticker != nil && fresher(s.tickerTS[ev.Key], ev.ExchangeTS) {
		s.tickers[ev.Key] = *ev.Ticker
		// A zero-timestamp merge keeps the stored timestamp so later
		// events are still judged against the freshest known one.
		if ev.ExchangeTS > s.tickerTS[ev.Key] {
			s.tickerTS[ev.Key] = ev.ExchangeTS
		}
		applied = true
	}

	if ev.HasIndexPrice && ev.IndexPrice > 0 && fresher(s.indexTS[ev.Key], ev.ExchangeTS) {
		s.indexPrices[ev.Key] = ev.IndexPrice
		if ev.ExchangeTS > s.indexTS[ev.Key] {
			s.indexTS[ev.Key] = ev.ExchangeTS
		}
		applied = true
	}

	if applied {
		s.lastUpdated[ev.Key] = time.Now()
	}
	return applied
}

// fresher reports whether an incoming exchange timestamp supersedes the
// stored one. Zero incoming timestamps fall back to merge order.
func fresher(stored, incoming int64) bool {
	return incoming == 0 || incoming > stored
}

// SeedIndexPrice records a bootstrap-fetched price. Unlike Merge it never
// overwrites a fresher streamed value (bootstrap carries no exchange
// timestamp).
func (s *Store) SeedIndexPrice(key string, price float64) {
	if key == "" || price <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.indexPrices[key]; ok {
		return
	}
	s.indexPrices[key] = price
	s.lastUpdated[key] = time.Now()
}

// AddInstruments records contracts discovered at bootstrap, deduped by
// name per tab. Re-bootstrapping after reconnect never removes contracts.
func (s *Store) AddInstruments(tab string, metas []model.InstrumentMeta) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.instrumentSet[tab]
	if !ok {
		set = make(map[string]struct{})
		s.instrumentSet[tab] = set
	}
	for _, m := range metas {
		if _, dup := set[m.Name]; dup {
			continue
		}
		set[m.Name] = struct{}{}
		s.instruments[tab] = append(s.instruments[tab], m)
	}
}

// SetConnectionStatus updates the health flag for one source.
func (s *Store) SetConnectionStatus(source string, status model.ConnectionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[source] = status
}

// ConnectionStatus returns the current health flag for one source.
func (s *Store) ConnectionStatus(source string) model.ConnectionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status[source]
}

// Snapshot returns a deep copy reflecting all merges completed before the
// call. Never returns a torn write; never blocks writers for longer than
// the copy itself.
func (s *Store) Snapshot() model.MarketSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := model.MarketSnapshot{
		TakenAt:          time.Now(),
		IndexPrices:      make(map[string]float64, len(s.indexPrices)),
		Tickers:          make(map[string]model.Ticker, len(s.tickers)),
		Instruments:      make(map[string][]model.InstrumentMeta, len(s.instruments)),
		LastUpdated:      make(map[string]time.Time, len(s.lastUpdated)),
		ConnectionStatus: make(map[string]model.ConnectionStatus, len(s.status)),
	}

	for k, v := range s.indexPrices {
		snap.IndexPrices[k] = v
	}
	for k, v := range s.tickers {
		snap.Tickers[k] = v
	}
	for tab, metas := range s.instruments {
		cp := make([]model.InstrumentMeta, len(metas))
		copy(cp, metas)
		snap.Instruments[tab] = cp
	}
	for k, v := range s.lastUpdated {
		snap.LastUpdated[k] = v
	}
	for src, st := range s.status {
		snap.ConnectionStatus[src] = st
		if st == model.StatusLive {
			snap.IsReady = true
		}
	}

	return snap
}
