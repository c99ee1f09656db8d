package model

import "time"

// -----------------------------------------------------------------------------
// Configuration-Derived Types
// -----------------------------------------------------------------------------

// Settlement identifies how an instrument group settles.
const (
	SettlementUSD  = "usd"
	SettlementCoin = "coin"
)

// Instrument identifies one tracked market group from configuration.
// Immutable after config load; the join key between configuration,
// adapters, and snapshot fields.
type Instrument struct {
	TabName    string // Display/tab name (e.g., "BTC")
	BaseSymbol string // Base asset symbol (e.g., "BTC")
	Settlement string // "usd" or "coin"
	Source     string // Exchange source (e.g., "deribit")
}

// InstrumentMeta describes one listed contract discovered during bootstrap.
type InstrumentMeta struct {
	Name          string  // Unified instrument name (e.g., "BTC-27MAR26-50000-C")
	BaseCurrency  string  // Base asset (e.g., "BTC")
	QuoteCurrency string  // Quote asset (e.g., "USD")
	ExpirationTS  int64   // Expiration time (ms since epoch), 0 if perpetual
	Strike        float64 // Strike price, 0 if not an option
	OptionKind    string  // "call", "put", or "" for non-options
}

// -----------------------------------------------------------------------------
// Streamed Market Data
// -----------------------------------------------------------------------------

// TickerStats holds 24h rolling statistics from the exchange.
type TickerStats struct {
	Volume      float64
	PriceChange float64
	High        float64
	Low         float64
}

// Ticker is the latest known market data for one instrument key.
type Ticker struct {
	InstrumentName string
	BestBidPrice   float64
	BestBidAmount  float64
	BestAskPrice   float64
	BestAskAmount  float64
	LastPrice      float64
	IndexPrice     float64
	MarkPrice      float64
	Stats          TickerStats
	ExchangeTS     int64     // Exchange timestamp (ms since epoch)
	ReceivedAt     time.Time // Local timestamp when the update was decoded
}

// UpdateEvent is a normalized delta produced by an exchange adapter.
// Ephemeral: consumed exactly once by the snapshot merge, never stored.
type UpdateEvent struct {
	Source string // Source that produced the event
	Key    string // Unified instrument key

	Ticker *Ticker // Ticker payload, nil if the event carries no ticker

	IndexPrice    float64 // Index/reference price, valid if HasIndexPrice
	HasIndexPrice bool

	ExchangeTS int64     // Exchange timestamp (ms since epoch), 0 if unknown
	ReceivedAt time.Time // Local receive timestamp
}

// -----------------------------------------------------------------------------
// Connection Health
// -----------------------------------------------------------------------------

// ConnectionStatus reflects the health of the stream feeding one source.
type ConnectionStatus string

const (
	StatusConnecting   ConnectionStatus = "connecting"
	StatusLive         ConnectionStatus = "live"
	StatusReconnecting ConnectionStatus = "reconnecting"
	StatusDegraded     ConnectionStatus = "degraded"
)

// -----------------------------------------------------------------------------
// Snapshot
// -----------------------------------------------------------------------------

// MarketSnapshot is the unified, read-only view of all tracked market
// state. Every map is a deep copy owned by the caller.
type MarketSnapshot struct {
	TakenAt time.Time // When the snapshot was taken

	// IsReady is true once at least one source has a live stream.
	IsReady bool

	// IndexPrices maps instrument key to the latest known index price.
	IndexPrices map[string]float64

	// Tickers maps instrument key to the latest known market data.
	Tickers map[string]Ticker

	// Instruments maps tab name to the contracts discovered at bootstrap.
	Instruments map[string][]InstrumentMeta

	// LastUpdated maps instrument key to the time of the last accepted merge.
	LastUpdated map[string]time.Time

	// ConnectionStatus maps source name to stream health.
	ConnectionStatus map[string]ConnectionStatus
}

// Price returns the index price for a key, preferring the index map and
// falling back to the ticker's last price.
func (s MarketSnapshot) Price(key string) (float64, bool) {
	if px, ok := s.IndexPrices[key]; ok && px > 0 {
		return px, true
	}
	if t, ok := s.Tickers[key]; ok && t.LastPrice > 0 {
		return t.LastPrice, true
	}
	return 0, false
}

// StaleKeys returns instrument keys whose last accepted merge is older
// than the threshold, relative to now.
func (s *MarketSnapshot) StaleKeys(now time.Time, threshold time.Duration) []string {
	var stale []string
	for key, ts := range s.LastUpdated {
		if now.Sub(ts) > threshold {
			stale = append(stale, key)
		}
	}
	return stale
}
