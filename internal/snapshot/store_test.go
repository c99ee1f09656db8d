package snapshot

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/market-feed/internal/model"
)

func tickerEvent(key string, lastPrice float64, ts int64) model.UpdateEvent {
	return model.UpdateEvent{
		Source:     "test",
		Key:        key,
		Ticker:     &model.Ticker{InstrumentName: key, LastPrice: lastPrice},
		ExchangeTS: ts,
		ReceivedAt: time.Now(),
	}
}

func indexEvent(key string, price float64, ts int64) model.UpdateEvent {
	return model.UpdateEvent{
		Source:        "test",
		Key:           key,
		IndexPrice:    price,
		HasIndexPrice: true,
		ExchangeTS:    ts,
		ReceivedAt:    time.Now(),
	}
}

func TestMergeAppliesFresherEvent(t *testing.T) {
	s := NewStore()

	if !s.Merge(tickerEvent("BTC-PERPETUAL", 50000, 100)) {
		t.Fatal("first merge should be applied")
	}
	if !s.Merge(tickerEvent("BTC-PERPETUAL", 50010, 200)) {
		t.Fatal("fresher merge should be applied")
	}

	snap := s.Snapshot()
	if got := snap.Tickers["BTC-PERPETUAL"].LastPrice; got != 50010 {
		t.Errorf("LastPrice = %v, want 50010", got)
	}
}

func TestMergeRejectsStaleEvent(t *testing.T) {
	s := NewStore()

	s.Merge(tickerEvent("BTC-PERPETUAL", 50000, 200))

	if s.Merge(tickerEvent("BTC-PERPETUAL", 49990, 100)) {
		t.Error("older event should be a no-op")
	}
	if s.Merge(tickerEvent("BTC-PERPETUAL", 49995, 200)) {
		t.Error("equal-timestamp event should be a no-op")
	}

	snap := s.Snapshot()
	if got := snap.Tickers["BTC-PERPETUAL"].LastPrice; got != 50000 {
		t.Errorf("LastPrice = %v, want 50000 (stale merge leaked through)", got)
	}
}

func TestMergeZeroTimestampFallsBackToMergeOrder(t *testing.T) {
	s := NewStore()

	s.Merge(tickerEvent("ETH-PERPETUAL", 3000, 500))

	// No exchange timestamp: merge order decides, so it applies.
	if !s.Merge(tickerEvent("ETH-PERPETUAL", 3010, 0)) {
		t.Error("zero-timestamp event should apply by merge order")
	}

	snap := s.Snapshot()
	if got := snap.Tickers["ETH-PERPETUAL"].LastPrice; got != 3010 {
		t.Errorf("LastPrice = %v, want 3010", got)
	}
}

func TestMergeZeroTimestampDoesNotRegressFreshness(t *testing.T) {
	s := NewStore()

	s.Merge(tickerEvent("BTC-PERPETUAL", 50000, 200))
	if !s.Merge(tickerEvent("BTC-PERPETUAL", 50005, 0)) {
		t.Fatal("zero-timestamp event should apply by merge order")
	}

	// The stored freshness stays at 200, so a genuinely older event is
	// still rejected after the zero-timestamp merge.
	if s.Merge(tickerEvent("BTC-PERPETUAL", 49000, 100)) {
		t.Error("ts=100 event accepted after zero-ts merge, want no-op against ts=200")
	}

	if got := s.Snapshot().Tickers["BTC-PERPETUAL"].LastPrice; got != 50005 {
		t.Errorf("LastPrice = %v, want 50005", got)
	}

	// Same rule for the index price field.
	s.Merge(indexEvent("BTC_USDC", 50000, 200))
	s.Merge(indexEvent("BTC_USDC", 50005, 0))
	if s.Merge(indexEvent("BTC_USDC", 49000, 100)) {
		t.Error("stale index event accepted after zero-ts merge")
	}
	if got := s.Snapshot().IndexPrices["BTC_USDC"]; got != 50005 {
		t.Errorf("IndexPrices = %v, want 50005", got)
	}
}

func TestMergeIndexAndTickerFreshnessIndependent(t *testing.T) {
	s := NewStore()

	s.Merge(indexEvent("BTC_USDC", 50000, 300))

	// Ticker at an earlier timestamp still lands; only the index is stale.
	ev := tickerEvent("BTC_USDC", 49990, 200)
	ev.IndexPrice = 49980
	ev.HasIndexPrice = true
	if !s.Merge(ev) {
		t.Fatal("ticker field should apply even when index field is stale")
	}

	snap := s.Snapshot()
	if got := snap.IndexPrices["BTC_USDC"]; got != 50000 {
		t.Errorf("IndexPrices = %v, want 50000 (stale index accepted)", got)
	}
	if got := snap.Tickers["BTC_USDC"].LastPrice; got != 49990 {
		t.Errorf("LastPrice = %v, want 49990", got)
	}
}

func TestMergeEmptyKeyIgnored(t *testing.T) {
	s := NewStore()
	if s.Merge(tickerEvent("", 1, 1)) {
		t.Error("empty key should never merge")
	}
}

func TestSeedIndexPriceNeverOverwrites(t *testing.T) {
	s := NewStore()

	s.Merge(indexEvent("BTC_USDC", 50010, 100))
	s.SeedIndexPrice("BTC_USDC", 50000)

	if got := s.Snapshot().IndexPrices["BTC_USDC"]; got != 50010 {
		t.Errorf("IndexPrices = %v, want streamed 50010 to survive seeding", got)
	}

	s.SeedIndexPrice("ETH-PERPETUAL", 3000)
	if got := s.Snapshot().IndexPrices["ETH-PERPETUAL"]; got != 3000 {
		t.Errorf("IndexPrices = %v, want seeded 3000", got)
	}
}

func TestAddInstrumentsDedupes(t *testing.T) {
	s := NewStore()

	metas := []model.InstrumentMeta{
		{Name: "BTC-27MAR26-50000-C"},
		{Name: "BTC-27MAR26-55000-C"},
	}
	s.AddInstruments("BTC-USD", metas)

	// Re-bootstrap with overlap plus one new contract.
	s.AddInstruments("BTC-USD", []model.InstrumentMeta{
		{Name: "BTC-27MAR26-55000-C"},
		{Name: "BTC-27MAR26-60000-C"},
	})

	got := s.Snapshot().Instruments["BTC-USD"]
	if len(got) != 3 {
		t.Errorf("len(Instruments) = %d, want 3 (deduped, never removed)", len(got))
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	s := NewStore()
	s.Merge(tickerEvent("BTC-PERPETUAL", 50000, 100))
	s.AddInstruments("BTC-USD", []model.InstrumentMeta{{Name: "BTC-27MAR26-50000-C"}})

	snap := s.Snapshot()
	snap.Tickers["BTC-PERPETUAL"] = model.Ticker{LastPrice: 1}
	snap.IndexPrices["INJECTED"] = 42
	snap.Instruments["BTC-USD"][0].Name = "MUTATED"

	fresh := s.Snapshot()
	if fresh.Tickers["BTC-PERPETUAL"].LastPrice != 50000 {
		t.Error("mutating a snapshot ticker leaked into the store")
	}
	if _, ok := fresh.IndexPrices["INJECTED"]; ok {
		t.Error("mutating snapshot index prices leaked into the store")
	}
	if fresh.Instruments["BTC-USD"][0].Name != "BTC-27MAR26-50000-C" {
		t.Error("mutating snapshot instruments leaked into the store")
	}
}

func TestIsReadyRequiresLiveSource(t *testing.T) {
	s := NewStore()

	if s.Snapshot().IsReady {
		t.Error("empty store should not be ready")
	}

	s.SetConnectionStatus("deribit", model.StatusConnecting)
	if s.Snapshot().IsReady {
		t.Error("connecting source should not make the store ready")
	}

	s.SetConnectionStatus("bybit", model.StatusLive)
	if !s.Snapshot().IsReady {
		t.Error("one live source should make the store ready")
	}

	s.SetConnectionStatus("bybit", model.StatusDegraded)
	if s.Snapshot().IsReady {
		t.Error("all-degraded store should not be ready")
	}
}

func TestConnectionStatusRoundTrip(t *testing.T) {
	s := NewStore()
	s.SetConnectionStatus("deribit", model.StatusReconnecting)
	if got := s.ConnectionStatus("deribit"); got != model.StatusReconnecting {
		t.Errorf("ConnectionStatus = %q, want %q", got, model.StatusReconnecting)
	}
}

func TestConcurrentMergeAndSnapshot(t *testing.T) {
	s := NewStore()

	const writers = 4
	const merges = 500

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			key := fmt.Sprintf("INST-%d", w)
			for i := 1; i <= merges; i++ {
				ev := tickerEvent(key, float64(i), int64(i))
				ev.IndexPrice = float64(i)
				ev.HasIndexPrice = true
				s.Merge(ev)
			}
		}(w)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	// Readers must never observe a ticker/index pair from different merges
	// of the same event stream going backwards.
	for {
		select {
		case <-done:
			snap := s.Snapshot()
			for w := 0; w < writers; w++ {
				key := fmt.Sprintf("INST-%d", w)
				if got := snap.Tickers[key].LastPrice; got != merges {
					t.Errorf("Tickers[%s].LastPrice = %v, want %d", key, got, merges)
				}
			}
			return
		default:
			snap := s.Snapshot()
			for key, tkr := range snap.Tickers {
				if px, ok := snap.IndexPrices[key]; ok && px < tkr.LastPrice {
					t.Fatalf("torn read: index %v behind ticker %v for %s", px, tkr.LastPrice, key)
				}
			}
		}
	}
}
