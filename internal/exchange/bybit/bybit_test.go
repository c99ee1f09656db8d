package bybit

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rickgao/market-feed/internal/exchange"
	"github.com/rickgao/market-feed/internal/model"
)

func testAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{RestURL: srv.URL, Timeout: 5 * time.Second}, slog.Default())
}

func TestBootstrap(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v5/market/tickers" {
			t.Errorf("path = %q, want /v5/market/tickers", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("category") != "spot" || q.Get("symbol") != "SOLUSDC" {
			t.Errorf("query = %v, want category=spot symbol=SOLUSDC", q)
		}
		w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"list":[
			{"symbol":"SOLUSDC","lastPrice":"150.5","bid1Price":"150.4","ask1Price":"150.6"}
		]}}`))
	})

	frag, err := a.Bootstrap(context.Background(), []model.Instrument{
		{TabName: "SOL-USD", BaseSymbol: "SOL", Settlement: model.SettlementUSD, Source: SourceName},
	})
	if err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}

	if got := frag.IndexPrices["SOL_USDC"]; got != 150.5 {
		t.Errorf("IndexPrices[SOL_USDC] = %v, want 150.5", got)
	}
	if len(frag.Instruments) != 0 {
		t.Errorf("Instruments = %v, want empty (spot lists no chain)", frag.Instruments)
	}
}

func TestBootstrapAPIError(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"retCode":10001,"retMsg":"params error","result":{}}`))
	})

	_, err := a.Bootstrap(context.Background(), []model.Instrument{
		{TabName: "SOL-USD", BaseSymbol: "SOL", Settlement: model.SettlementUSD, Source: SourceName},
	})
	var fetchErr *exchange.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Bootstrap() error = %v, want *exchange.FetchError", err)
	}
}

func TestBootstrapHTTPError(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := a.Bootstrap(context.Background(), []model.Instrument{
		{TabName: "SOL-USD", BaseSymbol: "SOL", Settlement: model.SettlementUSD, Source: SourceName},
	})
	var fetchErr *exchange.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Bootstrap() error = %v, want *exchange.FetchError", err)
	}
}

func TestStreamDecode(t *testing.T) {
	s := &stream{
		logger: slog.Default(),
		states: map[string]*tickerState{
			"SOLUSDC": {key: "SOL_USDC", ticker: model.Ticker{InstrumentName: "SOL_USDC"}},
		},
	}

	// Subscribe ack is skipped.
	_, ok, err := s.decode([]byte(`{"op":"subscribe","success":true,"ret_msg":""}`))
	if err != nil || ok {
		t.Errorf("decode(ack) = ok=%v err=%v, want skipped", ok, err)
	}

	// Ticker push yields an event for the unified key.
	ev, ok, err := s.decode([]byte(`{
		"topic":"tickers.SOLUSDC","type":"snapshot","ts":1700000000000,
		"data":{"symbol":"SOLUSDC","lastPrice":"150.5","usdIndexPrice":"150.6"}
	}`))
	if err != nil {
		t.Fatalf("decode(ticker) error = %v", err)
	}
	if !ok {
		t.Fatal("decode(ticker) ok = false, want event")
	}
	if ev.Key != "SOL_USDC" {
		t.Errorf("Key = %q, want SOL_USDC", ev.Key)
	}
	if ev.ExchangeTS != 1700000000000 {
		t.Errorf("ExchangeTS = %d, want 1700000000000", ev.ExchangeTS)
	}

	// Orderbook push merges into the same accumulated state.
	ev, ok, err = s.decode([]byte(`{
		"topic":"orderbook.1.SOLUSDC","type":"delta","ts":1700000000100,
		"data":{"s":"SOLUSDC","b":[["150.4","12"]],"a":[["150.6","8"]]}
	}`))
	if err != nil || !ok {
		t.Fatalf("decode(orderbook) = ok=%v err=%v, want event", ok, err)
	}
	if ev.Ticker.BestBidPrice != 150.4 || ev.Ticker.LastPrice != 150.5 {
		t.Errorf("Ticker = %+v, want bid 150.4 with last 150.5 preserved", ev.Ticker)
	}

	// Unknown symbol is skipped, not an error.
	_, ok, err = s.decode([]byte(`{"topic":"tickers.BTCUSDC","ts":1,"data":{"symbol":"BTCUSDC"}}`))
	if err != nil || ok {
		t.Errorf("decode(unknown symbol) = ok=%v err=%v, want skipped", ok, err)
	}

	// Malformed frame surfaces a decode error.
	_, _, err = s.decode([]byte(`{bad`))
	var decodeErr *exchange.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Errorf("decode(malformed) error = %v, want *exchange.DecodeError", err)
	}
}
