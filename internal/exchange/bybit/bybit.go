package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/rickgao/market-feed/internal/exchange"
	"github.com/rickgao/market-feed/internal/model"
)

// SourceName is the config source value this adapter serves.
const SourceName = "bybit"

// Config holds Bybit endpoints. Public access only; no credentials.
type Config struct {
	RestURL string
	WSURL   string
	Timeout time.Duration
}

// Adapter implements exchange.Adapter for Bybit spot markets.
type Adapter struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Bybit adapter.
func New(cfg Config, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With("source", SourceName),
	}
}

// Name returns the source name.
func (a *Adapter) Name() string { return SourceName }

// Bootstrap fetches the current spot ticker for every instrument group's
// reference pair. Bybit lists no option chain here, so the fragment
// carries reference prices only.
func (a *Adapter) Bootstrap(ctx context.Context, instruments []model.Instrument) (*exchange.Bootstrap, error) {
	b := &exchange.Bootstrap{
		Source:      SourceName,
		Instruments: make(map[string][]model.InstrumentMeta),
		IndexPrices: make(map[string]float64),
		FetchedAt:   time.Now(),
	}

	for _, inst := range instruments {
		symbol := symbolFor(inst)
		tkr, err := a.fetchTicker(ctx, symbol)
		if err != nil {
			return nil, &exchange.FetchError{Source: SourceName, Err: err}
		}
		if px := parsePrice(tkr.LastPrice); px > 0 {
			b.IndexPrices[keyFor(inst)] = px
		}
		a.logger.Info("bootstrapped spot pair", "symbol", symbol, "last_price", tkr.LastPrice)
	}

	return b, nil
}

// fetchTicker calls GET /v5/market/tickers for one spot symbol.
func (a *Adapter) fetchTicker(ctx context.Context, symbol string) (restTickerWire, error) {
	query := url.Values{}
	query.Set("category", "spot")
	query.Set("symbol", symbol)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		a.cfg.RestURL+"/v5/market/tickers?"+query.Encode(), nil)
	if err != nil {
		return restTickerWire{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return restTickerWire{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return restTickerWire{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return restTickerWire{}, fmt.Errorf("bybit api error %d", resp.StatusCode)
	}

	var wire struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
		Result  struct {
			List []restTickerWire `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return restTickerWire{}, fmt.Errorf("unmarshal response: %w", err)
	}
	if wire.RetCode != 0 {
		return restTickerWire{}, fmt.Errorf("bybit api error %d: %s", wire.RetCode, wire.RetMsg)
	}
	if len(wire.Result.List) == 0 {
		return restTickerWire{}, fmt.Errorf("no ticker for symbol %s", symbol)
	}
	return wire.Result.List[0], nil
}

// OpenStream dials the public spot WebSocket.
func (a *Adapter) OpenStream(ctx context.Context, instruments []model.Instrument) (exchange.Stream, error) {
	return openStream(ctx, a.cfg, instruments, a.logger)
}
