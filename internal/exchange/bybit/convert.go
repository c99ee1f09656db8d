package bybit

import (
	"strconv"
	"time"

	"github.com/rickgao/market-feed/internal/model"
)

// symbolFor maps an instrument group to Bybit's spot symbol.
func symbolFor(inst model.Instrument) string {
	return inst.BaseSymbol + "USDC"
}

// keyFor maps an instrument group to the unified reference key.
func keyFor(inst model.Instrument) string {
	return inst.BaseSymbol + "_USDC"
}

// parsePrice parses Bybit's string-encoded numerics; empty strings (field
// absent in a delta payload) and garbage both come back as 0.
func parsePrice(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// restTickerWire is one entry of GET /v5/market/tickers.
type restTickerWire struct {
	Symbol       string `json:"symbol"`
	LastPrice    string `json:"lastPrice"`
	Bid1Price    string `json:"bid1Price"`
	Bid1Size     string `json:"bid1Size"`
	Ask1Price    string `json:"ask1Price"`
	Ask1Size     string `json:"ask1Size"`
	HighPrice24h string `json:"highPrice24h"`
	LowPrice24h  string `json:"lowPrice24h"`
	Volume24h    string `json:"volume24h"`
	Price24hPcnt string `json:"price24hPcnt"`
}

// wsTickerWire is the data payload of the tickers.{symbol} topic. Delta
// pushes omit unchanged fields.
type wsTickerWire struct {
	Symbol        string `json:"symbol"`
	LastPrice     string `json:"lastPrice"`
	HighPrice24h  string `json:"highPrice24h"`
	LowPrice24h   string `json:"lowPrice24h"`
	Volume24h     string `json:"volume24h"`
	Price24hPcnt  string `json:"price24hPcnt"`
	UsdIndexPrice string `json:"usdIndexPrice"`
}

// wsOrderbookWire is the data payload of the orderbook.1.{symbol} topic.
type wsOrderbookWire struct {
	Symbol string     `json:"s"`
	Bids   [][]string `json:"b"` // [price, size]
	Asks   [][]string `json:"a"`
}

// tickerState accumulates partial updates into a complete ticker.
type tickerState struct {
	key    string
	ticker model.Ticker
}

// applyTicker merges the non-empty fields of a ticker push.
func (st *tickerState) applyTicker(w wsTickerWire) {
	if v := parsePrice(w.LastPrice); v > 0 {
		st.ticker.LastPrice = v
	}
	if v := parsePrice(w.UsdIndexPrice); v > 0 {
		st.ticker.IndexPrice = v
	}
	if v := parsePrice(w.HighPrice24h); v > 0 {
		st.ticker.Stats.High = v
	}
	if v := parsePrice(w.LowPrice24h); v > 0 {
		st.ticker.Stats.Low = v
	}
	if v := parsePrice(w.Volume24h); v > 0 {
		st.ticker.Stats.Volume = v
	}
	if w.Price24hPcnt != "" {
		st.ticker.Stats.PriceChange = parsePrice(w.Price24hPcnt) * 100
	}
}

// applyOrderbook merges a depth-1 book push into the best bid/ask.
func (st *tickerState) applyOrderbook(w wsOrderbookWire) {
	if len(w.Bids) > 0 && len(w.Bids[0]) == 2 {
		if size := parsePrice(w.Bids[0][1]); size > 0 {
			st.ticker.BestBidPrice = parsePrice(w.Bids[0][0])
			st.ticker.BestBidAmount = size
		}
	}
	if len(w.Asks) > 0 && len(w.Asks[0]) == 2 {
		if size := parsePrice(w.Asks[0][1]); size > 0 {
			st.ticker.BestAskPrice = parsePrice(w.Asks[0][0])
			st.ticker.BestAskAmount = size
		}
	}
}

// event emits the accumulated state as a normalized update.
func (st *tickerState) event(exchangeTS int64, receivedAt time.Time) model.UpdateEvent {
	t := st.ticker
	t.ExchangeTS = exchangeTS
	t.ReceivedAt = receivedAt

	ev := model.UpdateEvent{
		Source:     SourceName,
		Key:        st.key,
		Ticker:     &t,
		ExchangeTS: exchangeTS,
		ReceivedAt: receivedAt,
	}

	// Spot pairs are reference keys: their price is the index.
	if px := t.IndexPrice; px > 0 {
		ev.IndexPrice = px
		ev.HasIndexPrice = true
	} else if t.LastPrice > 0 {
		ev.IndexPrice = t.LastPrice
		ev.HasIndexPrice = true
	}

	return ev
}
