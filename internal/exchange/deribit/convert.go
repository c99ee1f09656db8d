package deribit

import (
	"strings"
	"time"

	"github.com/rickgao/market-feed/internal/model"
)

// instrumentWire is the REST wire format for one listed contract.
type instrumentWire struct {
	InstrumentName      string  `json:"instrument_name"`
	BaseCurrency        string  `json:"base_currency"`
	QuoteCurrency       string  `json:"quote_currency"`
	ExpirationTimestamp int64   `json:"expiration_timestamp"`
	Strike              float64 `json:"strike"`
	OptionType          string  `json:"option_type"` // "call" or "put"
}

func (w instrumentWire) toMeta() model.InstrumentMeta {
	return model.InstrumentMeta{
		Name:          w.InstrumentName,
		BaseCurrency:  w.BaseCurrency,
		QuoteCurrency: w.QuoteCurrency,
		ExpirationTS:  w.ExpirationTimestamp,
		Strike:        w.Strike,
		OptionKind:    w.OptionType,
	}
}

// tickerData is the payload shape shared by the REST ticker endpoint and
// the ticker.{instrument}.100ms stream channel.
type tickerData struct {
	InstrumentName string  `json:"instrument_name"`
	BestBidPrice   float64 `json:"best_bid_price"`
	BestBidAmount  float64 `json:"best_bid_amount"`
	BestAskPrice   float64 `json:"best_ask_price"`
	BestAskAmount  float64 `json:"best_ask_amount"`
	LastPrice      float64 `json:"last_price"`
	IndexPrice     float64 `json:"index_price"`
	MarkPrice      float64 `json:"mark_price"`
	Stats          struct {
		Volume      float64 `json:"volume"`
		PriceChange float64 `json:"price_change"`
		High        float64 `json:"high"`
		Low         float64 `json:"low"`
	} `json:"stats"`
	Timestamp int64 `json:"timestamp"` // ms since epoch
}

// referencePrice returns the price used as the underlying reference,
// preferring the index price and falling back to the last trade.
func (d tickerData) referencePrice() float64 {
	if d.IndexPrice > 0 {
		return d.IndexPrice
	}
	return d.LastPrice
}

// isReferenceName reports whether a ticker for this instrument also
// carries an index/reference price (perpetuals and USDC pairs).
func isReferenceName(name string) bool {
	return strings.Contains(name, "PERPETUAL") || strings.Contains(name, "_USDC")
}

// tickerEvent normalizes one ticker payload into an update event.
func tickerEvent(d tickerData, receivedAt time.Time) model.UpdateEvent {
	t := model.Ticker{
		InstrumentName: d.InstrumentName,
		BestBidPrice:   d.BestBidPrice,
		BestBidAmount:  d.BestBidAmount,
		BestAskPrice:   d.BestAskPrice,
		BestAskAmount:  d.BestAskAmount,
		LastPrice:      d.LastPrice,
		IndexPrice:     d.IndexPrice,
		MarkPrice:      d.MarkPrice,
		Stats: model.TickerStats{
			Volume:      d.Stats.Volume,
			PriceChange: d.Stats.PriceChange,
			High:        d.Stats.High,
			Low:         d.Stats.Low,
		},
		ExchangeTS: d.Timestamp,
		ReceivedAt: receivedAt,
	}

	ev := model.UpdateEvent{
		Source:     SourceName,
		Key:        d.InstrumentName,
		Ticker:     &t,
		ExchangeTS: d.Timestamp,
		ReceivedAt: receivedAt,
	}

	if isReferenceName(d.InstrumentName) {
		if px := d.referencePrice(); px > 0 {
			ev.IndexPrice = px
			ev.HasIndexPrice = true
		}
	}

	return ev
}

// apiCurrency maps an instrument group to Deribit's currency parameter:
// the base asset for coin settlement, "USDC" for USD settlement.
func apiCurrency(inst model.Instrument) string {
	if inst.Settlement == model.SettlementUSD {
		return "USDC"
	}
	return inst.BaseSymbol
}

// matchesGroup filters the fetched chain client-side by instrument-name
// prefix, since the USDC currency parameter returns every USD-settled
// asset.
func matchesGroup(inst model.Instrument, name string) bool {
	if inst.Settlement == model.SettlementUSD {
		return strings.HasPrefix(name, inst.BaseSymbol+"_USDC-")
	}
	return strings.HasPrefix(name, inst.BaseSymbol+"-") && !strings.Contains(name, "_USDC")
}
