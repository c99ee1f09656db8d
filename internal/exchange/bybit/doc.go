// Package bybit implements the exchange adapter for Bybit spot markets.
//
// Bootstrap uses the public v5 REST API; streaming uses the public spot
// WebSocket with tickers.{symbol} and orderbook.1.{symbol} topics. Bybit
// pushes partial ("delta") ticker payloads, so the stream keeps the last
// known state per symbol and always emits a complete normalized ticker.
//
// Only USD-settled instrument groups are supported: BASE maps to the
// BASEUSDC spot pair and the unified key BASE_USDC.
package bybit
