// Package model defines the shared domain types for the market feed.
//
// Conventions:
//   - Instrument keys: unified strings such as "BTC_USDC" or
//     "BTC-PERPETUAL", produced by the exchange adapters
//   - Exchange timestamps: int64 milliseconds since epoch (exchange clock);
//     local timestamps are time.Time
//   - Prices: float64 in the instrument's quote currency
package model
