// Package exchange defines the capability contract implemented by every
// exchange adapter, plus the error taxonomy shared by the feed core.
//
// Each adapter:
//   - fetches initial state over request/response (Bootstrap)
//   - opens a persistent subscription stream (OpenStream) and decodes
//     incoming messages into typed update events (Stream.ReadNext)
//   - keeps the stream alive per exchange protocol (Stream.SendHeartbeat)
//
// Unit differences between exchanges (settlement currency, symbol naming,
// price scaling) are reconciled exactly once, inside the adapter.
package exchange
