// Package deribit implements the exchange adapter for Deribit.
//
// Bootstrap uses the public REST API (get_instruments, ticker); streaming
// uses JSON-RPC 2.0 over WebSocket with ticker.{instrument}.100ms
// channels. Private access authenticates with client credentials; public
// data needs none. Deribit instrument names are used unchanged as the
// unified key vocabulary.
package deribit
