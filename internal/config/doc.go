// Package config loads and validates the feed configuration.
//
// Configuration is YAML with ${VAR} environment variable expansion, so
// credentials can stay out of the file:
//
//	instance:
//	  id: feed-1
//	instruments:
//	  - tab_name: BTC
//	    base_symbol: BTC
//	    settlement: usd
//	    source: deribit
//	sources:
//	  deribit:
//	    client_id: ${DERIBIT_CLIENT_ID}
//	    client_secret: ${DERIBIT_CLIENT_SECRET}
package config
