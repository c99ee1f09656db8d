// Package metrics exposes Prometheus collectors for the feed core:
// merge throughput, decode failures, reconnect churn, and per-source
// connection state. Served by the daemon's /metrics endpoint.
package metrics
