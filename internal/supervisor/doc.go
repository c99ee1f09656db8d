// Package supervisor implements the per-source connection state machine:
// bootstrap, connect, subscribe, read loop, heartbeat loop, and
// reconnect-with-backoff. One supervisor per exchange adapter; one
// source's outage never blocks another's stream.
package supervisor
