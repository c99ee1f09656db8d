// Package feed wires the whole pipeline together: it resolves
// configuration into per-source instrument groups, constructs one adapter
// and supervisor per source, bootstraps them all (best-effort, failures
// isolated per source), and serves consumers the merged snapshot.
//
// The Manager is the only object a consumer interacts with: Start, Stop,
// and Snapshot.
package feed
