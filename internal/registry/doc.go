// Package registry resolves configured instruments into per-source groups
// so one stream connection per exchange serves many instruments, and
// provides the unified reference-key naming shared by all adapters.
package registry
