// Package snapshot implements the concurrency-safe aggregate of all
// normalized market state: the single source of truth written by every
// stream supervisor and read by consumers.
//
// Merge rules:
//   - last-write-wins per field, keyed by instrument
//   - an event timestamp strictly greater than the stored one wins;
//     equal or older is a no-op; a zero timestamp falls back to merge order
//   - once populated, a field is never reverted to unknown on transient
//     failure; staleness is surfaced via connection status and LastUpdated
package snapshot
