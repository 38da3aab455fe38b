// Package metrics provides lock-free counters for authgate observability.
//
// # Design
//
// Counters are stored in cache-line-padded uint64 slots and incremented
// atomically via [sync/atomic.AddUint64]. The write path is allocation-free.
//
// # Architecture boundaries
//
// This package owns metric storage and snapshot creation. Exporting to an
// external system is the embedding service's concern, reading Snapshot
// values.
//
// # What this package must NOT do
//
//   - Perform I/O or network calls.
//   - Import authgate or any sibling package.
//   - Expose global metric registries.
package metrics
