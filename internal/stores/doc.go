// Package stores provides Redis-backed token and second-factor
// confirmation stores.
//
// # Design
//
// Each store persists a versioned, binary-encoded record in Redis with a
// TTL. Token writes and takes use WATCH/MULTI optimistic transactions with
// a bounded retry on contention, which gives single-winner consumption and
// at most one live token per (kind, email).
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for transient
// records. It does NOT generate tokens or decide whether they are valid
// for a flow; the ledger and gate do that.
//
// # What this package must NOT do
//
//   - Import the root dramauth package.
//   - Log token values.
package stores
