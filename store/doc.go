// Package store defines the account model and the persistence contracts
// shared by the engine and its storage backends.
//
// # Architecture boundaries
//
// Backends (memstore, pgstore) implement these interfaces and
// report failures as ErrNotFound, ErrConflict, or an opaque transport error.
//
// # What this package must NOT do
//
//   - Perform I/O.
//   - Hash, verify, or generate secrets.
package store
