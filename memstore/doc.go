// Package memstore provides a process-local store.AccountStore for tests,
// examples and single-node deployments that do not need durability.
package memstore
