// Package internal holds randomness helpers shared by the engine's private
// components: opaque email tokens, row identifiers and uniform indices for
// backup-code alphabets.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - gate: second-factor verification and confirmation issuance
//   - ledger: single-use email token issuance and consumption
//   - limiters: Redis-backed attempt and mail-window throttles
//   - stores: Redis token and confirmation stores for ephemeral mode
//   - vault: backup-code generation and redemption
//
// # What this package must NOT do
//
//   - Export types that appear in the public dramauth API.
//   - Use math/rand for anything secret.
package internal
