// Package limiters provides Redis-backed counters used to throttle
// authentication attempts.
//
// # Limiters
//
//   - [AttemptLimiter] — per-subject failure lockout (login, second factor).
//   - [WindowLimiter] — fixed-window budget for outbound email per address.
//
// All limiters are nil-safe: calling any method on a nil receiver returns nil.
//
// # What this package must NOT do
//
//   - Make policy decisions beyond counting; the engine decides consequences.
package limiters
