// Package middleware exposes net/http adapters over dramauth.Engine.
//
// # Guards
//
//   - [RequireSession] verifies the bearer access token and injects its claims.
//   - [RequireRole] additionally restricts the route to the given roles.
//   - [RequestMetadata] records client IP and User-Agent for audit events on
//     unauthenticated routes such as sign-in.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself; token decisions are delegated to
// Engine.ValidateSession.
//
// # What this package must NOT do
//
//   - Parse or sign JWTs directly.
//   - Read the account store.
//   - Distinguish failure reasons in responses.
package middleware
