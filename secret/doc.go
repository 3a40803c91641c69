// Package secret hashes passwords and backup codes and generates and
// verifies RFC 6238 time-based one-time codes.
//
// TOTP secrets are base32 strings as produced by authenticator
// enrollment. Verification accepts the current step and Skew steps on
// either side, evaluating the whole window with constant-time compares.
//
// # What this package must NOT do
//
//   - Persist secrets or remember used counters.
//   - Log plaintext secrets or codes.
package secret
