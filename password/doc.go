// Package password implements salted slow hashing with argon2id.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// The same hasher protects account passwords and backup codes. When a
// stored hash was produced with weaker parameters, [Argon2.NeedsUpgrade]
// returns true and the engine re-hashes after the next successful login.
//
// # What this package must NOT do
//
//   - Enforce password policy; minimum length is checked by the engine.
//   - Store or log plaintext.
package password
