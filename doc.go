// Package dramauth is the credential-authentication core of the club
// voting application: password sign-in with an optional TOTP or backup
// code second factor, invite-based registration, email verification and
// email change, password reset, federated sign-in, and JWT sessions whose
// claims are re-read from the account on every refresh.
//
// An [Engine] is assembled once with [New] and [Builder.Build] and is then
// safe for concurrent use. Durable state lives behind [store.AccountStore]
// (see the memstore and pgstore packages); outbound mail goes through a
// [Notifier].
//
// # Sign-in state machine
//
// [Engine.Login] walks START → CREDENTIALS_CHECKED and ends in one of
// EMAIL_UNVERIFIED, NOT_REGISTERED, SECOND_FACTOR_REQUIRED or READY. READY
// issues a session immediately. SECOND_FACTOR_REQUIRED is completed by
// [Engine.CompleteSecondFactor] followed by [Engine.FinalizeSignIn], which
// consumes the one-shot confirmation left by the former.
//
// # Architecture boundaries
//
// dramauth is the public surface. Token issuance, backup-code redemption,
// second-factor confirmation and Redis throttling live under internal/
// and are never exported. Every store and notifier call runs under its
// own timeout; failures surface as [ErrInternal].
//
// # What this package must NOT do
//
//   - Hold a lock across a store, notifier or hashing call.
//   - Log or audit passwords, TOTP secrets, backup codes or email tokens.
//   - Reveal through its errors whether an email address has an account.
package dramauth
