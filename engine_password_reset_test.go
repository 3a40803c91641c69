package dramauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/dramauth/store"
)

func TestPasswordResetFlow(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()
	dave, _ := env.seedAccount(t, "dave@example.com", "old-password-123", seedOptions{otp: true})

	// A pending confirmation must not survive the reset.
	if err := env.engine.CompleteSecondFactor(ctx, "dave@example.com", TOTPFactor(env.totpCode(t, testTOTPSecret))); err != nil {
		t.Fatalf("CompleteSecondFactor failed: %v", err)
	}

	if err := env.engine.RequestPasswordReset(ctx, "DAVE@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	msg, ok := env.mail.last(NotifyPasswordReset)
	if !ok || msg.Token == "" {
		t.Fatalf("expected reset mail, got %+v", msg)
	}

	expiresAt, err := env.engine.PeekPasswordReset(ctx, msg.Token)
	if err != nil {
		t.Fatalf("PeekPasswordReset failed: %v", err)
	}
	if !expiresAt.After(env.clock.Now()) {
		t.Fatalf("expected future expiry, got %v", expiresAt)
	}

	if err := env.engine.ConfirmPasswordReset(ctx, msg.Token, "new-password-456"); err != nil {
		t.Fatalf("ConfirmPasswordReset failed: %v", err)
	}
	if env.store.HasConfirmation(dave.ID) {
		t.Fatal("expected pending confirmation cleared by reset")
	}
	if got := env.mail.count(NotifyPasswordChangedNotice); got != 1 {
		t.Fatalf("expected password changed notice, got %d", got)
	}

	if _, err := env.engine.Login(ctx, "dave@example.com", "old-password-123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected old password rejected, got %v", err)
	}
	if _, err := env.engine.Login(ctx, "dave@example.com", "new-password-456"); err != nil {
		t.Fatalf("expected new password accepted, got %v", err)
	}
	if err := env.engine.ConfirmPasswordReset(ctx, msg.Token, "another-pass-789"); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound on reuse, got %v", err)
	}
}

func TestPasswordResetExpiredTokenIsDeleted(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()
	env.seedAccount(t, "dave@example.com", "old-password-123", seedOptions{})

	record := &store.TokenRecord{
		ID:        "expired-reset",
		Kind:      store.TokenPasswordReset,
		Email:     "dave@example.com",
		Token:     "expired-reset-token",
		ExpiresAt: env.clock.Now().Add(-time.Second),
	}
	if err := env.store.SaveToken(ctx, record); err != nil {
		t.Fatalf("SaveToken failed: %v", err)
	}

	if err := env.engine.ConfirmPasswordReset(ctx, record.Token, "new-password-456"); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	if _, err := env.store.GetToken(ctx, store.TokenPasswordReset, record.Token); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected expired token deleted, got %v", err)
	}
	if _, err := env.engine.Login(ctx, "dave@example.com", "old-password-123"); err != nil {
		t.Fatalf("expected password unchanged, got %v", err)
	}
}

func TestPasswordResetPolicyKeepsToken(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()
	env.seedAccount(t, "dave@example.com", "old-password-123", seedOptions{})
	_ = env.engine.RequestPasswordReset(ctx, "dave@example.com")
	msg, _ := env.mail.last(NotifyPasswordReset)

	if err := env.engine.ConfirmPasswordReset(ctx, msg.Token, "short"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
	if _, err := env.engine.PeekPasswordReset(ctx, msg.Token); err != nil {
		t.Fatalf("expected token still usable, got %v", err)
	}
}

func TestPasswordResetDoesNotEnumerate(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()
	env.seedAccount(t, "invitee@example.com", "", seedOptions{unregistered: true})

	for _, email := range []string{"nobody@example.com", "invitee@example.com"} {
		if err := env.engine.RequestPasswordReset(ctx, email); err != nil {
			t.Fatalf("expected nil for %s, got %v", email, err)
		}
	}
	if got := env.mail.count(NotifyPasswordReset); got != 0 {
		t.Fatalf("expected no reset mail, got %d", got)
	}
	if got := env.engine.metrics.Value(MetricPasswordResetRequest); got != 2 {
		t.Fatalf("expected 2 reset requests counted, got %d", got)
	}
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()
	alice, _ := env.seedAccount(t, "alice@example.com", "correct-horse", seedOptions{})

	if err := env.engine.ChangePassword(ctx, alice.ID, "wrong-horse", "battery-staple"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := env.engine.ChangePassword(ctx, alice.ID, "correct-horse", "tiny"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
	if err := env.engine.ChangePassword(ctx, alice.ID, "correct-horse", "battery-staple"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}
	if _, err := env.engine.Login(ctx, "alice@example.com", "battery-staple"); err != nil {
		t.Fatalf("expected new password accepted, got %v", err)
	}
	if got := env.mail.count(NotifyPasswordChangedNotice); got != 1 {
		t.Fatalf("expected 1 notice, got %d", got)
	}
}
