package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/dramauth/store"
)

func TestAccountEmailUniqueness(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.CreateAccount(ctx, &store.Account{ID: "a1", Email: "Alice@Example.com", Role: store.RoleUser}); err != nil {
		t.Fatalf("CreateAccount error: %v", err)
	}
	if err := s.CreateAccount(ctx, &store.Account{ID: "a2", Email: " alice@example.com", Role: store.RoleUser}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate email, got %v", err)
	}

	got, err := s.GetAccountByEmail(ctx, "ALICE@example.com")
	if err != nil {
		t.Fatalf("GetAccountByEmail error: %v", err)
	}
	if got.ID != "a1" || got.Email != "alice@example.com" || got.Version != 1 {
		t.Fatalf("unexpected account: %+v", got)
	}
}

func TestUpdateAccountOptimisticVersion(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.CreateAccount(ctx, &store.Account{ID: "a1", Email: "a@example.com"})
	_ = s.CreateAccount(ctx, &store.Account{ID: "b1", Email: "b@example.com"})

	first, _ := s.GetAccountByID(ctx, "a1")
	second, _ := s.GetAccountByID(ctx, "a1")

	first.Name = "First"
	if err := s.UpdateAccount(ctx, first); err != nil {
		t.Fatalf("UpdateAccount error: %v", err)
	}
	if first.Version != 2 {
		t.Fatalf("expected version bump to 2, got %d", first.Version)
	}

	second.Name = "Second"
	if err := s.UpdateAccount(ctx, second); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected stale update to conflict, got %v", err)
	}

	first.Email = "b@example.com"
	if err := s.UpdateAccount(ctx, first); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected email collision to conflict, got %v", err)
	}

	first.Email = "c@example.com"
	if err := s.UpdateAccount(ctx, first); err != nil {
		t.Fatalf("email change error: %v", err)
	}
	if _, err := s.GetAccountByEmail(ctx, "a@example.com"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("old email should be released, got %v", err)
	}
	if err := s.CreateAccount(ctx, &store.Account{ID: "d1", Email: "a@example.com"}); err != nil {
		t.Fatalf("released email should be reusable: %v", err)
	}
}

func TestGetAccountReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now()
	_ = s.CreateAccount(ctx, &store.Account{ID: "a1", Email: "a@example.com", EmailVerifiedAt: &now})

	got, _ := s.GetAccountByID(ctx, "a1")
	got.Name = "mutated"
	*got.EmailVerifiedAt = time.Time{}

	again, _ := s.GetAccountByID(ctx, "a1")
	if again.Name != "" || again.EmailVerifiedAt.IsZero() {
		t.Fatal("caller mutation leaked into store")
	}
}

func TestSaveTokenReplacesLiveTokenForEmail(t *testing.T) {
	ctx := context.Background()
	s := New()
	exp := time.Now().Add(time.Hour)

	_ = s.SaveToken(ctx, &store.TokenRecord{ID: "1", Kind: store.TokenPasswordReset, Email: "a@example.com", Token: "t1", ExpiresAt: exp})
	_ = s.SaveToken(ctx, &store.TokenRecord{ID: "2", Kind: store.TokenPasswordReset, Email: "a@example.com", Token: "t2", ExpiresAt: exp})
	_ = s.SaveToken(ctx, &store.TokenRecord{ID: "3", Kind: store.TokenVerification, Email: "a@example.com", Token: "t3", ExpiresAt: exp})

	if _, err := s.GetToken(ctx, store.TokenPasswordReset, "t1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected superseded token to be gone, got %v", err)
	}
	if got, err := s.FindTokenByEmail(ctx, store.TokenPasswordReset, "a@example.com"); err != nil || got.Token != "t2" {
		t.Fatalf("FindTokenByEmail = %+v, %v", got, err)
	}
	if s.TokenCount() != 2 {
		t.Fatalf("expected 2 tokens across kinds, got %d", s.TokenCount())
	}
}

func TestTakeTokenOnce(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.SaveToken(ctx, &store.TokenRecord{ID: "1", Kind: store.TokenVerification, Email: "a@example.com", Token: "t1", ExpiresAt: time.Now().Add(time.Hour)})

	if _, err := s.TakeToken(ctx, store.TokenVerification, "t1"); err != nil {
		t.Fatalf("first TakeToken error: %v", err)
	}
	if _, err := s.TakeToken(ctx, store.TokenVerification, "t1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second TakeToken = %v, want ErrNotFound", err)
	}
	if _, err := s.FindTokenByEmail(ctx, store.TokenVerification, "a@example.com"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("email index should be cleared, got %v", err)
	}
}

func TestBackupCodeDeleteReportsOwnership(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.CreateAccount(ctx, &store.Account{ID: "a1", Email: "a@example.com"})
	_ = s.ReplaceBackupCodes(ctx, "a1", 1, []store.BackupCode{{ID: "c1", AccountID: "a1"}, {ID: "c2", AccountID: "a1"}})

	removed, err := s.DeleteBackupCode(ctx, "a1", "c1")
	if err != nil || !removed {
		t.Fatalf("first delete = %v, %v", removed, err)
	}
	removed, err = s.DeleteBackupCode(ctx, "a1", "c1")
	if err != nil || removed {
		t.Fatalf("second delete = %v, %v", removed, err)
	}
	codes, _ := s.ListBackupCodes(ctx, "a1")
	if len(codes) != 1 || codes[0].ID != "c2" {
		t.Fatalf("unexpected remaining codes: %+v", codes)
	}
}

func TestReplaceBackupCodesGuardedByVersion(t *testing.T) {
	ctx := context.Background()
	s := New()
	account := &store.Account{ID: "a1", Email: "a@example.com"}
	_ = s.CreateAccount(ctx, account)

	if err := s.ReplaceBackupCodes(ctx, "a1", account.Version, []store.BackupCode{{ID: "c1", AccountID: "a1"}}); err != nil {
		t.Fatalf("ReplaceBackupCodes error: %v", err)
	}
	err := s.ReplaceBackupCodes(ctx, "a1", account.Version, []store.BackupCode{{ID: "c2", AccountID: "a1"}})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("stale ReplaceBackupCodes = %v, want ErrConflict", err)
	}
	codes, _ := s.ListBackupCodes(ctx, "a1")
	if len(codes) != 1 || codes[0].ID != "c1" {
		t.Fatalf("stale replace must not touch codes: %+v", codes)
	}
	if err := s.ReplaceBackupCodes(ctx, "missing", 1, nil); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("missing account = %v, want ErrNotFound", err)
	}

	// The account write that follows must observe the bumped version.
	stale := account.Clone()
	stale.Name = "x"
	if err := s.UpdateAccount(ctx, stale); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("UpdateAccount on pre-replace version = %v, want ErrConflict", err)
	}
}
