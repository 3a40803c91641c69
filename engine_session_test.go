package dramauth

import (
	"context"
	"errors"
	"testing"

	"github.com/MrEthical07/dramauth/store"
)

func TestRefreshCarriesCurrentClaims(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()
	alice, _ := env.seedAccount(t, "alice@example.com", "correct-horse", seedOptions{})

	result, err := env.engine.Login(ctx, "alice@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	_, err = env.engine.mutateAccount(ctx, alice.ID, func(a *store.Account) error {
		a.Role = store.RoleAdmin
		a.Name = "Alice A."
		return nil
	})
	if err != nil {
		t.Fatalf("mutateAccount failed: %v", err)
	}

	refreshed, err := env.engine.RefreshSession(ctx, result.Session.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshSession failed: %v", err)
	}
	claims, err := env.engine.ValidateSession(ctx, refreshed.AccessToken)
	if err != nil {
		t.Fatalf("ValidateSession failed: %v", err)
	}
	if claims.Role != "ADMIN" || claims.Name != "Alice A." {
		t.Fatalf("expected refreshed claims to reflect the account, got %+v", claims)
	}
}

func TestRefreshRejectsAccessTokenAndGarbage(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()
	env.seedAccount(t, "alice@example.com", "correct-horse", seedOptions{})
	result, _ := env.engine.Login(ctx, "alice@example.com", "correct-horse")

	for _, tok := range []string{result.Session.AccessToken, "not.a.jwt"} {
		if _, err := env.engine.RefreshSession(ctx, tok); !errors.Is(err, ErrSessionInvalid) {
			t.Fatalf("expected ErrSessionInvalid, got %v", err)
		}
	}
	if _, err := env.engine.ValidateSession(ctx, result.Session.RefreshToken); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected refresh token rejected as access token, got %v", err)
	}
}

func TestRefreshRejectsUnregisteredAccount(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()
	alice, _ := env.seedAccount(t, "alice@example.com", "correct-horse", seedOptions{})
	result, _ := env.engine.Login(ctx, "alice@example.com", "correct-horse")

	_, _ = env.engine.mutateAccount(ctx, alice.ID, func(a *store.Account) error {
		a.Registered = false
		return nil
	})
	if _, err := env.engine.RefreshSession(ctx, result.Session.RefreshToken); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid, got %v", err)
	}
}

func TestMutateAccountRetriesStaleVersion(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()
	alice, _ := env.seedAccount(t, "alice@example.com", "correct-horse", seedOptions{})

	calls := 0
	updated, err := env.engine.mutateAccount(ctx, alice.ID, func(a *store.Account) error {
		calls++
		if calls == 1 {
			// A concurrent writer bumps the version under us.
			other, _ := env.store.GetAccountByID(ctx, alice.ID)
			other.Image = "https://img.example/a.png"
			if err := env.store.UpdateAccount(ctx, other); err != nil {
				t.Fatalf("concurrent UpdateAccount failed: %v", err)
			}
		}
		a.Name = "Alice"
		return nil
	})
	if err != nil {
		t.Fatalf("mutateAccount failed: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected one retry, got %d calls", calls)
	}
	if updated.Name != "Alice" || updated.Image != "https://img.example/a.png" {
		t.Fatalf("expected both writes to land, got %+v", updated)
	}
}
