package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrEthical07/dramauth"
	"github.com/MrEthical07/dramauth/memstore"
	"github.com/MrEthical07/dramauth/store"
)

func newTestEngine(t *testing.T) (*dramauth.Engine, *memstore.Store) {
	t.Helper()
	cfg := dramauth.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")

	s := memstore.New()
	engine, err := dramauth.New().WithConfig(cfg).WithStore(s).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, s
}

func signIn(t *testing.T, engine *dramauth.Engine, email string) *dramauth.Session {
	t.Helper()
	session, err := engine.FederatedSignIn(context.Background(), dramauth.FederatedIdentity{Provider: "google", Email: email})
	if err != nil {
		t.Fatalf("FederatedSignIn failed: %v", err)
	}
	return session
}

func okHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			t.Error("expected claims in context")
		} else {
			w.Header().Set("X-Account", claims.AccountID())
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestRequireSession(t *testing.T) {
	engine, _ := newTestEngine(t)
	session := signIn(t, engine, "dave@example.com")
	h := RequireSession(engine)(okHandler(t))

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + session.AccessToken, http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
		{"refresh token", "Bearer " + session.RefreshToken, http.StatusUnauthorized},
		{"access token", "Bearer " + session.AccessToken, http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/members", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
			if tc.want == http.StatusNoContent && rec.Header().Get("X-Account") != session.AccountID {
				t.Fatalf("unexpected account header %q", rec.Header().Get("X-Account"))
			}
		})
	}
}

func TestRequireSessionNilEngine(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer x")
	rec := httptest.NewRecorder()
	RequireSession(nil)(okHandler(t)).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	engine, s := newTestEngine(t)
	ctx := context.Background()
	session := signIn(t, engine, "erin@example.com")
	h := RequireRole(engine, store.RoleAdmin)(okHandler(t))

	serve := func(token string) int {
		req := httptest.NewRequest(http.MethodPost, "/whiskies", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := serve(session.AccessToken); code != http.StatusForbidden {
		t.Fatalf("expected 403 for USER, got %d", code)
	}

	account, _ := s.GetAccountByID(ctx, session.AccountID)
	account.Role = store.RoleAdmin
	if err := s.UpdateAccount(ctx, account); err != nil {
		t.Fatalf("UpdateAccount: %v", err)
	}
	refreshed, err := engine.RefreshSession(ctx, session.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshSession: %v", err)
	}
	if code := serve(refreshed.AccessToken); code != http.StatusNoContent {
		t.Fatalf("expected 204 after promotion, got %d", code)
	}
}

func TestRequestMetadata(t *testing.T) {
	var seen context.Context
	h := RequestMetadata(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Context()
	}))

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	req.Header.Set("User-Agent", "club-test")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if seen == nil {
		t.Fatal("handler not called")
	}
	if got := clientIP(req); got != "203.0.113.7" {
		t.Fatalf("clientIP = %q", got)
	}
}
