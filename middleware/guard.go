package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/dramauth"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the claims injected by RequireSession.
func ClaimsFromContext(ctx context.Context) (*dramauth.SessionClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*dramauth.SessionClaims)
	return claims, ok
}

// RequireSession rejects requests without a valid access token with 401.
func RequireSession(engine *dramauth.Engine) func(http.Handler) http.Handler {
	return guard(engine, nil)
}

func guard(engine *dramauth.Engine, allow func(*dramauth.SessionClaims) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := withRequestMetadata(r)
			claims, err := engine.ValidateSession(ctx, token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if allow != nil && !allow(claims) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			ctx = context.WithValue(ctx, claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
