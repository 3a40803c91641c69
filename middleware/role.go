package middleware

import (
	"net/http"
	"slices"

	"github.com/MrEthical07/dramauth"
	"github.com/MrEthical07/dramauth/store"
)

// RequireRole is RequireSession restricted to the listed roles. A valid
// session with another role gets 403. Roles are read from the token, which
// is re-stamped from the account on every refresh.
func RequireRole(engine *dramauth.Engine, roles ...store.Role) func(http.Handler) http.Handler {
	return guard(engine, func(claims *dramauth.SessionClaims) bool {
		return slices.Contains(roles, store.Role(claims.Role))
	})
}
