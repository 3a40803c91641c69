// Package jwt signs and verifies session tokens.
//
// A session is a short-lived access token and a longer-lived refresh
// token. Both carry the enriched identity (email, role, name, image and
// whether a second factor is enrolled) and a typ claim so that one kind
// can never be accepted where the other is expected.
package jwt
