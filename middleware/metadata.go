package middleware

import (
	"context"
	"net"
	"net/http"

	"github.com/MrEthical07/dramauth"
)

// RequestMetadata attaches the client IP and User-Agent to the request
// context so engine audit events carry them.
func RequestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(withRequestMetadata(r)))
	})
}

func withRequestMetadata(r *http.Request) context.Context {
	ctx := r.Context()
	if ip := clientIP(r); ip != "" {
		ctx = dramauth.WithClientIP(ctx, ip)
	}
	if ua := r.UserAgent(); ua != "" {
		ctx = dramauth.WithUserAgent(ctx, ua)
	}
	return ctx
}

// clientIP uses the connection address only. Forwarded headers are left
// to a trusted proxy layer.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
