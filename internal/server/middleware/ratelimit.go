package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/stark3693/stakepoll/internal/domain"
)

// RateLimit returns middleware that applies sliding-window rate limiting via
// the provided domain.RateLimiter. Authenticated requests are limited per
// wallet address so one account cannot spread stake spam across IPs;
// everything else falls back to a per-IP bucket. Must be wrapped inside Auth
// so the wallet is already on the request context.
func RateLimit(limiter domain.RateLimiter, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, err := limiter.Allow(r.Context(), limitKey(r), limit, window)
			if err != nil {
				// Fail open: a limiter outage must not take the API down with
				// it. The error is not surfaced to the client.
				next.ServeHTTP(w, r)
				return
			}

			if !allowed {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// limitKey buckets the request by wallet when authenticated, by client IP
// otherwise.
func limitKey(r *http.Request) string {
	if caller, ok := CallerFrom(r.Context()); ok {
		return "acct:" + strings.ToLower(caller.Hex())
	}
	return "ip:" + clientIP(r)
}

// clientIP resolves the originating address from standard proxy headers,
// falling back to the connection's remote address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
