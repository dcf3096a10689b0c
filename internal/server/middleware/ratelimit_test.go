package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubLimiter records the key it was asked about and returns a canned answer.
type stubLimiter struct {
	key     string
	allowed bool
	err     error
}

func (s *stubLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	s.key = key
	return s.allowed, s.err
}

func limitChain(limiter *stubLimiter) http.Handler {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	// Auth outside RateLimit, matching the server's chain.
	return Auth(false)(RateLimit(limiter, 10, time.Minute)(inner))
}

func TestRateLimitKeysOnWalletWhenAuthenticated(t *testing.T) {
	limiter := &stubLimiter{allowed: true}
	h := limitChain(limiter)

	r := httptest.NewRequest(http.MethodPost, "/api/polls/abc/stake", nil)
	r.Header.Set(HeaderAddress, "0xAbCdEFabcdefABCDefABCdefabCDefABcdEFAbcd")
	r.Header.Set("X-Forwarded-For", "10.1.2.3")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusNoContent, w.Code)
	// One account, one bucket, regardless of source IP.
	assert.Equal(t, "acct:0xabcdefabcdefabcdefabcdefabcdefabcdefabcd", limiter.key)
}

func TestRateLimitKeysOnClientIPWhenUnauthenticated(t *testing.T) {
	limiter := &stubLimiter{allowed: true}
	h := limitChain(limiter)

	r := httptest.NewRequest(http.MethodGet, "/api/polls", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "ip:203.0.113.7", limiter.key)
}

func TestRateLimitRejectsOverLimit(t *testing.T) {
	limiter := &stubLimiter{allowed: false}
	h := limitChain(limiter)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/polls", nil))

	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, w.Body.String())
}

func TestRateLimitFailsOpenOnLimiterError(t *testing.T) {
	limiter := &stubLimiter{err: errors.New("redis down")}
	h := limitChain(limiter)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/polls", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
}
