package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowWithinBurst(t *testing.T) {
	rl := NewRateLimiter()

	for i := 0; i < 20; i++ {
		assert.True(t, rl.Allow("client-a"), "request %d inside the burst", i)
	}
	assert.False(t, rl.Allow("client-a"))
}

func TestClientsAreIsolated(t *testing.T) {
	rl := NewRateLimiter()

	for i := 0; i < 20; i++ {
		rl.Allow("greedy")
	}
	require.False(t, rl.Allow("greedy"))
	assert.True(t, rl.Allow("other"))
}

func TestBucketRefillsAfterWindow(t *testing.T) {
	rl := NewRateLimiter()

	for i := 0; i < 20; i++ {
		rl.Allow("client-a")
	}
	require.False(t, rl.Allow("client-a"))

	// Age the bucket past the window; the next request refills the burst.
	rl.mutex.Lock()
	rl.clients["client-a"].lastRefill = time.Now().Add(-2 * time.Minute)
	rl.mutex.Unlock()

	assert.True(t, rl.Allow("client-a"))
}

func TestLimitsReporting(t *testing.T) {
	rl := NewRateLimiter()

	fresh := rl.Limits("unseen")
	assert.Equal(t, 120, fresh.Limit)
	assert.Equal(t, 20, fresh.Remaining)

	rl.Allow("seen")
	seen := rl.Limits("seen")
	assert.Equal(t, 19, seen.Remaining)
}

func TestRateLimitMiddlewareHeaders(t *testing.T) {
	rl := NewRateLimiter()
	handler := rl.RateLimitMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.RemoteAddr = "10.0.0.1:51000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "120", rec.Header().Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
}

func TestRateLimitMiddlewareRejects(t *testing.T) {
	rl := NewRateLimiter()
	handler := rl.RateLimitMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var lastCode int
	for i := 0; i < 25; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
		req.RemoteAddr = "10.0.0.2:51000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		lastCode = rec.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, lastCode)
}

func TestCleanupExpiredClients(t *testing.T) {
	rl := NewRateLimiter()

	rl.Allow("stale")
	rl.Allow("fresh")

	rl.mutex.Lock()
	rl.clients["stale"].lastRefill = time.Now().Add(-2 * time.Hour)
	rl.mutex.Unlock()

	rl.CleanupExpiredClients()

	rl.mutex.Lock()
	defer rl.mutex.Unlock()
	assert.NotContains(t, rl.clients, "stale")
	assert.Contains(t, rl.clients, "fresh")
}

func TestGetClientIDStripsPort(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.5:40000"
	assert.Equal(t, "192.168.1.5", getClientID(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	assert.Equal(t, "203.0.113.9", getClientID(req))
}
