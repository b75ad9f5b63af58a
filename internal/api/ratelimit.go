package api

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/arb-engine/flashloan-arb-engine/pkg/interfaces"
)

// RateLimiter implements token bucket rate limiting per client.
type RateLimiter struct {
	clients map[string]*clientBucket
	mutex   sync.Mutex

	defaultLimit *interfaces.RateLimit
}

type clientBucket struct {
	tokens     int
	lastRefill time.Time
	limit      *interfaces.RateLimit
}

// NewRateLimiter creates a rate limiter with the default per-client limit.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*clientBucket),
		defaultLimit: &interfaces.RateLimit{
			RequestsPerMinute: 120,
			BurstSize:         20,
			WindowSize:        time.Minute,
		},
	}
}

// Allow reports whether a request from the client should proceed.
func (rl *RateLimiter) Allow(clientID string) bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	bucket, exists := rl.clients[clientID]
	if !exists {
		bucket = &clientBucket{
			tokens:     rl.defaultLimit.BurstSize,
			lastRefill: time.Now(),
			limit:      rl.defaultLimit,
		}
		rl.clients[clientID] = bucket
	}

	now := time.Now()
	elapsed := now.Sub(bucket.lastRefill)

	if elapsed >= bucket.limit.WindowSize {
		bucket.tokens = bucket.limit.BurstSize
		bucket.lastRefill = now
	} else if elapsed > 0 {
		refill := int(elapsed.Seconds() * float64(bucket.limit.RequestsPerMinute) / 60.0)
		if refill > 0 {
			bucket.tokens += refill
			if bucket.tokens > bucket.limit.BurstSize {
				bucket.tokens = bucket.limit.BurstSize
			}
			bucket.lastRefill = now
		}
	}

	if bucket.tokens > 0 {
		bucket.tokens--
		return true
	}
	return false
}

// Limits returns the current rate limit state for a client.
func (rl *RateLimiter) Limits(clientID string) *interfaces.RateLimitInfo {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	bucket, exists := rl.clients[clientID]
	if !exists {
		return &interfaces.RateLimitInfo{
			Limit:      rl.defaultLimit.RequestsPerMinute,
			Remaining:  rl.defaultLimit.BurstSize,
			ResetTime:  time.Now().Add(rl.defaultLimit.WindowSize),
			WindowSize: rl.defaultLimit.WindowSize,
		}
	}

	return &interfaces.RateLimitInfo{
		Limit:      bucket.limit.RequestsPerMinute,
		Remaining:  bucket.tokens,
		ResetTime:  bucket.lastRefill.Add(bucket.limit.WindowSize),
		WindowSize: bucket.limit.WindowSize,
	}
}

// RateLimitMiddleware applies per-client limits and sets the standard
// rate-limit response headers.
func (rl *RateLimiter) RateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := getClientID(r)

		allowed := rl.Allow(clientID)
		limits := rl.Limits(clientID)
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limits.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", limits.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", limits.ResetTime.Unix()))

		if !allowed {
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// CleanupExpiredClients drops buckets idle for over an hour.
func (rl *RateLimiter) CleanupExpiredClients() {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := time.Now()
	for clientID, bucket := range rl.clients {
		if now.Sub(bucket.lastRefill) > time.Hour {
			delete(rl.clients, clientID)
		}
	}
}

// getClientID keys the bucket by API key when authenticated, IP otherwise.
func getClientID(r *http.Request) string {
	if apiKey, ok := r.Context().Value(contextKeyAPIKey).(string); ok {
		return apiKey
	}

	clientIP := r.Header.Get("X-Forwarded-For")
	if clientIP == "" {
		clientIP = r.Header.Get("X-Real-IP")
	}
	if clientIP == "" {
		clientIP = r.RemoteAddr
	}
	if idx := strings.LastIndex(clientIP, ":"); idx != -1 {
		clientIP = clientIP[:idx]
	}
	return clientIP
}
