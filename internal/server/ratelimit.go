package server

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// bucket is a token bucket for one client.
type bucket struct {
	last   time.Time
	tokens float64
}

// RateLimiter is a per-client token bucket limiter.
type RateLimiter struct {
	now         func() time.Time
	clients     map[string]*bucket
	lastCleanup time.Time
	rate        float64
	burst       int
	maxIdle     time.Duration
	requests    int64
	rejected    int64
	mu          sync.Mutex
}

// NewRateLimiter allows rate requests per second per client with the given burst.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		now:         time.Now,
		clients:     make(map[string]*bucket),
		lastCleanup: time.Now(),
		rate:        rate,
		burst:       burst,
		maxIdle:     10 * time.Minute,
	}
}

// Allow reports whether the client may make a request now.
func (rl *RateLimiter) Allow(client string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastCleanup) > rl.maxIdle/2 {
		for key, b := range rl.clients {
			if now.Sub(b.last) > rl.maxIdle {
				delete(rl.clients, key)
			}
		}
		rl.lastCleanup = now
	}

	rl.requests++
	b, ok := rl.clients[client]
	if !ok {
		b = &bucket{last: now, tokens: float64(rl.burst)}
		rl.clients[client] = b
	}

	b.tokens = min(b.tokens+now.Sub(b.last).Seconds()*rl.rate, float64(rl.burst))
	b.last = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	rl.rejected++
	return false
}

// Stats returns limiter counters.
func (rl *RateLimiter) Stats() map[string]any {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return map[string]any{
		"rate":           rl.rate,
		"burst":          rl.burst,
		"active_clients": len(rl.clients),
		"total_requests": rl.requests,
		"total_rejected": rl.rejected,
	}
}

// Middleware rejects requests over the limit with 429. Clients are keyed by
// remote IP, which RealIP has already resolved from proxy headers.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := r.RemoteAddr
		if host, _, err := net.SplitHostPort(client); err == nil {
			client = host
		}
		if !rl.Allow(client) {
			w.Header().Set("Retry-After", "1")
			writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
