// Package ratelimit implements a per-key token bucket used to throttle searches per user.
package ratelimit

import (
	"encoding/json"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/bathroom-buddy/internal/telemetry"
)

// RejectedMessage is the body text of a throttled request.
const RejectedMessage = "too many searches, slow down"

// maxIdleKeys bounds the bucket map; full buckets are dropped past it.
const maxIdleKeys = 10000

// Limiter manages one token bucket per key.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
}

// Config holds rate limiter configuration.
type Config struct {
	RPS   float64
	Burst int
}

// New creates a new Limiter. A non-positive RPS disables limiting.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  r,
		defaultBurst: burst,
	}
}

// Allow reports whether key may proceed now, consuming a token if so.
func (l *Limiter) Allow(key string) bool {
	if l.defaultRate == rate.Inf {
		return true
	}
	l.mu.Lock()
	limiter, exists := l.limiters[key]
	if !exists {
		if len(l.limiters) >= maxIdleKeys {
			l.sweepLocked()
		}
		limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
		l.limiters[key] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

// sweepLocked drops buckets that have refilled completely.
func (l *Limiter) sweepLocked() {
	for key, limiter := range l.limiters {
		if limiter.Tokens() >= float64(l.defaultBurst) {
			delete(l.limiters, key)
		}
	}
}

// Middleware rejects requests with 429 once the key returned by keyFn runs out
// of tokens. An empty key is never limited.
func (l *Limiter) Middleware(keyFn func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFn(r)
			if key == "" || l.Allow(key) {
				next.ServeHTTP(w, r)
				return
			}
			telemetry.ObserveSearchRejected("rate_limited")
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": RejectedMessage})
		})
	}
}
