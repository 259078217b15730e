package service

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxTrackedLimiters bounds the registry before idle limiters are dropped.
const maxTrackedLimiters = 10000

// RateLimiterRegistry manages a token-bucket limiter per client key.
type RateLimiterRegistry struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewRateLimiterRegistry creates a registry allowing perMinute events per
// key with the given burst.
func NewRateLimiterRegistry(perMinute, burst int) *RateLimiterRegistry {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiterRegistry{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Every(time.Minute / time.Duration(max(perMinute, 1))),
		burst:    burst,
	}
}

// Allow reports whether an event for key may happen now.
func (r *RateLimiterRegistry) Allow(key string) bool {
	return r.GetOrCreate(key).Allow()
}

// GetOrCreate retrieves an existing rate limiter or creates a new one.
func (r *RateLimiterRegistry) GetOrCreate(key string) *rate.Limiter {
	r.mu.RLock()
	limiter, exists := r.limiters[key]
	r.mu.RUnlock()

	if exists {
		return limiter
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists := r.limiters[key]; exists {
		return limiter
	}

	if len(r.limiters) >= maxTrackedLimiters {
		r.pruneLocked()
	}

	limiter = rate.NewLimiter(r.limit, r.burst)
	r.limiters[key] = limiter
	return limiter
}

// pruneLocked drops limiters whose bucket has refilled.
func (r *RateLimiterRegistry) pruneLocked() {
	for key, l := range r.limiters {
		if l.Tokens() >= float64(r.burst) {
			delete(r.limiters, key)
		}
	}
}

// Delete removes the limiter for key.
func (r *RateLimiterRegistry) Delete(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.limiters, key)
}

// Len returns the number of tracked keys.
func (r *RateLimiterRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.limiters)
}
