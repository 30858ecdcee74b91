package realtime

import (
	"sync"
	"time"
)

// RateLimiter is a per-connection sliding-window limiter over inbound frames.
// It remembers the last limit admission times in a ring.
type RateLimiter struct {
	mu     sync.Mutex
	ring   []time.Time
	next   int
	filled int
	window time.Duration
}

// NewRateLimiter falls back to package defaults for non-positive inputs.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = rateLimitEvents
	}
	if window <= 0 {
		window = rateLimitWindow
	}
	return &RateLimiter{ring: make([]time.Time, limit), window: window}
}

// Allow reports whether a frame arriving at now is admitted.
func (r *RateLimiter) Allow(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.filled < len(r.ring) {
		r.ring[r.next] = now
		r.next = (r.next + 1) % len(r.ring)
		r.filled++
		return true
	}

	// The oldest admission sits at next once the ring is full.
	if now.Sub(r.ring[r.next]) < r.window {
		return false
	}
	r.ring[r.next] = now
	r.next = (r.next + 1) % len(r.ring)
	return true
}
