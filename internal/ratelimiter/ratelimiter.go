package ratelimiter

import (
	"sync/atomic"

	"golang.org/x/time/rate"
)

// RateLimiter throttles repetitive events (log notices under resource
// pressure) using the token bucket algorithm.
//
// This implementation wraps golang.org/x/time/rate and additionally counts
// the events that were rejected, so the next allowed notice can report how
// many similar ones were suppressed in between.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter    *rate.Limiter
	suppressed atomic.Uint64
}

// New creates a new RateLimiter with the specified rate and burst capacity.
//
// Special cases:
//   - eventsPerSecond = 0: No rate limiting (unlimited)
//   - burst = 0: treated as 1
func New(eventsPerSecond, burst uint) *RateLimiter {
	if eventsPerSecond == 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	if burst == 0 {
		burst = 1
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(eventsPerSecond), int(burst)),
	}
}

// Allow reports whether an event may pass now. Rejected events are counted.
func (r *RateLimiter) Allow() bool {
	if r.limiter.Allow() {
		return true
	}
	r.suppressed.Add(1)
	return false
}

// TakeSuppressed returns the number of events rejected since the last call
// and resets the counter.
func (r *RateLimiter) TakeSuppressed() uint64 {
	return r.suppressed.Swap(0)
}

// Tokens returns the current number of available tokens.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}
