package auth

import (
	"sync"
	"time"
)

/*
RateLimiter is a token bucket: a burst of up to rate calls passes
immediately, after which permits refill continuously over the interval.
Safe for concurrent use.
*/
type RateLimiter struct {
	mu       sync.Mutex
	perSec   float64
	capacity float64
	tokens   float64
	last     time.Time
}

// NewRateLimiter allows rate operations per interval, with bursts up to
// rate.
func NewRateLimiter(rate int64, interval time.Duration) *RateLimiter {
	if rate <= 0 || interval <= 0 {
		panic("rate and interval must be positive")
	}

	return &RateLimiter{
		perSec:   float64(rate) / interval.Seconds(),
		capacity: float64(rate),
		tokens:   float64(rate),
		last:     time.Now(),
	}
}

// Allow consumes one permit when available and reports whether the caller
// may proceed.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill(time.Now())

	if rl.tokens < 1 {
		return false
	}

	rl.tokens--

	return true
}

// WaitTime reports how long until the next permit becomes available,
// zero when one is ready now.
func (rl *RateLimiter) WaitTime() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill(time.Now())

	if rl.tokens >= 1 {
		return 0
	}

	return time.Duration((1 - rl.tokens) / rl.perSec * float64(time.Second))
}

// refill credits permits for the time elapsed since the previous call.
// Callers hold mu.
func (rl *RateLimiter) refill(now time.Time) {
	rl.tokens = min(rl.capacity, rl.tokens+now.Sub(rl.last).Seconds()*rl.perSec)
	rl.last = now
}
