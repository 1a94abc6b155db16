package resilience

import (
	"math"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// RateLimiter is a non-blocking token bucket bounding the request rate to a
// single upstream. It is safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
	clock   clockwork.Clock
}

// NewRateLimiter creates a bucket that refills at requestsPerSecond and holds
// at most burst tokens. The bucket starts full. A non-positive rate means no
// limit.
func NewRateLimiter(requestsPerSecond float64, burst int, clock clockwork.Clock) *RateLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 || math.IsInf(requestsPerSecond, 1) {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(limit, burst),
		clock:   clock,
	}
}

// Acquire refills the bucket for the time elapsed since the last call and
// takes one token if available. It never blocks and has no effect on denial.
func (r *RateLimiter) Acquire() bool {
	return r.limiter.AllowN(r.clock.Now(), 1)
}

// Tokens reports the tokens currently available.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.TokensAt(r.clock.Now())
}

// Burst returns the bucket capacity.
func (r *RateLimiter) Burst() int {
	return r.limiter.Burst()
}
