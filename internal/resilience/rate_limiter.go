package resilience

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter wraps golang.org/x/time/rate for the narrow use the batch
// core needs: throttling a best-effort hint (MemoryAdvisor.RequestReclaim)
// so it fires at most a bounded number of times per second regardless of
// how many batches ask for it.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a rate limiter allowing up to perSecond events per
// second with the given burst.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Allow reports whether an event may proceed right now, without blocking.
func (rl *RateLimiter) Allow() bool {
	return rl.limiter.Allow()
}

// Wait blocks until an event is permitted or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	return rl.limiter.Wait(ctx)
}
