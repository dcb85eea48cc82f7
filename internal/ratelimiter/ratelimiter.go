package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter throttles connection accepts using a token bucket,
// wrapping golang.org/x/time/rate.
//
// Tokens accrue at the configured sustained rate; each accepted
// connection consumes one. Burst capacity absorbs short spikes without
// delaying the accept loop.
//
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a RateLimiter allowing acceptsPerSecond sustained accepts
// with the given burst capacity.
//
// acceptsPerSecond = 0 disables limiting. A zero burst with a non-zero
// rate forces every accept to wait for a token.
func New(acceptsPerSecond, burst uint) *RateLimiter {
	if acceptsPerSecond == 0 {
		// Unlimited: rate.Inf has edge cases, a large value does not
		acceptsPerSecond = 1_000_000_000
		burst = acceptsPerSecond
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(acceptsPerSecond), int(burst)),
	}
}

// Allow reports whether an accept may proceed right now, consuming a
// token when it may. It never blocks.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Wait blocks until a token is available or ctx is cancelled. The accept
// loop uses this to throttle rather than reject incoming connections.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Tokens returns the number of tokens currently in the bucket. Useful
// for tests and monitoring; the value may change immediately after the
// call returns.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}
