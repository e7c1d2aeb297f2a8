// Package ratelimiter enforces a minimum interval between successive
// outbound operations against one endpoint. It is the only piece of shared
// mutable state a scheduled dispatch cycle touches concurrently: probes and
// the eventual order share the same limiter so neither path can starve the
// other of its spacing guarantee.
package ratelimiter

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter serializes calls so that consecutive Wait returns are never
// closer together than the configured interval. The first call never
// blocks.
//
// Built on golang.org/x/time/rate with burst 1: a burst-1 token bucket
// refilling one token every interval is exactly this contract. The bucket
// starts full (first Wait returns immediately) and Wait blocks until the
// next token regenerates, i.e. exactly interval after the previous grant.
// rate.Limiter guards its own state with a mutex, so RateLimiter needs no
// locking of its own.
type RateLimiter struct {
	limiter    *rate.Limiter
	intervalMs int64
}

// New returns a RateLimiter enforcing intervalMs between successive Wait
// returns. intervalMs <= 0 is treated as no limiting (every Wait returns
// immediately).
func New(intervalMs int64) *RateLimiter {
	if intervalMs <= 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 1), intervalMs: 0}
	}
	every := rate.Every(time.Duration(intervalMs) * time.Millisecond)
	return &RateLimiter{limiter: rate.NewLimiter(every, 1), intervalMs: intervalMs}
}

// IntervalMs returns the configured minimum interval in milliseconds.
func (r *RateLimiter) IntervalMs() int64 {
	return r.intervalMs
}

// Wait blocks until the minimum interval has elapsed since the previous
// successful Wait return, then returns. It takes no action beyond waiting:
// no I/O, no wall-clock reads.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}
