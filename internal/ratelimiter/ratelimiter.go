// Package ratelimiter throttles client commands and body transfers using the
// token bucket algorithm from golang.org/x/time/rate.
package ratelimiter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// unlimited stands in for rate.Inf, which does not report tokens usefully.
const unlimited = 1_000_000_000

// RateLimiter is a token bucket.
//
// Tokens are added at a constant rate up to the burst size. Commands consume
// one token each; byte limiters consume one token per byte.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a RateLimiter allowing perSecond tokens per second with the
// given burst.
//
// Special cases:
//   - perSecond = 0: No rate limiting (unlimited)
//   - burst = 0: the burst defaults to perSecond
func New(perSecond, burst uint) *RateLimiter {
	if perSecond == 0 {
		perSecond = unlimited
		burst = unlimited
	}
	if burst == 0 {
		burst = perSecond
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(perSecond), int(burst)),
	}
}

// Allow consumes one token if available and reports whether it did.
// It never blocks.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Wait blocks until a token is available or the context is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// WaitN blocks until n tokens were consumed or ctx is done. Unlike
// rate.Limiter.WaitN, n may exceed the burst: the wait is split into
// burst-sized steps.
func (r *RateLimiter) WaitN(ctx context.Context, n int) error {
	burst := r.limiter.Burst()
	for n > 0 {
		step := n
		if step > burst {
			step = burst
		}
		if err := r.limiter.WaitN(ctx, step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}

// Tokens returns the current number of available tokens.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}

// Keyed holds one RateLimiter per key, typically the client host, so a
// client cannot reset its bucket by reconnecting.
//
// Entries unused for longer than the idle TTL are dropped by Sweep.
type Keyed struct {
	perSecond uint
	burst     uint
	idleTTL   time.Duration

	mu       sync.Mutex
	limiters map[string]*keyedEntry
}

type keyedEntry struct {
	limiter  *RateLimiter
	lastUsed time.Time
}

// NewKeyed returns a Keyed whose limiters are created with New(perSecond, burst).
func NewKeyed(perSecond, burst uint, idleTTL time.Duration) *Keyed {
	return &Keyed{
		perSecond: perSecond,
		burst:     burst,
		idleTTL:   idleTTL,
		limiters:  make(map[string]*keyedEntry),
	}
}

// Get returns the limiter for key, creating it on first use.
func (k *Keyed) Get(key string) *RateLimiter {
	k.mu.Lock()
	defer k.mu.Unlock()

	e, ok := k.limiters[key]
	if !ok {
		e = &keyedEntry{limiter: New(k.perSecond, k.burst)}
		k.limiters[key] = e
	}
	e.lastUsed = time.Now()
	return e.limiter
}

// Sweep drops limiters idle for longer than the TTL and returns how many
// were removed.
func (k *Keyed) Sweep(now time.Time) int {
	if k.idleTTL <= 0 {
		return 0
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	removed := 0
	for key, e := range k.limiters {
		if now.Sub(e.lastUsed) > k.idleTTL {
			delete(k.limiters, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.limiters)
}
