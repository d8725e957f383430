// Package ratelimit paces outbound calls per provider.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// Limiter gates calls per provider so that two calls to the same provider
// start at least the provider's interval apart. Providers are independent.
type Limiter struct {
	mu        sync.Mutex
	intervals map[string]time.Duration
	fallback  time.Duration
	gates     map[string]*gate

	now func() time.Time
}

// gate serializes callers of one provider. sem is a one-slot lock that a
// waiter can abandon on cancellation; last is only touched while holding it.
type gate struct {
	sem  chan struct{}
	last time.Time
}

// New creates a limiter. Providers missing from intervals use fallback; a
// zero interval means unlimited.
func New(intervals map[string]time.Duration, fallback time.Duration) *Limiter {
	copied := make(map[string]time.Duration, len(intervals))
	for k, v := range intervals {
		copied[k] = v
	}
	return &Limiter{
		intervals: copied,
		fallback:  fallback,
		gates:     make(map[string]*gate),
		now:       time.Now,
	}
}

// Interval returns the configured minimum spacing for a provider.
func (l *Limiter) Interval(provider string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.intervalLocked(provider)
}

func (l *Limiter) intervalLocked(provider string) time.Duration {
	if d, ok := l.intervals[provider]; ok {
		return d
	}
	return l.fallback
}

// gate returns the provider's gate, creating it on first use.
func (l *Limiter) gate(provider string) *gate {
	l.mu.Lock()
	defer l.mu.Unlock()

	if g, ok := l.gates[provider]; ok {
		return g
	}
	g := &gate{sem: make(chan struct{}, 1)}
	l.gates[provider] = g
	return g
}

// Acquire blocks until the provider's interval has passed since the previous
// call started. The provider's gate is held through the wait, so each start
// is stamped only after the previous one plus the interval. The only error is
// context cancellation, which leaves the previous start untouched.
func (l *Limiter) Acquire(ctx context.Context, provider string) error {
	interval := l.Interval(provider)
	if interval <= 0 {
		return ctx.Err()
	}

	g := l.gate(provider)
	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return eris.Wrapf(ctx.Err(), "ratelimit: waiting for %s", provider)
	}
	defer func() { <-g.sem }()

	if !g.last.IsZero() {
		if wait := time.Until(g.last.Add(interval)); wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return eris.Wrapf(ctx.Err(), "ratelimit: waiting for %s", provider)
			}
		}
	}

	g.last = l.now()
	return nil
}
