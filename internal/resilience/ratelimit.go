package resilience

import (
	"context"
	"sync"
	"time"
)

// RateLimiter bounds outbound request rate to one external dependency using
// a sliding time window: at most limit acquisitions per rolling window.
// Acquire only ever delays; it fails solely on context cancellation.
type RateLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu        sync.Mutex
	stamps    []time.Time
	holdUntil time.Time
}

// NewRateLimiter builds a limiter allowing limit acquisitions per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit < 1 {
		limit = 1
	}
	if window <= 0 {
		window = time.Second
	}
	return &RateLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Acquire blocks until a slot is available under the rolling window, then
// records the acquisition. Waiters proceed in arrival order.
func (l *RateLimiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()
		l.prune(now)

		var wait time.Duration
		switch {
		case now.Before(l.holdUntil):
			wait = l.holdUntil.Sub(now)
		case len(l.stamps) < l.limit:
			l.stamps = append(l.stamps, now)
			l.mu.Unlock()
			return nil
		default:
			wait = l.stamps[0].Add(l.window).Sub(now)
		}
		l.mu.Unlock()

		if wait <= 0 {
			wait = time.Millisecond
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Hold suspends all acquisitions until the given instant. Used when a
// dependency answers 429 with a server-advised retry time.
func (l *RateLimiter) Hold(until time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if until.After(l.holdUntil) {
		l.holdUntil = until
	}
}

// InFlight returns the number of acquisitions inside the current window.
func (l *RateLimiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return len(l.stamps)
}

func (l *RateLimiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	idx := 0
	for idx < len(l.stamps) && !l.stamps[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[idx:]...)
	}
}
