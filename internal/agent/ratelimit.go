package agent

import (
	"context"
	"sync"
	"time"
)

// rateLimiter enforces a minimum spacing between requests derived from a
// requests-per-minute budget. It is deliberately simple: no bursts, just an
// even cadence, which is what per-key LLM rate limits actually reward.
type rateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
}

func newRateLimiter(requestsPerMinute int) *rateLimiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	return &rateLimiter{interval: time.Minute / time.Duration(requestsPerMinute)}
}

// wait blocks until the next request slot opens or ctx is cancelled. The
// slot is reserved before sleeping so concurrent callers queue up rather
// than stampede when the wait ends.
func (l *rateLimiter) wait(ctx context.Context) error {
	l.mu.Lock()
	now := time.Now()
	if l.next.Before(now) {
		l.next = now
	}
	delay := l.next.Sub(now)
	l.next = l.next.Add(l.interval)
	l.mu.Unlock()

	return sleepCtx(ctx, delay)
}
