package llm

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Limiter is a sliding-window log: at most limit acquisitions in any
// window-long interval. Callers over the limit block until the oldest
// acquisition leaves the window.
type Limiter struct {
	mu     sync.Mutex
	clock  clockwork.Clock
	limit  int
	window time.Duration
	stamps []time.Time // acquisition times, oldest first
}

func NewLimiter(limit int, window time.Duration, clock clockwork.Clock) *Limiter {
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	if window <= 0 {
		window = DefaultRateWindow
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Limiter{clock: clock, limit: limit, window: window}
}

// Wait blocks until a slot is free and takes it. It returns how long the
// caller waited, or the context error if ctx ends first.
func (l *Limiter) Wait(ctx context.Context) (time.Duration, error) {
	start := l.clock.Now()
	for {
		l.mu.Lock()
		now := l.clock.Now()
		l.evict(now)
		if len(l.stamps) < l.limit {
			l.stamps = append(l.stamps, now)
			l.mu.Unlock()
			return now.Sub(start), nil
		}
		delay := l.stamps[0].Add(l.window).Sub(now)
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return l.clock.Since(start), ctx.Err()
		case <-l.clock.After(delay):
		}
	}
}

// InFlight reports how many acquisitions are inside the current window.
func (l *Limiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evict(l.clock.Now())
	return len(l.stamps)
}

func (l *Limiter) evict(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.stamps) && !l.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[i:]...)
	}
}
