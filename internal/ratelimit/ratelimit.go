package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Limiter defines the interface for rate limiting upstream fetches
//
//go:generate go run go.uber.org/mock/mockgen -source=ratelimit.go -destination=mocks/mock.go
type Limiter interface {
	CanProceed() bool
	WaitIfNeeded(ctx context.Context) error
}

// SlidingWindow admits at most maxRequests operations inside any window-long interval.
type SlidingWindow struct {
	mu           sync.Mutex
	clock        clockwork.Clock
	maxRequests  int
	window       time.Duration
	pollInterval time.Duration
	stamps       []time.Time
}

var _ Limiter = (*SlidingWindow)(nil)

// NewSlidingWindow creates a new rate limiter
// Example: NewSlidingWindow(clock, 3, time.Minute, time.Second) -> 3 fetches per rolling minute
func NewSlidingWindow(clock clockwork.Clock, maxRequests int, window, pollInterval time.Duration) *SlidingWindow {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if maxRequests < 1 {
		maxRequests = 1
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &SlidingWindow{
		clock:        clock,
		maxRequests:  maxRequests,
		window:       window,
		pollInterval: pollInterval,
	}
}

// CanProceed evicts expired timestamps and records a new one when under the limit.
func (l *SlidingWindow) CanProceed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	cutoff := now.Add(-l.window)

	kept := l.stamps[:0]
	for _, ts := range l.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	l.stamps = kept

	if len(l.stamps) >= l.maxRequests {
		return false
	}
	l.stamps = append(l.stamps, now)
	return true
}

// WaitIfNeeded polls CanProceed until admitted or ctx ends.
func (l *SlidingWindow) WaitIfNeeded(ctx context.Context) error {
	for !l.CanProceed() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.clock.After(l.pollInterval):
		}
	}
	return nil
}
