package ratelimit

import (
	"context"
	"sync"
	"time"
)

type RateLimiter interface {
	Wait(ctx context.Context) error
}

// FixedRateLimiter spaces actions at least delay apart. The first action is
// never delayed.
type FixedRateLimiter struct {
	delay      time.Duration
	lastAction time.Time
	mu         sync.Mutex
}

func NewFixedRateLimiter(delay time.Duration) *FixedRateLimiter {
	if delay < 0 {
		delay = 0
	}
	return &FixedRateLimiter{delay: delay}
}

func (r *FixedRateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.lastAction.IsZero() {
		if remaining := r.delay - time.Since(r.lastAction); remaining > 0 {
			timer := time.NewTimer(remaining)
			defer timer.Stop()

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	r.lastAction = time.Now()
	return nil
}
