package services

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is the single process-wide request budget. Every component
// waits on it before issuing an exchange call, so a cool-down ordered by the
// exchange backs everyone off together.
type RateLimiter struct {
	mu            sync.Mutex
	tokens        float64
	capacity      float64
	refillPerSec  float64
	last          time.Time
	coolDownUntil time.Time
}

func NewRateLimiter(capacity int, refillPerSec float64) *RateLimiter {
	return &RateLimiter{
		tokens:       float64(capacity),
		capacity:     float64(capacity),
		refillPerSec: refillPerSec,
		last:         time.Now(),
	}
}

// Wait blocks until one token is available and any cool-down has elapsed.
func (limiter *RateLimiter) Wait(ctx context.Context) error {
	for {
		delay, ok := limiter.take()
		if ok {
			return nil
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// CoolDown suspends the whole budget for the given duration, typically after
// a rate-limit response from the exchange.
func (limiter *RateLimiter) CoolDown(duration time.Duration) {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()

	until := time.Now().Add(duration)
	if until.After(limiter.coolDownUntil) {
		limiter.coolDownUntil = until
	}
}

func (limiter *RateLimiter) take() (time.Duration, bool) {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()

	now := time.Now()

	if now.Before(limiter.coolDownUntil) {
		return limiter.coolDownUntil.Sub(now), false
	}

	limiter.tokens += now.Sub(limiter.last).Seconds() * limiter.refillPerSec
	if limiter.tokens > limiter.capacity {
		limiter.tokens = limiter.capacity
	}
	limiter.last = now

	if limiter.tokens >= 1 {
		limiter.tokens--
		return 0, true
	}

	missing := 1 - limiter.tokens
	return time.Duration(missing / limiter.refillPerSec * float64(time.Second)), false
}
