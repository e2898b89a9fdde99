package api

import (
	"context"
	"math"
	"time"
)

// RetryStrategy defines how network failures are retried
type RetryStrategy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryStrategy returns three attempts, 1s apart then 2s
func DefaultRetryStrategy() *RetryStrategy {
	return &RetryStrategy{
		MaxAttempts:   3,
		InitialDelay:  time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
	}
}

// NextDelay calculates the delay after a failed attempt (0-based)
func (rs *RetryStrategy) NextDelay(attempt int) time.Duration {
	delay := float64(rs.InitialDelay) * math.Pow(rs.BackoffFactor, float64(attempt))
	if delay > float64(rs.MaxDelay) {
		return rs.MaxDelay
	}
	return time.Duration(delay)
}

// ShouldRetry determines if another attempt should follow attempt (0-based)
func (rs *RetryStrategy) ShouldRetry(attempt int) bool {
	return attempt+1 < rs.MaxAttempts
}

// wait sleeps for d or until ctx is done
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
