package llm

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
)

// RetryPolicy decides how often and how long to back off between attempts.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// Retryable reports whether an attempt's error is worth another try.
	Retryable func(error) bool
}

// DefaultRetryPolicy retries throttling and transient server errors three
// times in total, waiting 1s then 2s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Retryable:   RetryableStatus,
	}
}

// NoRetry makes exactly one attempt.
func NoRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1}
}

// RetryableStatus is true for 429 and the 5xx codes a gateway returns while
// the upstream is overloaded.
func RetryableStatus(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	switch se.StatusCode {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Backoff returns the delay before attempt n+1 after attempt n failed (n >= 1).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.BaseDelay * time.Duration(1<<(attempt-1))
}

// Do runs op until it succeeds, returns a non-retryable error, or the
// attempts are used up. Sleeps happen on clock.
func (p RetryPolicy) Do(ctx context.Context, clock clockwork.Clock, op func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if attempt == attempts || p.Retryable == nil || !p.Retryable(err) {
			return err
		}
		delay := p.Backoff(attempt)
		slog.Debug("RetryPolicy.Do: attempt failed, retrying", "attempt", attempt, "max_attempts", attempts, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clock.After(delay):
		}
	}
	return err
}
