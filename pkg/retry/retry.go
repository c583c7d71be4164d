// Package retry implements bounded retries with exponential backoff for
// transient failures against the provider, the store, and the gateway.
package retry

import (
	"context"
	"time"
)

// Policy bounds a retry loop: total attempts and the initial delay,
// which doubles between attempts (base, 2*base, 4*base, ...).
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
}

// DefaultPolicy matches the pipeline-wide retry budget.
var DefaultPolicy = Policy{Attempts: 3, BaseDelay: 400 * time.Millisecond}

// Do runs fn until it succeeds, the attempts are exhausted, or the
// context is canceled. A retryable predicate of nil retries every error.
// The last error is returned on exhaustion.
func Do(ctx context.Context, policy Policy, retryable func(error) bool, fn func(ctx context.Context) error) error {
	if policy.Attempts <= 0 {
		policy.Attempts = 1
	}

	delay := policy.BaseDelay
	var lastErr error
	for attempt := 0; attempt < policy.Attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
	}

	return lastErr
}
