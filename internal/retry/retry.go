// Package retry provides a reusable retry policy applied uniformly to
// provider fetches and message delivery. Centralising the policy keeps retry
// accounting identical at every call site: bounded exponential backoff with
// jitter, a fixed attempt cap, and a predicate deciding which errors are
// worth retrying.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy describes how an operation is retried.
type Policy struct {
	// MaxAttempts is the total attempt cap including the first try.
	MaxAttempts int
	// BaseDelay is the initial backoff interval.
	BaseDelay time.Duration
	// MaxDelay caps the backoff interval growth.
	MaxDelay time.Duration
	// Retryable decides whether an error is transient. When nil, every
	// error is retried up to MaxAttempts.
	Retryable func(error) bool
}

// DefaultPolicy returns the policy used when none is configured: 3 attempts
// starting at 500ms, capped at 5s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

// Do runs op under the policy. Non-retryable errors are returned immediately;
// retryable ones are re-attempted with jittered exponential backoff until the
// attempt cap is reached or ctx is cancelled. The last error is returned.
func (p Policy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	b := backoff.NewExponentialBackOff()
	if p.BaseDelay > 0 {
		b.InitialInterval = p.BaseDelay
	}
	if p.MaxDelay > 0 {
		b.MaxInterval = p.MaxDelay
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := op()
		if err != nil && p.Retryable != nil && !p.Retryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(attempts)),
	)
	return err
}
