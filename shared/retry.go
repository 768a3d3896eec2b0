package shared

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy represents a reusable retry schedule for transient failures.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	MaxAttempts int
	// BaseDelay is the delay before the first retry, doubled per attempt.
	BaseDelay time.Duration
	// Retryable reports whether the provided error is worth retrying.
	// When nil, transient venue and network errors are retried.
	Retryable func(error) bool
}

// Validate asserts the policy has sane inputs.
func (p *RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("retry policy max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.BaseDelay < 0 {
		return fmt.Errorf("retry policy base delay cannot be negative, got %s", p.BaseDelay)
	}

	return nil
}

// Retry executes op under the provided policy, backing off exponentially
// between attempts. It returns the first non-retryable error immediately and
// the last error once attempts are exhausted.
func Retry(ctx context.Context, policy *RetryPolicy, op func(ctx context.Context) error) error {
	err := policy.Validate()
	if err != nil {
		return err
	}

	retryable := policy.Retryable
	if retryable == nil {
		retryable = Transient
	}

	delay := policy.BaseDelay
	for attempt := 1; ; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}

		if !retryable(err) || attempt == policy.MaxAttempts {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
			delay *= 2
		}
	}
}
