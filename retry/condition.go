package retry

import (
	"context"
	"errors"
)

// RetryCondition decides whether a failed attempt should be retried.
// attempt starts at 1.
type RetryCondition interface {
	ShouldRetry(err error, attempt int) bool
}

// ConditionFunc adapts a function to RetryCondition.
type ConditionFunc func(err error, attempt int) bool

// ShouldRetry implements RetryCondition.
func (f ConditionFunc) ShouldRetry(err error, attempt int) bool {
	return f(err, attempt)
}

// AlwaysRetry retries every error except context cancellation.
func AlwaysRetry() RetryCondition {
	return ConditionFunc(func(err error, _ int) bool {
		return err != nil && !errors.Is(err, context.Canceled)
	})
}
