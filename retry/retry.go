package retry

import (
	"context"
	"errors"
	"time"
)

// Do runs operation until it succeeds or retries are exhausted.
func Do(ctx context.Context, operation func() error, opts ...Option) error {
	_, err := DoWithData(ctx, func() (struct{}, error) {
		return struct{}{}, operation()
	}, opts...)
	return err
}

// DoWithData is Do for operations that return data.
//
// With a bounded attempt count every failure is kept in the returned
// MultiError. In Forever mode only the last failure is kept, and the loop
// ends when ctx is done.
func DoWithData[T any](ctx context.Context, operation func() (T, error), opts ...Option) (T, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	forever := cfg.maxAttempts <= 0

	var (
		result T
		errs   []error
	)
	fail := func(attempts int) (T, error) {
		return result, &MultiError{Errors: errs, Attempts: attempts}
	}

	for attempt := 1; forever || attempt <= cfg.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		var err error
		result, err = operation()
		if err == nil {
			return result, nil
		}

		if forever {
			errs = []error{err}
		} else {
			errs = append(errs, err)
		}

		if !cfg.condition.ShouldRetry(err, attempt) {
			return fail(attempt)
		}
		if !forever && attempt == cfg.maxAttempts {
			return fail(attempt)
		}

		if cfg.onRetry != nil {
			cfg.onRetry(attempt, err)
		}

		wait := cfg.backoff.Next(attempt)
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < wait {
			errs = append(errs, context.DeadlineExceeded)
			return fail(attempt)
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return result, ctx.Err()
		}
	}

	return fail(cfg.maxAttempts)
}

// GetAttempts returns how many attempts a failed Do made.
func GetAttempts(err error) int {
	var me *MultiError
	if errors.As(err, &me) {
		return me.Attempts
	}
	return 0
}
