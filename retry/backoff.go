package retry

import (
	"time"
)

// BackoffStrategy returns the delay before retry number attempt (from 1).
type BackoffStrategy interface {
	Next(attempt int) time.Duration
}

type fixedDelay time.Duration

// FixedDelay waits the same delay before every retry.
func FixedDelay(delay time.Duration) BackoffStrategy {
	return fixedDelay(delay)
}

func (d fixedDelay) Next(attempt int) time.Duration {
	if attempt <= 0 || d < 0 {
		return 0
	}
	return time.Duration(d)
}
