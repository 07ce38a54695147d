package retry

import (
	"time"
)

// Config 重试配置
type Config struct {
	maxAttempts int             // 最大尝试次数，<=0 表示无限重试
	backoff     BackoffStrategy // 退避策略（默认固定 1s）
	condition   RetryCondition  // 重试条件（默认所有错误都重试）
	onRetry     func(attempt int, err error)
}

func defaultConfig() *Config {
	return &Config{
		maxAttempts: 3,
		backoff:     FixedDelay(time.Second),
		condition:   AlwaysRetry(),
	}
}

// Option 配置选项函数
type Option func(*Config)

// MaxAttempts sets the attempt limit; non-positive values are ignored.
func MaxAttempts(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// Forever retries until success, a non-retryable error or ctx cancellation.
func Forever() Option {
	return func(c *Config) {
		c.maxAttempts = 0
	}
}

// Backoff sets the delay strategy.
func Backoff(b BackoffStrategy) Option {
	return func(c *Config) {
		if b != nil {
			c.backoff = b
		}
	}
}

// Condition sets the retry condition.
func Condition(cond RetryCondition) Option {
	return func(c *Config) {
		if cond != nil {
			c.condition = cond
		}
	}
}

// OnRetry is called after a failed attempt, before waiting.
func OnRetry(f func(attempt int, err error)) Option {
	return func(c *Config) {
		c.onRetry = f
	}
}
