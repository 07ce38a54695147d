package sidecar

import (
	"time"

	"github.com/KOMKZ/go-yogan-eureka/middleware"
	"github.com/KOMKZ/go-yogan-eureka/validator"
	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config sidecar 配置段
//
//	sidecar:
//	  port: 8081
//	  mode: release
//	  skip_log_paths: [/health]
type Config struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"` // 0 表示随机端口
	Mode            string        `mapstructure:"mode"` // gin 模式：debug / release / test
	HealthTimeout   time.Duration `mapstructure:"health_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	SkipLogPaths    []string      `mapstructure:"skip_log_paths"`
	EnableMetrics   bool          `mapstructure:"enable_metrics"`

	RateLimit middleware.RateLimitConfig `mapstructure:"rate_limit"`
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		Port:            8081,
		Mode:            gin.ReleaseMode,
		HealthTimeout:   5 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		SkipLogPaths:    []string{"/health"},
		EnableMetrics:   true,
		RateLimit:       middleware.DefaultRateLimitConfig(),
	}
}

// Validate implements validation.Validatable.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Port, validation.Min(0), validation.Max(65535)),
		validation.Field(&c.Mode, validation.Required, validation.In(gin.DebugMode, gin.ReleaseMode, gin.TestMode)),
		validation.Field(&c.HealthTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.ShutdownTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.RateLimit),
	)
}

// ValidateConfig converts field errors into a LayeredError.
func ValidateConfig(c Config) error {
	return validator.Validate(c)
}
