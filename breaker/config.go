package breaker

import (
	"strings"
	"time"

	"github.com/KOMKZ/go-yogan-eureka/validator"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// 熔断策略
const (
	StrategyErrorRate           = "error_rate"
	StrategySlowCallRate        = "slow_call_rate"
	StrategyConsecutiveFailures = "consecutive_failures"
)

// Config 熔断器配置（对应 eureka.breaker 配置段）
type Config struct {
	// Enabled false 时直接透传
	Enabled bool `mapstructure:"enabled"`

	// Default 默认资源配置
	Default ResourceConfig `mapstructure:"default"`

	// Resources 资源级配置，未设置的字段取 Default
	Resources map[string]ResourceConfig `mapstructure:"resources"`
}

// ResourceConfig 单个资源（下游 app）的配置
type ResourceConfig struct {
	Strategy string `mapstructure:"strategy"`

	// MinRequests 窗口内最小请求数，避免小流量误判
	MinRequests int `mapstructure:"min_requests"`

	// ErrorRateThreshold 0.0-1.0
	ErrorRateThreshold float64 `mapstructure:"error_rate_threshold"`

	SlowCallThreshold time.Duration `mapstructure:"slow_call_threshold"`
	SlowRateThreshold float64       `mapstructure:"slow_rate_threshold"`

	ConsecutiveFailures int `mapstructure:"consecutive_failures"`

	// Timeout Open 状态持续时间，之后进入 HalfOpen
	Timeout time.Duration `mapstructure:"timeout"`

	// HalfOpenRequests 半开状态放行的探测请求数
	HalfOpenRequests int `mapstructure:"half_open_requests"`

	WindowSize time.Duration `mapstructure:"window_size"`
	BucketSize time.Duration `mapstructure:"bucket_size"`
}

// DefaultConfig 默认不启用
func DefaultConfig() Config {
	return Config{
		Enabled:   false,
		Default:   DefaultResourceConfig(),
		Resources: map[string]ResourceConfig{},
	}
}

// DefaultResourceConfig returns the per-resource defaults.
func DefaultResourceConfig() ResourceConfig {
	return ResourceConfig{
		Strategy:            StrategyErrorRate,
		MinRequests:         20,
		ErrorRateThreshold:  0.5,
		SlowCallThreshold:   time.Second,
		SlowRateThreshold:   0.5,
		ConsecutiveFailures: 5,
		Timeout:             30 * time.Second,
		HalfOpenRequests:    3,
		WindowSize:          10 * time.Second,
		BucketSize:          time.Second,
	}
}

// Merge 用 override 的非零字段覆盖 rc
func (rc ResourceConfig) Merge(override ResourceConfig) ResourceConfig {
	result := rc
	if override.Strategy != "" {
		result.Strategy = override.Strategy
	}
	if override.MinRequests > 0 {
		result.MinRequests = override.MinRequests
	}
	if override.ErrorRateThreshold > 0 {
		result.ErrorRateThreshold = override.ErrorRateThreshold
	}
	if override.SlowCallThreshold > 0 {
		result.SlowCallThreshold = override.SlowCallThreshold
	}
	if override.SlowRateThreshold > 0 {
		result.SlowRateThreshold = override.SlowRateThreshold
	}
	if override.ConsecutiveFailures > 0 {
		result.ConsecutiveFailures = override.ConsecutiveFailures
	}
	if override.Timeout > 0 {
		result.Timeout = override.Timeout
	}
	if override.HalfOpenRequests > 0 {
		result.HalfOpenRequests = override.HalfOpenRequests
	}
	if override.WindowSize > 0 {
		result.WindowSize = override.WindowSize
	}
	if override.BucketSize > 0 {
		result.BucketSize = override.BucketSize
	}
	return result
}

// Validate 校验资源配置
func (rc ResourceConfig) Validate() error {
	return validation.ValidateStruct(&rc,
		validation.Field(&rc.Strategy, validation.Required,
			validation.In(StrategyErrorRate, StrategySlowCallRate, StrategyConsecutiveFailures)),
		validation.Field(&rc.MinRequests, validation.Min(0)),
		validation.Field(&rc.ErrorRateThreshold, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&rc.SlowCallThreshold, validation.When(rc.Strategy == StrategySlowCallRate, validation.Required)),
		validation.Field(&rc.SlowRateThreshold, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&rc.ConsecutiveFailures, validation.When(rc.Strategy == StrategyConsecutiveFailures, validation.Required, validation.Min(1))),
		validation.Field(&rc.Timeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&rc.HalfOpenRequests, validation.Required, validation.Min(1)),
		validation.Field(&rc.BucketSize, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&rc.WindowSize, validation.Required, validation.Min(rc.BucketSize)),
	)
}

// Validate 未启用时不校验；资源配置先合并 Default 再校验
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	errs := validation.Errors{}
	if err := c.Default.Validate(); err != nil {
		errs["default"] = err
	}
	for name, rc := range c.Resources {
		if err := c.Default.Merge(rc).Validate(); err != nil {
			errs["resources."+name] = err
		}
	}
	return errs.Filter()
}

// ValidateConfig runs Validate and converts field errors into ErrInvalidConfig.
func ValidateConfig(c Config) error {
	return validator.ValidateAs(c, ErrInvalidConfig)
}

// ForResource returns the merged configuration of resource. Names match
// case-insensitively (viper lowercases map keys).
func (c Config) ForResource(resource string) ResourceConfig {
	if rc, ok := c.Resources[resource]; ok {
		return c.Default.Merge(rc)
	}
	for name, rc := range c.Resources {
		if strings.EqualFold(name, resource) {
			return c.Default.Merge(rc)
		}
	}
	return c.Default
}
