// Package telemetry 创建 OpenTelemetry TracerProvider 与 MeterProvider，
// 供 agent 进程注册为全局 provider
package telemetry

import (
	"time"

	"github.com/KOMKZ/go-yogan-eureka/validator"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Exporter types.
const (
	ExporterStdout = "stdout"
	ExporterNoop   = "noop"
)

// Sampler types.
const (
	SamplerAlwaysOn      = "always_on"
	SamplerAlwaysOff     = "always_off"
	SamplerTraceIDRatio  = "trace_id_ratio"
	SamplerParentBasedOn = "parent_based_always_on"
)

// Config telemetry 配置段
//
//	telemetry:
//	  enabled: true
//	  service_name: checkout-agent
//	  exporter: stdout
//	  metrics:
//	    enabled: true
//	    export_interval: 60s
type Config struct {
	Enabled        bool              `mapstructure:"enabled"`
	ServiceName    string            `mapstructure:"service_name"`
	ServiceVersion string            `mapstructure:"service_version"`
	Exporter       string            `mapstructure:"exporter"` // stdout / noop
	PrettyPrint    bool              `mapstructure:"pretty_print"`
	Sampler        SamplerConfig     `mapstructure:"sampler"`
	ResourceAttrs  map[string]string `mapstructure:"resource_attributes"`
	Metrics        MetricsConfig     `mapstructure:"metrics"`
}

// SamplerConfig 采样配置
type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Ratio float64 `mapstructure:"ratio"` // 仅 trace_id_ratio 使用
}

// MetricsConfig 指标导出配置
type MetricsConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	ExportInterval time.Duration `mapstructure:"export_interval"`
}

// DefaultConfig returns the defaults: telemetry off, stdout exporter when on.
func DefaultConfig() Config {
	return Config{
		Enabled:     false,
		ServiceName: "eureka-agent",
		Exporter:    ExporterStdout,
		Sampler:     SamplerConfig{Type: SamplerParentBasedOn, Ratio: 1},
		Metrics: MetricsConfig{
			Enabled:        true,
			ExportInterval: time.Minute,
		},
	}
}

// Validate implements validation.Validatable.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.ServiceName, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.Exporter, validation.In(ExporterStdout, ExporterNoop)),
		validation.Field(&c.Sampler),
		validation.Field(&c.Metrics),
	)
}

// Validate implements validation.Validatable.
func (c SamplerConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Type, validation.In(SamplerAlwaysOn, SamplerAlwaysOff, SamplerTraceIDRatio, SamplerParentBasedOn)),
		validation.Field(&c.Ratio, validation.Min(0.0), validation.Max(1.0)),
	)
}

// Validate implements validation.Validatable.
func (c MetricsConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.ExportInterval, validation.When(c.Enabled, validation.Required, validation.Min(time.Second))),
	)
}

// ValidateConfig converts field errors into a LayeredError.
func ValidateConfig(c Config) error {
	return validator.Validate(c)
}
