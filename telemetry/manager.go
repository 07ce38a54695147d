package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/KOMKZ/go-yogan-eureka/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

// Manager 持有 SDK provider；Start 后注册为全局 provider
type Manager struct {
	config Config
	logger *logger.CtxZapLogger
	writer io.Writer

	mu             sync.Mutex
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
}

// ManagerOption Manager 可选配置
type ManagerOption func(*Manager)

// WithWriter redirects the stdout exporters, e.g. to a buffer in tests.
func WithWriter(w io.Writer) ManagerOption {
	return func(m *Manager) {
		m.writer = w
	}
}

// NewManager creates a manager; nothing is exported until Start.
func NewManager(cfg Config, opts ...ManagerOption) *Manager {
	m := &Manager{
		config: cfg,
		logger: logger.GetLogger("telemetry"),
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start 创建 TracerProvider（以及启用时的 MeterProvider）并注册为全局
func (m *Manager) Start(ctx context.Context) error {
	if !m.config.Enabled {
		m.logger.DebugCtx(ctx, "telemetry disabled")
		return nil
	}

	res, err := newResource(ctx, m.config)
	if err != nil {
		return fmt.Errorf("create telemetry resource: %w", err)
	}

	spanExporter, err := m.newSpanExporter()
	if err != nil {
		return err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(newSampler(m.config.Sampler)),
		sdktrace.WithBatcher(spanExporter),
	)

	var mp *sdkmetric.MeterProvider
	if m.config.Metrics.Enabled {
		metricExporter, err := m.newMetricExporter()
		if err != nil {
			_ = tp.Shutdown(ctx)
			return err
		}
		mp = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter,
				sdkmetric.WithInterval(m.config.Metrics.ExportInterval))),
		)
	}

	m.mu.Lock()
	m.tracerProvider = tp
	m.meterProvider = mp
	m.mu.Unlock()

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	if mp != nil {
		otel.SetMeterProvider(mp)
	}

	m.logger.InfoCtx(ctx, "telemetry started",
		zap.String("service_name", m.config.ServiceName),
		zap.String("exporter", m.config.Exporter),
		zap.Bool("metrics", mp != nil))
	return nil
}

func (m *Manager) newSpanExporter() (sdktrace.SpanExporter, error) {
	switch m.config.Exporter {
	case ExporterNoop:
		return stdouttrace.New(stdouttrace.WithWriter(io.Discard))
	case ExporterStdout, "":
		opts := []stdouttrace.Option{stdouttrace.WithWriter(m.writer)}
		if m.config.PrettyPrint {
			opts = append(opts, stdouttrace.WithPrettyPrint())
		}
		return stdouttrace.New(opts...)
	}
	return nil, fmt.Errorf("unsupported exporter type: %s", m.config.Exporter)
}

func (m *Manager) newMetricExporter() (sdkmetric.Exporter, error) {
	w := m.writer
	if m.config.Exporter == ExporterNoop {
		w = io.Discard
	}
	opts := []stdoutmetric.Option{stdoutmetric.WithWriter(w)}
	if m.config.PrettyPrint {
		opts = append(opts, stdoutmetric.WithPrettyPrint())
	}
	return stdoutmetric.New(opts...)
}

func newSampler(cfg SamplerConfig) sdktrace.Sampler {
	switch cfg.Type {
	case SamplerAlwaysOn:
		return sdktrace.AlwaysSample()
	case SamplerAlwaysOff:
		return sdktrace.NeverSample()
	case SamplerTraceIDRatio:
		return sdktrace.TraceIDRatioBased(cfg.Ratio)
	default:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
}

// MeterProvider returns the SDK meter provider, or the global one when
// metrics export is off.
func (m *Manager) MeterProvider() metric.MeterProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.meterProvider == nil {
		return otel.GetMeterProvider()
	}
	return m.meterProvider
}

// Shutdown 刷新并关闭 provider；可重复调用
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	tp, mp := m.tracerProvider, m.meterProvider
	m.tracerProvider, m.meterProvider = nil, nil
	m.mu.Unlock()

	var errs []error
	if tp != nil {
		if err := tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	if mp != nil {
		if err := mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

// IsEnabled reports telemetry.enabled.
func (m *Manager) IsEnabled() bool {
	return m.config.Enabled
}
