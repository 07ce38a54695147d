package component

import (
	"go.opentelemetry.io/otel/metric"
)

// MetricsProvider is implemented by components that export metrics.
// Group calls RegisterMetrics after Init when IsMetricsEnabled is true.
type MetricsProvider interface {
	// MetricsName is the meter name, e.g. "eureka".
	MetricsName() string
	RegisterMetrics(meter metric.Meter) error
	IsMetricsEnabled() bool
}
