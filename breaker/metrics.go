package breaker

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics 熔断器指标；nil 接收者上的记录方法均为空操作
type Metrics struct {
	requests     metric.Int64Counter
	transitions  metric.Int64Counter
	state        metric.Int64ObservableGauge
	registration metric.Registration
}

// NewMetrics creates the instruments on meter. states is observed as the
// current state per resource (0=closed, 1=open, 2=half_open).
func NewMetrics(meter metric.Meter, states func() map[string]State) (*Metrics, error) {
	requests, err := meter.Int64Counter(
		"breaker_requests_total",
		metric.WithDescription("经过熔断器的请求总数"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	transitions, err := meter.Int64Counter(
		"breaker_state_changes_total",
		metric.WithDescription("熔断器状态切换次数"),
		metric.WithUnit("{change}"),
	)
	if err != nil {
		return nil, err
	}

	m := &Metrics{requests: requests, transitions: transitions}

	m.state, err = meter.Int64ObservableGauge(
		"breaker_state",
		metric.WithDescription("熔断器当前状态 (0=closed, 1=open, 2=half_open)"),
	)
	if err != nil {
		return nil, err
	}
	m.registration, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for resource, s := range states() {
			o.ObserveInt64(m.state, int64(s), metric.WithAttributes(attribute.String("resource", resource)))
		}
		return nil
	}, m.state)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// RecordRequest counts one request; result is success, failure or rejected.
func (m *Metrics) RecordRequest(ctx context.Context, resource, result string) {
	if m == nil {
		return
	}
	m.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("resource", resource),
		attribute.String("result", result),
	))
}

// RecordTransition counts one state change.
func (m *Metrics) RecordTransition(ctx context.Context, resource string, from, to State) {
	if m == nil {
		return
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("resource", resource),
		attribute.String("from", from.String()),
		attribute.String("to", to.String()),
	))
}

// Close unregisters the gauge callback.
func (m *Metrics) Close() error {
	if m == nil || m.registration == nil {
		return nil
	}
	return m.registration.Unregister()
}
