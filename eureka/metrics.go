package eureka

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric result values.
const (
	resultSuccess  = "success"
	resultNotFound = "not_found"
	resultFailure  = "failure"
)

// Metrics eureka 客户端指标收集器；nil 接收者上的记录方法均为空操作
type Metrics struct {
	heartbeats      metric.Int64Counter // 心跳次数
	reregistrations metric.Int64Counter // 重新注册次数
	refreshes       metric.Int64Counter // 注册表刷新次数
	instances       metric.Int64ObservableGauge
	registration    metric.Registration
}

// NewMetrics creates the instruments on meter. instances, when non-nil, is
// observed as the size of the cached registry.
func NewMetrics(meter metric.Meter, instances func() int) (*Metrics, error) {
	heartbeats, err := meter.Int64Counter(
		"eureka_heartbeats_total",
		metric.WithDescription("Eureka 心跳总数"),
		metric.WithUnit("{heartbeat}"),
	)
	if err != nil {
		return nil, err
	}

	reregistrations, err := meter.Int64Counter(
		"eureka_reregistrations_total",
		metric.WithDescription("心跳失败后的重新注册总数"),
		metric.WithUnit("{registration}"),
	)
	if err != nil {
		return nil, err
	}

	refreshes, err := meter.Int64Counter(
		"eureka_registry_refreshes_total",
		metric.WithDescription("注册表刷新总数"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return nil, err
	}

	m := &Metrics{
		heartbeats:      heartbeats,
		reregistrations: reregistrations,
		refreshes:       refreshes,
	}

	if instances != nil {
		m.instances, err = meter.Int64ObservableGauge(
			"eureka_registry_instances",
			metric.WithDescription("本地缓存的实例数"),
			metric.WithUnit("{instance}"),
		)
		if err != nil {
			return nil, err
		}
		m.registration, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
			o.ObserveInt64(m.instances, int64(instances()))
			return nil
		}, m.instances)
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordHeartbeat counts one heartbeat by outcome.
func (m *Metrics) RecordHeartbeat(ctx context.Context, err error) {
	if m == nil {
		return
	}
	m.heartbeats.Add(ctx, 1, metric.WithAttributes(attribute.String("result", resultOf(err))))
}

// RecordReregistration counts one re-registration attempt by outcome.
func (m *Metrics) RecordReregistration(ctx context.Context, err error) {
	if m == nil {
		return
	}
	m.reregistrations.Add(ctx, 1, metric.WithAttributes(attribute.String("result", resultOf(err))))
}

// RecordRefresh counts one registry refresh by outcome.
func (m *Metrics) RecordRefresh(ctx context.Context, err error) {
	if m == nil {
		return
	}
	m.refreshes.Add(ctx, 1, metric.WithAttributes(attribute.String("result", resultOf(err))))
}

// Close unregisters the gauge callback.
func (m *Metrics) Close() error {
	if m == nil || m.registration == nil {
		return nil
	}
	return m.registration.Unregister()
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return resultSuccess
	case errors.Is(err, ErrUnexpectedState):
		return resultNotFound
	default:
		return resultFailure
	}
}
