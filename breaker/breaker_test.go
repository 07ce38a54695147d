package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/KOMKZ/go-yogan-eureka/errcode"
	"github.com/KOMKZ/go-yogan-eureka/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

var errBoom = errors.New("boom")

type fakeClock struct{ t time.Time }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func succeed(context.Context) error { return nil }
func fail(context.Context) error    { return errBoom }

func consecutiveConfig(failures, halfOpen int) Config {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Default.Strategy = StrategyConsecutiveFailures
	cfg.Default.ConsecutiveFailures = failures
	cfg.Default.HalfOpenRequests = halfOpen
	cfg.Default.Timeout = 10 * time.Second
	return cfg
}

func newTestBreaker(t *testing.T, cfg Config) (*Breaker, *fakeClock, *logger.TestCtxLogger) {
	t.Helper()
	clock := newFakeClock()
	log := logger.NewTestCtxLogger()
	b, err := New(cfg, WithClock(clock.now), WithLogger(log))
	require.NoError(t, err)
	return b, clock, log
}

func TestBreaker_DisabledPassesThrough(t *testing.T) {
	b, err := New(DefaultConfig())
	require.NoError(t, err)
	assert.False(t, b.Enabled())

	for i := 0; i < 50; i++ {
		assert.ErrorIs(t, b.Execute(context.Background(), "orders", fail), errBoom)
	}
	assert.Equal(t, StateClosed, b.State("orders"))
	assert.Empty(t, b.States())

	var nilBreaker *Breaker
	called := false
	require.NoError(t, nilBreaker.Execute(context.Background(), "orders", func(context.Context) error {
		called = true
		return nil
	}))
	assert.True(t, called)
	assert.NoError(t, nilBreaker.Close())
}

func TestBreaker_ConsecutiveFailuresLifecycle(t *testing.T) {
	b, clock, log := newTestBreaker(t, consecutiveConfig(3, 2))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, b.Execute(ctx, "orders", fail), errBoom)
	}
	assert.Equal(t, StateOpen, b.State("orders"))
	assert.True(t, log.HasLogWithField("WARN", "circuit breaker opened", "resource", "orders"))

	called := false
	err := b.Execute(ctx, "orders", func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	// 其他资源不受影响
	require.NoError(t, b.Execute(ctx, "billing", succeed))
	assert.Equal(t, StateClosed, b.State("billing"))

	clock.advance(10 * time.Second)
	require.NoError(t, b.Execute(ctx, "orders", succeed))
	assert.Equal(t, StateHalfOpen, b.State("orders"))
	require.NoError(t, b.Execute(ctx, "orders", succeed))
	assert.Equal(t, StateClosed, b.State("orders"))
	assert.True(t, log.HasLogWithField("INFO", "circuit breaker state changed", "to", "closed"))
	assert.Equal(t, int64(0), b.Snapshot("orders").Requests)
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, clock, _ := newTestBreaker(t, consecutiveConfig(1, 1))
	ctx := context.Background()

	require.Error(t, b.Execute(ctx, "orders", fail))
	assert.Equal(t, StateOpen, b.State("orders"))

	clock.advance(5 * time.Second)
	assert.ErrorIs(t, b.Execute(ctx, "orders", succeed), ErrCircuitOpen)

	clock.advance(5 * time.Second)
	assert.ErrorIs(t, b.Execute(ctx, "orders", fail), errBoom)
	assert.Equal(t, StateOpen, b.State("orders"))
	assert.ErrorIs(t, b.Execute(ctx, "orders", succeed), ErrCircuitOpen)
}

func TestBreaker_HalfOpenLimitsRequests(t *testing.T) {
	b, clock, _ := newTestBreaker(t, consecutiveConfig(1, 1))
	ctx := context.Background()

	require.Error(t, b.Execute(ctx, "orders", fail))
	clock.advance(10 * time.Second)

	var nested error
	require.NoError(t, b.Execute(ctx, "orders", func(ctx context.Context) error {
		nested = b.Execute(ctx, "orders", succeed)
		return nil
	}))
	assert.ErrorIs(t, nested, ErrCircuitOpen)
	assert.Equal(t, StateClosed, b.State("orders"))
}

func TestBreaker_ErrorRate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Default.MinRequests = 4
	cfg.Default.ErrorRateThreshold = 0.5
	b, _, _ := newTestBreaker(t, cfg)
	ctx := context.Background()

	require.Error(t, b.Execute(ctx, "orders", fail))
	require.NoError(t, b.Execute(ctx, "orders", succeed))
	require.NoError(t, b.Execute(ctx, "orders", succeed))

	snap := b.Snapshot("orders")
	assert.Equal(t, int64(3), snap.Requests)
	assert.Equal(t, int64(1), snap.Failures)
	assert.Equal(t, StateClosed, snap.State)

	require.Error(t, b.Execute(ctx, "orders", fail))
	assert.Equal(t, StateOpen, b.State("orders"))
	assert.InDelta(t, 0.5, b.Snapshot("orders").ErrorRate, 0.0001)
}

func TestBreaker_WindowExpires(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Default.MinRequests = 2
	cfg.Default.ErrorRateThreshold = 0.5
	b, clock, _ := newTestBreaker(t, cfg)
	ctx := context.Background()

	require.Error(t, b.Execute(ctx, "orders", fail))
	clock.advance(11 * time.Second)
	require.Error(t, b.Execute(ctx, "orders", fail))

	assert.Equal(t, int64(1), b.Snapshot("orders").Requests)
	assert.Equal(t, StateClosed, b.State("orders"))
}

func TestBreaker_SlowCallRate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Default.Strategy = StrategySlowCallRate
	cfg.Default.MinRequests = 2
	cfg.Default.SlowCallThreshold = 100 * time.Millisecond
	cfg.Default.SlowRateThreshold = 0.5
	b, clock, _ := newTestBreaker(t, cfg)
	ctx := context.Background()

	slow := func(context.Context) error {
		clock.advance(200 * time.Millisecond)
		return nil
	}
	require.NoError(t, b.Execute(ctx, "orders", slow))
	assert.Equal(t, StateClosed, b.State("orders"))
	require.NoError(t, b.Execute(ctx, "orders", slow))
	assert.Equal(t, StateOpen, b.State("orders"))
}

func TestBreaker_CancelledCallsAreNotCounted(t *testing.T) {
	b, _, _ := newTestBreaker(t, consecutiveConfig(1, 1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Execute(ctx, "orders", func(ctx context.Context) error { return ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, b.State("orders"))
	assert.Equal(t, int64(0), b.Snapshot("orders").Requests)
}

func TestBreaker_ResourceOverride(t *testing.T) {
	cfg := consecutiveConfig(3, 1)
	cfg.Resources = map[string]ResourceConfig{"billing": {ConsecutiveFailures: 1}}
	b, _, _ := newTestBreaker(t, cfg)
	ctx := context.Background()

	require.Error(t, b.Execute(ctx, "billing", fail))
	require.Error(t, b.Execute(ctx, "orders", fail))
	assert.Equal(t, StateOpen, b.State("billing"))
	assert.Equal(t, StateClosed, b.State("orders"))
	assert.Equal(t, map[string]State{"billing": StateOpen, "orders": StateClosed}, b.States())
}

func TestBreaker_Reset(t *testing.T) {
	b, _, log := newTestBreaker(t, consecutiveConfig(1, 1))
	ctx := context.Background()

	require.Error(t, b.Execute(ctx, "orders", fail))
	b.Reset("orders")
	b.Reset("unknown")
	assert.Equal(t, StateClosed, b.State("orders"))
	assert.True(t, log.HasLogWithField("INFO", "circuit breaker state changed", "reason", "manual reset"))
	require.NoError(t, b.Execute(ctx, "orders", succeed))
}

func TestBreaker_OpenErrorCarriesResource(t *testing.T) {
	b, _, _ := newTestBreaker(t, consecutiveConfig(1, 1))
	ctx := context.Background()

	require.Error(t, b.Execute(ctx, "orders", fail))
	err := b.Execute(ctx, "orders", succeed)

	le, ok := errcode.As(err)
	require.True(t, ok)
	assert.Equal(t, 610001, le.Code())
	assert.Equal(t, "orders", le.Data()["resource"])
	assert.Contains(t, err.Error(), "circuit open for orders")
}

func TestBreaker_Metrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	b, _, _ := newTestBreaker(t, consecutiveConfig(1, 1))
	require.NoError(t, b.UseMeter(provider.Meter("breaker")))
	defer b.Close()
	ctx := context.Background()

	require.NoError(t, b.Execute(ctx, "orders", succeed))
	require.Error(t, b.Execute(ctx, "orders", fail))
	require.Error(t, b.Execute(ctx, "orders", succeed))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	results := map[string]int64{}
	var state int64 = -1
	var changes int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch m.Name {
			case "breaker_requests_total":
				for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
					r, _ := dp.Attributes.Value("result")
					results[r.AsString()] += dp.Value
				}
			case "breaker_state_changes_total":
				for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
					changes += dp.Value
				}
			case "breaker_state":
				for _, dp := range m.Data.(metricdata.Gauge[int64]).DataPoints {
					state = dp.Value
				}
			}
		}
	}
	assert.Equal(t, map[string]int64{ResultSuccess: 1, ResultFailure: 1, ResultRejected: 1}, results)
	assert.Equal(t, int64(1), changes)
	assert.Equal(t, int64(StateOpen), state)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half_open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
