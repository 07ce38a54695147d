// Package breaker 按资源（下游 app）维护的熔断器
//
// 未启用时 Execute 直接透传。每个资源独立的状态机：
// Closed 按策略统计失败，达到阈值进入 Open；Open 持续 Timeout 后进入
// HalfOpen，放行 HalfOpenRequests 个探测请求，全部成功则恢复 Closed。
package breaker

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/KOMKZ/go-yogan-eureka/errcode"
	"github.com/KOMKZ/go-yogan-eureka/logger"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Module Code: 61 (breaker)
const moduleCodeBreaker = 61

var (
	// ErrCircuitOpen 熔断中，请求未发出
	ErrCircuitOpen = errcode.Register(errcode.New(
		moduleCodeBreaker, 1, "breaker", "breaker.circuit_open", "circuit breaker is open", http.StatusServiceUnavailable,
	))

	// ErrInvalidConfig 熔断配置校验失败
	ErrInvalidConfig = errcode.Register(errcode.New(
		moduleCodeBreaker, 2, "breaker", "breaker.invalid_config", "invalid breaker configuration", http.StatusBadRequest,
	))
)

// Request results.
const (
	ResultSuccess  = "success"
	ResultFailure  = "failure"
	ResultRejected = "rejected"
)

// Option Breaker 可选配置
type Option func(*Breaker)

// WithLogger sets the logger; default logger.GetLogger("breaker").
func WithLogger(l logger.CtxLogger) Option {
	return func(b *Breaker) {
		b.logger = l
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		b.now = now
	}
}

// Breaker 熔断器管理：按资源懒创建状态机
type Breaker struct {
	cfg     Config
	logger  logger.CtxLogger
	metrics *Metrics
	now     func() time.Time

	mu       sync.RWMutex
	circuits map[string]*circuit
}

// New validates cfg and creates the breaker.
func New(cfg Config, opts ...Option) (*Breaker, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	b := &Breaker{
		cfg:      cfg,
		now:      time.Now,
		circuits: make(map[string]*circuit),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = logger.GetLogger("breaker")
	}
	return b, nil
}

// Enabled reports whether calls are guarded. A nil breaker is disabled.
func (b *Breaker) Enabled() bool {
	return b != nil && b.cfg.Enabled
}

// UseMeter creates the breaker instruments on meter.
func (b *Breaker) UseMeter(meter metric.Meter) error {
	m, err := NewMetrics(meter, b.States)
	if err != nil {
		return err
	}
	b.metrics = m
	return nil
}

// Execute runs fn guarded by the circuit of resource. When the circuit is
// open fn is not called and ErrCircuitOpen is returned. A non-nil error from
// fn counts as a failure unless ctx was cancelled by the caller.
func (b *Breaker) Execute(ctx context.Context, resource string, fn func(ctx context.Context) error) error {
	if !b.Enabled() {
		return fn(ctx)
	}

	c := b.circuit(resource)
	ok, tr := c.allow(b.now())
	b.observe(ctx, resource, tr)
	if !ok {
		b.metrics.RecordRequest(ctx, resource, ResultRejected)
		return ErrCircuitOpen.
			WithMsgf("circuit open for %s", resource).
			WithData("resource", resource)
	}

	start := b.now()
	err := fn(ctx)
	end := b.now()

	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		// 调用方取消，不计入统计；半开探测名额归还
		c.release()
		return err
	}

	failed := err != nil
	slow := c.cfg.SlowCallThreshold > 0 && end.Sub(start) >= c.cfg.SlowCallThreshold
	b.observe(ctx, resource, c.record(end, failed, slow))

	result := ResultSuccess
	if failed {
		result = ResultFailure
	}
	b.metrics.RecordRequest(ctx, resource, result)
	return err
}

// State returns the state of resource; unknown resources are closed.
func (b *Breaker) State(resource string) State {
	if c := b.lookup(resource); c != nil {
		return c.currentState()
	}
	return StateClosed
}

// States returns the state of every resource seen so far.
func (b *Breaker) States() map[string]State {
	if b == nil {
		return map[string]State{}
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]State, len(b.circuits))
	for name, c := range b.circuits {
		out[name] = c.currentState()
	}
	return out
}

// Snapshot returns the window statistics of resource.
func (b *Breaker) Snapshot(resource string) Snapshot {
	if c := b.lookup(resource); c != nil {
		return c.snapshot(b.now())
	}
	return Snapshot{Resource: resource, State: StateClosed}
}

// Reset closes the circuit of resource and clears its statistics.
func (b *Breaker) Reset(resource string) {
	if c := b.lookup(resource); c != nil {
		b.observe(context.Background(), resource, c.reset(b.now()))
	}
}

// Close releases the metric callback.
func (b *Breaker) Close() error {
	if b == nil {
		return nil
	}
	return b.metrics.Close()
}

func (b *Breaker) lookup(resource string) *circuit {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.circuits[resource]
}

func (b *Breaker) circuit(resource string) *circuit {
	if c := b.lookup(resource); c != nil {
		return c
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.circuits[resource]; ok {
		return c
	}
	c := newCircuit(resource, b.cfg.ForResource(resource), b.now())
	b.circuits[resource] = c
	return c
}

func (b *Breaker) observe(ctx context.Context, resource string, tr *transition) {
	if tr == nil {
		return
	}
	b.metrics.RecordTransition(ctx, resource, tr.from, tr.to)
	fields := []zap.Field{
		zap.String("resource", resource),
		zap.String("from", tr.from.String()),
		zap.String("to", tr.to.String()),
		zap.String("reason", tr.reason),
	}
	if tr.to == StateOpen {
		b.logger.WarnCtx(ctx, "circuit breaker opened", fields...)
		return
	}
	b.logger.InfoCtx(ctx, "circuit breaker state changed", fields...)
}
