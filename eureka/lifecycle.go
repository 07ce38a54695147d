package eureka

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KOMKZ/go-yogan-eureka/logger"
	"github.com/KOMKZ/go-yogan-eureka/retry"
	"go.uber.org/zap"
)

// LifecycleState 实例注册生命周期状态
type LifecycleState int32

const (
	StateNotRegistered LifecycleState = iota
	StateRegistering
	StateUp
	StateHeartbeatFailing
	StateReRegistering
	StateDeregistered
)

func (s LifecycleState) String() string {
	switch s {
	case StateNotRegistered:
		return "NotRegistered"
	case StateRegistering:
		return "Registering"
	case StateUp:
		return "Up"
	case StateHeartbeatFailing:
		return "HeartbeatFailing"
	case StateReRegistering:
		return "ReRegistering"
	case StateDeregistered:
		return "Deregistered"
	}
	return "Unknown"
}

// lifecycleEvent drives nextState.
type lifecycleEvent int

const (
	eventStart            lifecycleEvent = iota // Start 被调用
	eventUp                                     // register + setStatus(UP) 均成功
	eventHeartbeatOK                            // 心跳成功
	eventHeartbeatFailed                        // 心跳失败（含 404）
	eventReRegister                             // 开始重新注册
	eventReRegisterFailed                       // register 或 setStatus 失败
	eventStop                                   // Stop 被调用
)

// nextState is the single transition function of the lifecycle. ok is false
// when event is not accepted in state; the state is then left unchanged.
func nextState(state LifecycleState, event lifecycleEvent) (LifecycleState, bool) {
	if event == eventStop {
		return StateDeregistered, true
	}
	switch state {
	case StateNotRegistered:
		if event == eventStart {
			return StateRegistering, true
		}
	case StateRegistering:
		if event == eventUp {
			return StateUp, true
		}
	case StateUp:
		switch event {
		case eventHeartbeatOK:
			return StateUp, true
		case eventHeartbeatFailed:
			return StateHeartbeatFailing, true
		}
	case StateHeartbeatFailing:
		switch event {
		case eventReRegister:
			return StateReRegistering, true
		case eventHeartbeatOK:
			return StateUp, true
		case eventHeartbeatFailed:
			return StateHeartbeatFailing, true
		}
	case StateReRegistering:
		switch event {
		case eventUp:
			return StateUp, true
		case eventReRegisterFailed:
			return StateHeartbeatFailing, true
		}
	}
	return state, false
}

// ManagerOption InstanceManager 可选配置
type ManagerOption func(*InstanceManager)

// WithLogger replaces the module logger.
func WithLogger(l logger.CtxLogger) ManagerOption {
	return func(m *InstanceManager) {
		m.logger = l
	}
}

// WithMetrics records heartbeat and re-registration outcomes.
func WithMetrics(metrics *Metrics) ManagerOption {
	return func(m *InstanceManager) {
		m.metrics = metrics
	}
}

// InstanceManager 独占一个实例的注册生命周期：注册、心跳、自愈重注册、注销
type InstanceManager struct {
	api      WireClient
	instance Instance
	app      string
	id       string // 构造时确定，之后不变

	heartbeatInterval time.Duration
	gracePeriod       time.Duration
	retryDelay        time.Duration
	stopTimeout       time.Duration

	logger  logger.CtxLogger
	metrics *Metrics

	started     atomic.Bool
	mu          sync.Mutex
	state       LifecycleState
	loop        *loopHandle
	cancelStart context.CancelFunc
}

// NewInstanceManager creates a manager for inst. The registry identity is
// resolved here, once: InstanceID when set, otherwise HostName.
func NewInstanceManager(api WireClient, inst *Instance, cfg Config, opts ...ManagerOption) *InstanceManager {
	m := &InstanceManager{
		api:               api,
		instance:          inst.Clone(),
		app:               inst.App,
		id:                inst.ID(),
		heartbeatInterval: cfg.HeartbeatInterval,
		gracePeriod:       cfg.HeartbeatGracePeriod,
		retryDelay:        cfg.RegisterRetryDelay,
		stopTimeout:       cfg.RequestTimeout * 3,
		logger:            logger.GetLogger("eureka"),
		state:             StateNotRegistered,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// App returns the registered app name.
func (m *InstanceManager) App() string {
	return m.app
}

// InstanceID returns the identity used for registry calls.
func (m *InstanceManager) InstanceID() string {
	return m.id
}

// Instance returns a copy of the registered instance.
func (m *InstanceManager) Instance() Instance {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.instance.Clone()
}

func (m *InstanceManager) current() *Instance {
	inst := m.Instance()
	return &inst
}

// State returns the current lifecycle state.
func (m *InstanceManager) State() LifecycleState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *InstanceManager) transition(ctx context.Context, event lifecycleEvent) {
	m.mu.Lock()
	from := m.state
	to, ok := nextState(from, event)
	m.state = to
	m.mu.Unlock()

	if ok && from != to {
		m.logger.DebugCtx(ctx, "lifecycle transition",
			zap.String("from", from.String()), zap.String("to", to.String()))
	}
}

// Start registers the instance and marks it UP. It blocks until the registry
// has accepted both, retrying every register_retry_delay; only ctx can abort
// the wait, and Stop cancels it. The heartbeat loop starts as soon as
// registration succeeds.
func (m *InstanceManager) Start(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted.WithMsgf("instance %s/%s already started", m.app, m.id)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.mu.Lock()
	if m.state == StateDeregistered {
		m.mu.Unlock()
		return ErrAlreadyStarted.WithMsgf("instance %s/%s already stopped", m.app, m.id)
	}
	m.cancelStart = cancel
	m.mu.Unlock()
	m.transition(ctx, eventStart)

	if err := m.retryForever(ctx, "register", func() error {
		return m.api.Register(ctx, m.app, m.current())
	}); err != nil {
		return err
	}
	m.logger.InfoCtx(ctx, "instance registered", zap.String("app", m.app), zap.String("instance_id", m.id))

	loop, err := startLoop("eureka-heartbeat", m.gracePeriod, m.heartbeatInterval, m.stopTimeout, m.heartbeatTick)
	if err != nil {
		return err
	}
	m.mu.Lock()
	if m.state == StateDeregistered {
		// Stop 在注册请求途中被调用，它看不到这次注册，由这里补发注销
		m.mu.Unlock()
		_ = loop.Stop()
		dctx, dcancel := context.WithTimeout(context.WithoutCancel(ctx), m.stopTimeout)
		defer dcancel()
		m.deregister(dctx)
		return context.Canceled
	}
	m.loop = loop
	m.mu.Unlock()

	if err := m.retryForever(ctx, "set status", func() error {
		return m.api.SetStatus(ctx, m.app, m.id, StatusUp)
	}); err != nil {
		return err
	}
	m.markUp()
	m.transition(ctx, eventUp)
	m.logger.InfoCtx(ctx, "instance status set to UP", zap.String("app", m.app), zap.String("instance_id", m.id))
	return nil
}

// markUp records UP locally and returns the status it replaced.
func (m *InstanceManager) markUp() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.instance.Status
	m.instance.Status = StatusUp
	return prev
}

func (m *InstanceManager) retryForever(ctx context.Context, op string, fn func() error) error {
	err := retry.Do(ctx, fn,
		retry.Forever(),
		retry.Backoff(retry.FixedDelay(m.retryDelay)),
		retry.Condition(retry.ConditionFunc(func(error, int) bool {
			// 请求超时照常重试，只有调用方 ctx 结束才放弃
			return ctx.Err() == nil
		})),
		retry.OnRetry(func(attempt int, err error) {
			m.logger.WarnCtx(ctx, op+" failed, retrying",
				zap.String("app", m.app),
				zap.String("instance_id", m.id),
				zap.Int("attempt", attempt),
				zap.Duration("delay", m.retryDelay),
				zap.Error(err))
		}),
	)
	if err != nil {
		m.logger.ErrorCtx(ctx, op+" abandoned", zap.String("app", m.app), zap.Error(err))
	}
	return err
}

// heartbeatTick runs once per heartbeat interval. Any heartbeat failure, the
// 404 "unexpected state" included, triggers one re-registration.
func (m *InstanceManager) heartbeatTick(ctx context.Context) {
	err := m.api.Heartbeat(ctx, m.app, m.id)
	m.metrics.RecordHeartbeat(ctx, err)
	if err == nil {
		m.transition(ctx, eventHeartbeatOK)
		return
	}

	if errors.Is(err, ErrUnexpectedState) {
		m.logger.WarnCtx(ctx, "heartbeat rejected, re-registering",
			zap.String("app", m.app), zap.String("instance_id", m.id), zap.Error(err))
	} else {
		m.logger.ErrorCtx(ctx, "heartbeat failed, re-registering",
			zap.String("app", m.app), zap.String("instance_id", m.id), zap.Error(err))
	}
	m.transition(ctx, eventHeartbeatFailed)
	m.reregister(ctx)
}

// reregister calls register and, only when that succeeds, setStatus(UP).
func (m *InstanceManager) reregister(ctx context.Context) {
	m.transition(ctx, eventReRegister)

	err := m.api.Register(ctx, m.app, m.current())
	if err == nil {
		err = m.api.SetStatus(ctx, m.app, m.id, StatusUp)
		if err != nil {
			m.logger.ErrorCtx(ctx, "re-registration: set status failed",
				zap.String("app", m.app), zap.String("instance_id", m.id), zap.Error(err))
		}
	} else {
		m.logger.ErrorCtx(ctx, "re-registration: register failed",
			zap.String("app", m.app), zap.String("instance_id", m.id), zap.Error(err))
	}
	m.metrics.RecordReregistration(ctx, err)

	if err != nil {
		m.transition(ctx, eventReRegisterFailed)
		return
	}
	if prev := m.markUp(); prev != StatusUp {
		m.logger.WarnCtx(ctx, "re-registration reset status to UP",
			zap.String("app", m.app), zap.String("instance_id", m.id), zap.String("previous", string(prev)))
	}
	m.transition(ctx, eventUp)
	m.logger.InfoCtx(ctx, "instance re-registered", zap.String("app", m.app), zap.String("instance_id", m.id))
}

// SetStatus overrides the registered status, e.g. OUT_OF_SERVICE for maintenance.
// The override lasts only until the next failed heartbeat: re-registration
// always ends with status UP.
func (m *InstanceManager) SetStatus(ctx context.Context, status Status) error {
	if err := m.api.SetStatus(ctx, m.app, m.id, status); err != nil {
		return err
	}
	m.mu.Lock()
	m.instance.Status = status
	m.mu.Unlock()
	return nil
}

// SetMetadata updates one metadata entry on the registry and locally.
func (m *InstanceManager) SetMetadata(ctx context.Context, key, value string) error {
	if err := m.api.SetMetadata(ctx, m.app, m.id, key, value); err != nil {
		return err
	}
	m.mu.Lock()
	if m.instance.Metadata == nil {
		m.instance.Metadata = Metadata{}
	}
	m.instance.Metadata[key] = value
	m.mu.Unlock()
	return nil
}

// Stop clears the running flag, stops the heartbeat loop and deregisters.
// A deregistration failure is logged and swallowed. Safe to call more than once.
func (m *InstanceManager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateDeregistered {
		m.mu.Unlock()
		return nil
	}
	registered := m.state != StateNotRegistered && m.state != StateRegistering
	loop := m.loop
	m.loop = nil
	m.state = StateDeregistered
	cancelStart := m.cancelStart
	m.mu.Unlock()

	if cancelStart != nil {
		cancelStart()
	}

	if loop != nil {
		if err := loop.Stop(); err != nil {
			m.logger.WarnCtx(ctx, "heartbeat loop stop", zap.Error(err))
		}
	}
	if !registered && loop == nil {
		return nil
	}

	m.deregister(ctx)
	return nil
}

// deregister is best effort: a failure only means the lease has to expire.
func (m *InstanceManager) deregister(ctx context.Context) {
	if err := m.api.Deregister(ctx, m.app, m.id); err != nil {
		m.logger.WarnCtx(ctx, "deregister failed, lease will expire",
			zap.String("app", m.app), zap.String("instance_id", m.id), zap.Error(err))
		return
	}
	m.logger.InfoCtx(ctx, "instance deregistered", zap.String("app", m.app), zap.String("instance_id", m.id))
}
