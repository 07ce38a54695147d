package breaker

import (
	"sync"
	"time"
)

// State 熔断器状态
type State int

const (
	// StateClosed 正常放行
	StateClosed State = iota
	// StateOpen 熔断，拒绝所有请求
	StateOpen
	// StateHalfOpen 放行有限的探测请求
	StateHalfOpen
)

// String 状态名称
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// transition 一次状态切换，在锁外记录日志与指标
type transition struct {
	from, to State
	reason   string
}

// circuit 单个资源的状态机
type circuit struct {
	resource string
	cfg      ResourceConfig
	strategy Strategy

	mu                sync.Mutex
	state             State
	changedAt         time.Time
	consecutive       int
	halfOpenAdmitted  int
	halfOpenSucceeded int
	window            *window
}

func newCircuit(resource string, cfg ResourceConfig, now time.Time) *circuit {
	return &circuit{
		resource:  resource,
		cfg:       cfg,
		strategy:  StrategyByName(cfg.Strategy),
		state:     StateClosed,
		changedAt: now,
		window:    newWindow(cfg.WindowSize, cfg.BucketSize),
	}
}

// allow 判断请求能否放行；Open 超时后转为 HalfOpen
func (c *circuit) allow(now time.Time) (bool, *transition) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateClosed:
		return true, nil
	case StateOpen:
		if now.Sub(c.changedAt) < c.cfg.Timeout {
			return false, nil
		}
		tr := c.transitionTo(StateHalfOpen, now, "timeout expired")
		c.halfOpenAdmitted = 1
		return true, tr
	case StateHalfOpen:
		if c.halfOpenAdmitted < c.cfg.HalfOpenRequests {
			c.halfOpenAdmitted++
			return true, nil
		}
		return false, nil
	default:
		return false, nil
	}
}

// record 记录一次调用结果，必要时切换状态
func (c *circuit) record(now time.Time, failed, slow bool) *transition {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.window.record(now, failed, slow)
	if failed {
		c.consecutive++
	} else {
		c.consecutive = 0
	}

	switch c.state {
	case StateClosed:
		if c.strategy.ShouldOpen(c.snapshotLocked(now), c.cfg) {
			return c.transitionTo(StateOpen, now, c.strategy.Name()+" threshold exceeded")
		}
	case StateHalfOpen:
		if failed {
			return c.transitionTo(StateOpen, now, "half-open request failed")
		}
		c.halfOpenSucceeded++
		if c.halfOpenSucceeded >= c.cfg.HalfOpenRequests {
			c.window.reset()
			c.consecutive = 0
			return c.transitionTo(StateClosed, now, "half-open requests succeeded")
		}
	}
	// Open：熔断前已放行的请求，只计入窗口
	return nil
}

// release 归还一个未计数的半开探测名额
func (c *circuit) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateHalfOpen && c.halfOpenAdmitted > 0 {
		c.halfOpenAdmitted--
	}
}

func (c *circuit) reset(now time.Time) *transition {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.window.reset()
	c.consecutive = 0
	if c.state == StateClosed {
		return nil
	}
	return c.transitionTo(StateClosed, now, "manual reset")
}

func (c *circuit) currentState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *circuit) snapshot(now time.Time) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked(now)
}

func (c *circuit) snapshotLocked(now time.Time) Snapshot {
	s := c.window.snapshot(now)
	s.Resource = c.resource
	s.State = c.state
	s.ConsecutiveFailures = c.consecutive
	return s
}

// transitionTo 调用方持有锁
func (c *circuit) transitionTo(to State, now time.Time, reason string) *transition {
	tr := &transition{from: c.state, to: to, reason: reason}
	c.state = to
	c.changedAt = now
	c.halfOpenAdmitted = 0
	c.halfOpenSucceeded = 0
	return tr
}
