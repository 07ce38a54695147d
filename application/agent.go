// Package application 按依赖顺序运行一组组件，直到 ctx 结束或收到退出信号
package application

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/KOMKZ/go-yogan-eureka/component"
	"github.com/KOMKZ/go-yogan-eureka/logger"
	"github.com/KOMKZ/go-yogan-eureka/telemetry"
	"go.uber.org/zap"
)

// AppState 应用状态
type AppState int

const (
	StateInit AppState = iota
	StateSetup
	StateRunning
	StateStopping
	StateStopped
)

func (s AppState) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateSetup:
		return "Setup"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	}
	return "Unknown"
}

// DefaultShutdownTimeout bounds Stop of all components.
const DefaultShutdownTimeout = 30 * time.Second

// Agent 长驻进程：logger → telemetry → 组件组
//
//	agent := application.NewAgent(loader, ec, sidecar.NewComponent(ec))
//	return agent.Run(cmd.Context())
type Agent struct {
	loader     component.ConfigLoader
	components []component.Component
	logger     *logger.CtxZapLogger
	telemetry  *telemetry.Manager
	group      *component.Group

	shutdownTimeout time.Duration
	onReady         func(*Agent) error
	signals         []os.Signal

	mu    sync.RWMutex
	state AppState
}

// NewAgent creates an agent over comps; nothing runs until Setup.
func NewAgent(loader component.ConfigLoader, comps ...component.Component) *Agent {
	return &Agent{
		loader:          loader,
		components:      comps,
		shutdownTimeout: DefaultShutdownTimeout,
		signals:         []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		state:           StateInit,
	}
}

// WithShutdownTimeout sets the Stop budget (chained).
func (a *Agent) WithShutdownTimeout(d time.Duration) *Agent {
	if d > 0 {
		a.shutdownTimeout = d
	}
	return a
}

// OnReady 所有组件启动后回调（链式调用）
func (a *Agent) OnReady(fn func(*Agent) error) *Agent {
	a.onReady = fn
	return a
}

// Setup 加载 logger/telemetry 配置，然后 Init 并 Start 全部组件
func (a *Agent) Setup(ctx context.Context) error {
	if a.loader.IsSet("logger") {
		cfg := logger.DefaultManagerConfig()
		if err := a.loader.Unmarshal("logger", &cfg); err != nil {
			return fmt.Errorf("load logger config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid logger config: %w", err)
		}
		logger.InitManager(cfg)
	}
	a.logger = logger.GetLogger("agent")
	a.setState(StateSetup)

	telCfg := telemetry.DefaultConfig()
	if a.loader.IsSet("telemetry") {
		if err := a.loader.Unmarshal("telemetry", &telCfg); err != nil {
			return fmt.Errorf("load telemetry config: %w", err)
		}
	}
	if err := telemetry.ValidateConfig(telCfg); err != nil {
		return err
	}
	a.telemetry = telemetry.NewManager(telCfg)
	if err := a.telemetry.Start(ctx); err != nil {
		return err
	}

	a.group = component.NewGroup(a.telemetry.MeterProvider(), a.components...)
	if err := a.group.Init(ctx, a.loader); err != nil {
		_ = a.telemetry.Shutdown(ctx)
		return err
	}
	if err := a.group.Start(ctx); err != nil {
		_ = a.telemetry.Shutdown(ctx)
		return err
	}
	a.setState(StateRunning)

	if a.onReady != nil {
		if err := a.onReady(a); err != nil {
			_ = a.Shutdown()
			return fmt.Errorf("onReady failed: %w", err)
		}
	}
	return nil
}

// Run is Setup, WaitShutdown and Shutdown.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.Setup(ctx); err != nil {
		return err
	}
	a.WaitShutdown(ctx)
	return a.Shutdown()
}

// WaitShutdown 阻塞直到 ctx 结束或收到 SIGINT/SIGTERM；
// 第二次信号立即强制退出
func (a *Agent) WaitShutdown(ctx context.Context) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, a.signals...)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		a.logger.InfoCtx(ctx, "shutdown signal received", zap.String("signal", sig.String()))
		go func() {
			sig := <-quit
			a.logger.WarnCtx(context.Background(), "second signal received, forcing exit", zap.String("signal", sig.String()))
			os.Exit(1)
		}()
	case <-ctx.Done():
		a.logger.DebugCtx(context.Background(), "context cancelled, shutting down")
	}
}

// Shutdown 逆序停止组件并刷新 telemetry，总耗时受 shutdown timeout 限制
func (a *Agent) Shutdown() error {
	if a.State() != StateRunning {
		return nil
	}
	a.setState(StateStopping)

	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	err := a.group.Stop(ctx)
	if err != nil {
		a.logger.ErrorCtx(ctx, "component shutdown failed", zap.Error(err))
	}
	if terr := a.telemetry.Shutdown(ctx); terr != nil {
		a.logger.ErrorCtx(ctx, "telemetry shutdown failed", zap.Error(terr))
	}

	a.setState(StateStopped)
	return err
}

// Group returns the component group, or nil before Setup.
func (a *Agent) Group() *component.Group {
	return a.group
}

// State 当前状态（线程安全）
func (a *Agent) State() AppState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

func (a *Agent) setState(state AppState) {
	a.mu.Lock()
	old := a.state
	a.state = state
	a.mu.Unlock()

	if a.logger != nil {
		a.logger.DebugCtx(context.Background(), "agent state changed",
			zap.String("from", old.String()),
			zap.String("to", state.String()))
	}
}
