package eureka

import (
	"context"
	"fmt"

	"github.com/KOMKZ/go-yogan-eureka/component"
	"github.com/KOMKZ/go-yogan-eureka/logger"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Component eureka 组件（标准组件）：读取 eureka 配置段，创建并管理 Client
type Component struct {
	config *Config
	client *Client
	logger *logger.CtxZapLogger
	opts   []ClientOption
}

var (
	_ component.Component           = (*Component)(nil)
	_ component.MetricsProvider     = (*Component)(nil)
	_ component.HealthCheckProvider = (*Component)(nil)
)

// NewComponent creates the component; opts are passed to NewClient.
func NewComponent(opts ...ClientOption) *Component {
	return &Component{opts: opts}
}

// Name 组件名称
func (c *Component) Name() string {
	return component.ComponentEureka
}

// DependsOn 无依赖
func (c *Component) DependsOn() []string {
	return nil
}

// Init 加载配置并创建 Client，不发起任何网络请求
func (c *Component) Init(ctx context.Context, loader component.ConfigLoader) error {
	c.logger = logger.GetLogger("eureka")

	cfg := DefaultConfig()
	if err := loader.Unmarshal("eureka", &cfg); err != nil {
		return fmt.Errorf("load eureka config: %w", err)
	}
	if err := ValidateConfig(cfg); err != nil {
		return err
	}

	var inst *Instance
	if cfg.RegisterWithEureka {
		var err error
		if inst, err = cfg.Instance.Build(cfg.HeartbeatInterval); err != nil {
			return err
		}
	}

	opts := append([]ClientOption{WithClientLogger(c.logger)}, c.opts...)
	client, err := NewClient(cfg, inst, opts...)
	if err != nil {
		return err
	}
	c.config = &cfg
	c.client = client

	c.logger.DebugCtx(ctx, "eureka component initialized",
		zap.String("registry", cfg.BaseURL()),
		zap.String("format", cfg.Format),
		zap.Bool("fetch_registry", cfg.FetchRegistry),
		zap.Bool("register_with_eureka", cfg.RegisterWithEureka))
	return nil
}

// Start 先拉取注册表，再注册本实例（阻塞直到 UP）
func (c *Component) Start(ctx context.Context) error {
	if c.client == nil {
		return fmt.Errorf("eureka component not initialized")
	}
	return c.client.Start(ctx)
}

// Stop 停止后台任务并注销实例
func (c *Component) Stop(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	return c.client.Stop(ctx)
}

// Client returns the client created by Init.
func (c *Component) Client() *Client {
	return c.client
}

// MetricsName 指标 meter 名称
func (c *Component) MetricsName() string {
	return "eureka"
}

// IsMetricsEnabled follows eureka.enable_metrics.
func (c *Component) IsMetricsEnabled() bool {
	return c.config != nil && c.config.EnableMetrics
}

// RegisterMetrics creates the eureka instruments.
func (c *Component) RegisterMetrics(meter metric.Meter) error {
	if c.client == nil {
		return fmt.Errorf("eureka component not initialized")
	}
	return c.client.UseMeter(meter)
}

// GetHealthChecker 健康检查器；Init 之前调用也可，检查时才读取 Client
func (c *Component) GetHealthChecker() component.HealthChecker {
	return &healthChecker{client: func() *Client { return c.client }}
}

// NewHealthChecker returns the checker of a client managed outside a Component.
func NewHealthChecker(client *Client) component.HealthChecker {
	return &healthChecker{client: func() *Client { return client }}
}

// healthChecker 本实例为 UP 且注册表至少成功拉取过一次时为健康
type healthChecker struct {
	client func() *Client
}

func (h *healthChecker) Name() string {
	return component.ComponentEureka
}

func (h *healthChecker) Check(ctx context.Context) error {
	client := h.client()
	if client == nil {
		return fmt.Errorf("eureka component not initialized")
	}
	if mgr := client.Instance(); mgr != nil {
		if state := mgr.State(); state != StateUp {
			return fmt.Errorf("instance %s/%s is %s", mgr.App(), mgr.InstanceID(), state)
		}
	}
	if reg := client.Registry(); reg != nil && reg.Snapshot().FetchedAt.IsZero() {
		return fmt.Errorf("registry has not been fetched yet")
	}
	return nil
}
