package sidecar

import (
	"context"
	"fmt"

	"github.com/KOMKZ/go-yogan-eureka/component"
	"github.com/KOMKZ/go-yogan-eureka/eureka"
	"github.com/KOMKZ/go-yogan-eureka/health"
	"github.com/KOMKZ/go-yogan-eureka/logger"
	"github.com/KOMKZ/go-yogan-eureka/middleware"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Component sidecar 组件，依赖 eureka 组件提供的 Client
type Component struct {
	eureka     *eureka.Component
	extra      []health.Checker
	config     Config
	aggregator *health.Aggregator
	metrics    *middleware.HTTPMetrics
	server     *Server
	logger     *logger.CtxZapLogger
}

var (
	_ component.Component       = (*Component)(nil)
	_ component.MetricsProvider = (*Component)(nil)
)

// NewComponent creates the component. The eureka component's health checker
// is always registered; extra checkers are added after it.
func NewComponent(ec *eureka.Component, extra ...health.Checker) *Component {
	return &Component{eureka: ec, extra: extra}
}

// Name 组件名称
func (c *Component) Name() string {
	return component.ComponentSidecar
}

// DependsOn eureka
func (c *Component) DependsOn() []string {
	return []string{component.ComponentEureka}
}

// Init 读取 sidecar 配置段（缺省时使用默认值）
func (c *Component) Init(ctx context.Context, loader component.ConfigLoader) error {
	c.logger = logger.GetLogger("sidecar")

	cfg := DefaultConfig()
	if loader.IsSet("sidecar") {
		if err := loader.Unmarshal("sidecar", &cfg); err != nil {
			return fmt.Errorf("load sidecar config: %w", err)
		}
	}
	if err := ValidateConfig(cfg); err != nil {
		return err
	}
	c.config = cfg

	c.aggregator = health.NewAggregator(cfg.HealthTimeout)
	c.aggregator.Register(c.eureka.GetHealthChecker())
	c.aggregator.Register(c.extra...)
	if client := c.eureka.Client(); client != nil {
		if mgr := client.Instance(); mgr != nil {
			c.aggregator.SetMetadata("app", mgr.App())
			c.aggregator.SetMetadata("instance_id", mgr.InstanceID())
		}
	}
	return nil
}

// Start 启动 HTTP 服务；enabled=false 时不做任何事
func (c *Component) Start(ctx context.Context) error {
	if !c.config.Enabled {
		c.logger.DebugCtx(ctx, "sidecar disabled")
		return nil
	}
	client := c.eureka.Client()
	if client == nil {
		return fmt.Errorf("eureka component not initialized")
	}

	c.server = NewServer(c.config, client, c.aggregator,
		WithServerLogger(c.logger),
		WithHTTPMetrics(c.metrics))
	if err := c.server.Start(ctx); err != nil {
		return err
	}
	c.logger.InfoCtx(ctx, "sidecar component started", zap.String("addr", c.server.Addr()))
	return nil
}

// Stop 关闭 HTTP 服务，幂等
func (c *Component) Stop(ctx context.Context) error {
	if c.server == nil {
		return nil
	}
	return c.server.Shutdown(ctx)
}

// Server returns the running server, or nil before Start.
func (c *Component) Server() *Server {
	return c.server
}

// Aggregator returns the health aggregator created by Init.
func (c *Component) Aggregator() *health.Aggregator {
	return c.aggregator
}

// MetricsName 指标 meter 名称
func (c *Component) MetricsName() string {
	return "sidecar"
}

// IsMetricsEnabled follows sidecar.enable_metrics.
func (c *Component) IsMetricsEnabled() bool {
	return c.config.Enabled && c.config.EnableMetrics
}

// RegisterMetrics creates the HTTP instruments used by Start.
func (c *Component) RegisterMetrics(meter metric.Meter) error {
	m, err := middleware.NewHTTPMetrics(meter)
	if err != nil {
		return err
	}
	c.metrics = m
	return nil
}
