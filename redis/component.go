package redis

import (
	"context"
	"fmt"

	"github.com/KOMKZ/go-yogan-eureka/component"
	"github.com/KOMKZ/go-yogan-eureka/eureka"
	"github.com/KOMKZ/go-yogan-eureka/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var _ eureka.BackupStore = (*Component)(nil)

// Component 从 "redis" 配置段创建客户端；本身即 eureka.BackupStore，
// 可以在 Init 之前交给 eureka.WithClientBackup
//
//	rc := redis.NewComponent()
//	ec := eureka.NewComponent(eureka.WithClientBackup(rc))
//	group := component.NewGroup(meters, rc, ec)
//
// 备份只写不读；未配置 redis 段时 Save 什么也不做
type Component struct {
	client redis.UniversalClient
	store  *BackupStore
	logger *logger.CtxZapLogger
}

// NewComponent creates the component; the client is created by Init.
func NewComponent() *Component {
	return &Component{}
}

// Name implements component.Component.
func (c *Component) Name() string {
	return component.ComponentRedis
}

// DependsOn implements component.Component.
func (c *Component) DependsOn() []string {
	return nil
}

// Init 读取配置、连接并 ping
func (c *Component) Init(ctx context.Context, loader component.ConfigLoader) error {
	c.logger = logger.GetLogger("redis")
	if !loader.IsSet("redis") {
		c.logger.DebugCtx(ctx, "redis not configured, registry backup disabled")
		return nil
	}

	cfg := DefaultConfig()
	if err := loader.Unmarshal("redis", &cfg); err != nil {
		return fmt.Errorf("load redis config: %w", err)
	}
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return err
	}
	c.client = client
	c.store = NewBackupStore(client, cfg.Key, cfg.TTL)

	c.logger.DebugCtx(ctx, "redis backup store ready",
		zap.String("mode", cfg.Mode),
		zap.Strings("addrs", cfg.Addrs),
		zap.String("key", cfg.Key))
	return nil
}

// Start implements component.Component.
func (c *Component) Start(ctx context.Context) error {
	return nil
}

// Stop closes the client.
func (c *Component) Stop(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	c.store = nil
	if err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	return nil
}

// Save implements eureka.BackupStore.
func (c *Component) Save(ctx context.Context, instances []eureka.Instance) error {
	if c.store == nil {
		return nil
	}
	return c.store.Save(ctx, instances)
}

// GetHealthChecker implements component.HealthCheckProvider. The client is
// read on every check, so the checker may be taken before Init.
func (c *Component) GetHealthChecker() component.HealthChecker {
	return &HealthChecker{client: func() redis.UniversalClient { return c.client }}
}
