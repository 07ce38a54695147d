package eureka

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KOMKZ/go-yogan-eureka/logger"
	"github.com/KOMKZ/go-yogan-eureka/retry"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Snapshot 注册表的不可变快照；刷新时整体替换，从不原地修改
type Snapshot struct {
	apps      map[string][]Instance // 服务端返回的 app 名 -> 实例（保持服务端顺序）
	names     map[string]string     // 小写 app 名 -> 服务端 app 名
	total     int
	FetchedAt time.Time
}

func emptySnapshot() *Snapshot {
	return &Snapshot{apps: map[string][]Instance{}, names: map[string]string{}}
}

// newSnapshot groups instances by App, keeping their relative order.
func newSnapshot(instances []Instance, fetchedAt time.Time) *Snapshot {
	s := &Snapshot{
		apps:      make(map[string][]Instance),
		names:     make(map[string]string),
		total:     len(instances),
		FetchedAt: fetchedAt,
	}
	for _, inst := range instances {
		s.apps[inst.App] = append(s.apps[inst.App], inst)
		lower := strings.ToLower(inst.App)
		if _, ok := s.names[lower]; !ok {
			s.names[lower] = inst.App
		}
	}
	return s
}

// lookup 先精确匹配，再大小写不敏感匹配；返回的切片不可修改
func (s *Snapshot) lookup(app string) []Instance {
	if list, ok := s.apps[app]; ok {
		return list
	}
	if name, ok := s.names[strings.ToLower(app)]; ok {
		return s.apps[name]
	}
	return nil
}

// Instances returns deep copies of the instances of app.
func (s *Snapshot) Instances(app string) []Instance {
	list := s.lookup(app)
	if list == nil {
		return nil
	}
	out := make([]Instance, len(list))
	for i := range list {
		out[i] = list[i].Clone()
	}
	return out
}

// Apps returns the app names, sorted.
func (s *Snapshot) Apps() []string {
	names := make([]string, 0, len(s.apps))
	for name := range s.apps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of cached instances.
func (s *Snapshot) Len() int {
	return s.total
}

// CacheOption RegistryCache 可选配置
type CacheOption func(*RegistryCache)

// WithBalancer replaces the random balancer, e.g. with a seeded one in tests.
func WithBalancer(b Balancer) CacheOption {
	return func(c *RegistryCache) {
		c.balancer = b
	}
}

// WithCacheLogger replaces the module logger.
func WithCacheLogger(l logger.CtxLogger) CacheOption {
	return func(c *RegistryCache) {
		c.logger = l
	}
}

// WithCacheMetrics records refresh outcomes.
func WithCacheMetrics(m *Metrics) CacheOption {
	return func(c *RegistryCache) {
		c.metrics = m
	}
}

// WithBackup saves every fetched registry to store.
func WithBackup(store BackupStore) CacheOption {
	return func(c *RegistryCache) {
		c.backup = store
	}
}

// RegistryCache 本地注册表缓存：周期全量刷新，读者无锁读取快照
type RegistryCache struct {
	api      WireClient
	filterUp bool

	fetchInterval time.Duration
	maxRetries    int
	retryDelay    time.Duration
	stopTimeout   time.Duration

	balancer Balancer
	logger   logger.CtxLogger
	metrics  *Metrics
	backup   BackupStore

	snapshot atomic.Pointer[Snapshot]
	group    singleflight.Group

	started atomic.Bool
	mu      sync.Mutex
	loop    *loopHandle
	stopped bool
}

// NewRegistryCache creates an empty cache; nothing is fetched until Start or Refresh.
func NewRegistryCache(api WireClient, cfg Config, opts ...CacheOption) *RegistryCache {
	c := &RegistryCache{
		api:           api,
		filterUp:      cfg.FilterUpInstances,
		fetchInterval: cfg.RegistryFetchInterval,
		maxRetries:    cfg.MaxRetries,
		retryDelay:    cfg.RequestRetryDelay,
		stopTimeout:   cfg.RequestTimeout * 2,
		balancer:      NewRandomBalancer(),
		logger:        logger.GetLogger("eureka"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.snapshot.Store(emptySnapshot())
	return c
}

// Snapshot returns the current snapshot. It is never nil.
func (c *RegistryCache) Snapshot() *Snapshot {
	return c.snapshot.Load()
}

// Refresh fetches the full registry and replaces the snapshot. On failure the
// previous snapshot stays in place and the error is returned. Concurrent calls
// share one fetch.
func (c *RegistryCache) Refresh(ctx context.Context) error {
	_, err, _ := c.group.Do("refresh", func() (interface{}, error) {
		instances, err := c.api.FetchAll(ctx)
		c.metrics.RecordRefresh(ctx, err)
		if err != nil {
			return nil, err
		}
		if c.filterUp {
			instances = filterUp(instances)
		}
		c.snapshot.Store(newSnapshot(instances, time.Now()))
		if c.backup != nil {
			if err := c.backup.Save(ctx, instances); err != nil {
				c.logger.WarnCtx(ctx, "registry backup save failed", zap.Error(err))
			}
		}
		return nil, nil
	})
	return err
}

// Start performs one synchronous refresh, retried up to max_retries times,
// then refreshes every registry_fetch_interval. A failed initial refresh is
// logged and the cache serves the empty snapshot until the loop succeeds.
func (c *RegistryCache) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted.WithMsg("registry cache already started")
	}

	err := retry.Do(ctx, func() error { return c.Refresh(ctx) },
		retry.MaxAttempts(c.maxRetries),
		retry.Backoff(retry.FixedDelay(c.retryDelay)),
	)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.ErrorCtx(ctx, "initial registry fetch failed, serving empty registry",
			zap.Int("attempts", retry.GetAttempts(err)), zap.Error(err))
	} else {
		c.logger.InfoCtx(ctx, "registry fetched", zap.Int("instances", c.Snapshot().Len()))
	}

	loop, err := startLoop("eureka-registry-refresh", c.fetchInterval, c.fetchInterval, c.stopTimeout, c.refreshTick)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		_ = loop.Stop()
		return nil
	}
	c.loop = loop
	return nil
}

func (c *RegistryCache) refreshTick(ctx context.Context) {
	if err := c.Refresh(ctx); err != nil {
		c.logger.ErrorCtx(ctx, "registry refresh failed, keeping last snapshot", zap.Error(err))
		return
	}
	c.logger.DebugCtx(ctx, "registry refreshed", zap.Int("instances", c.Snapshot().Len()))
}

// Resolve picks one UP instance of app uniformly at random and returns a copy.
// ok is false when the app is unknown or has no UP instance.
func (c *RegistryCache) Resolve(app string) (Instance, bool) {
	return c.ResolveFunc(app, nil)
}

// ResolveFunc is Resolve restricted to the UP instances keep accepts; a nil
// keep accepts all of them.
func (c *RegistryCache) ResolveFunc(app string, keep func(*Instance) bool) (Instance, bool) {
	up := filterUp(c.Snapshot().lookup(app))
	if keep != nil {
		n := 0
		for i := range up {
			if keep(&up[i]) {
				up[n] = up[i]
				n++
			}
		}
		up = up[:n]
	}
	if len(up) == 0 {
		return Instance{}, false
	}
	picked := up[c.balancer.Pick(len(up))]
	return picked.Clone(), true
}

// Instances returns copies of all cached instances of app.
func (c *RegistryCache) Instances(app string) []Instance {
	return c.Snapshot().Instances(app)
}

// Apps returns the cached app names.
func (c *RegistryCache) Apps() []string {
	return c.Snapshot().Apps()
}

// Stop clears the running flag and stops the refresh loop. Safe to call more than once.
func (c *RegistryCache) Stop() error {
	c.mu.Lock()
	c.stopped = true
	loop := c.loop
	c.loop = nil
	c.mu.Unlock()

	if loop == nil {
		return nil
	}
	return loop.Stop()
}

// filterUp returns the UP instances; the input is not modified.
func filterUp(instances []Instance) []Instance {
	out := make([]Instance, 0, len(instances))
	for _, inst := range instances {
		if inst.Status == StatusUp {
			out = append(out, inst)
		}
	}
	return out
}
