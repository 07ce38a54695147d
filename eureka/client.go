package eureka

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/KOMKZ/go-yogan-eureka/breaker"
	"github.com/KOMKZ/go-yogan-eureka/httpclient"
	"github.com/KOMKZ/go-yogan-eureka/logger"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

// Endpoint 解析结果
type Endpoint struct {
	App        string `json:"app"`
	InstanceID string `json:"instance_id"`
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Secure     bool   `json:"secure"`
}

// Address returns host:port.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// URL returns the endpoint URL for path.
func (e Endpoint) URL(path string) string {
	scheme := "http"
	if e.Secure {
		scheme = "https"
	}
	return scheme + "://" + e.Address() + "/" + strings.TrimLeft(path, "/")
}

// ClientOption Client 可选配置
type ClientOption func(*clientOptions)

type clientOptions struct {
	wire     WireClient
	balancer Balancer
	logger   logger.CtxLogger
	backup   BackupStore
	breaker  *breaker.Breaker
	httpOpts []httpclient.Option
}

// WithWireClient substitutes the registry client, e.g. a fake in tests.
func WithWireClient(w WireClient) ClientOption {
	return func(o *clientOptions) {
		o.wire = w
	}
}

// WithClientBalancer sets the balancer of the registry cache.
func WithClientBalancer(b Balancer) ClientOption {
	return func(o *clientOptions) {
		o.balancer = b
	}
}

// WithClientBackup sets the registry backup store.
func WithClientBackup(store BackupStore) ClientOption {
	return func(o *clientOptions) {
		o.backup = store
	}
}

// WithClientBreaker replaces the breaker built from cfg.Breaker.
func WithClientBreaker(b *breaker.Breaker) ClientOption {
	return func(o *clientOptions) {
		o.breaker = b
	}
}

// WithClientLogger sets the logger of the client and its components.
func WithClientLogger(l logger.CtxLogger) ClientOption {
	return func(o *clientOptions) {
		o.logger = l
	}
}

// WithHTTPOptions adds options to the registry and outbound HTTP clients.
func WithHTTPOptions(opts ...httpclient.Option) ClientOption {
	return func(o *clientOptions) {
		o.httpOpts = append(o.httpOpts, opts...)
	}
}

// Client 本进程的集群视图：组合注册表缓存与实例生命周期管理
type Client struct {
	cfg      Config
	wire     WireClient
	registry *RegistryCache   // fetch_registry=false 时为 nil
	instance *InstanceManager // register_with_eureka=false 时为 nil
	outbound *httpclient.Client
	breaker  *breaker.Breaker
	logger   logger.CtxLogger
	metrics  *Metrics
}

// NewClient validates cfg and wires the components. inst may be nil when
// register_with_eureka is false. VIPAddress defaults to the app name and
// SecureVIPAddress to the VIP, only when unset.
func NewClient(cfg Config, inst *Instance, opts ...ClientOption) (*Client, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	o := &clientOptions{logger: logger.GetLogger("eureka")}
	for _, opt := range opts {
		opt(o)
	}

	wire := o.wire
	if wire == nil {
		codec, err := CodecFor(cfg.Format)
		if err != nil {
			return nil, ErrInvalidConfig.Wrap(err)
		}
		wire = NewHTTPWireClient(cfg.BaseURL(), codec, cfg.RequestTimeout, o.httpOpts...)
	}

	brk := o.breaker
	if brk == nil {
		var err error
		if brk, err = breaker.New(cfg.Breaker, breaker.WithLogger(o.logger)); err != nil {
			return nil, ErrInvalidConfig.Wrap(err)
		}
	}

	c := &Client{
		cfg:     cfg,
		wire:    wire,
		breaker: brk,
		logger:  o.logger,
		outbound: httpclient.NewClient(append([]httpclient.Option{
			httpclient.WithTimeout(cfg.RequestTimeout),
			httpclient.WithBeforeRequest(injectTraceContext),
		}, o.httpOpts...)...),
	}

	if cfg.FetchRegistry {
		cacheOpts := []CacheOption{WithCacheLogger(o.logger)}
		if o.balancer != nil {
			cacheOpts = append(cacheOpts, WithBalancer(o.balancer))
		}
		if o.backup != nil {
			cacheOpts = append(cacheOpts, WithBackup(o.backup))
		}
		c.registry = NewRegistryCache(wire, cfg, cacheOpts...)
	}

	if cfg.RegisterWithEureka {
		if inst == nil {
			return nil, ErrInvalidConfig.WithMsg("register_with_eureka is set but no instance was given")
		}
		own := inst.Clone()
		if own.VIPAddress == "" {
			own.VIPAddress = own.App
		}
		if own.SecureVIPAddress == "" {
			own.SecureVIPAddress = own.VIPAddress
		}
		if err := own.Validate(); err != nil {
			return nil, ErrInvalidConfig.WithMsg("invalid instance").Wrap(err)
		}
		c.instance = NewInstanceManager(wire, &own, cfg, WithLogger(o.logger))
	}
	return c, nil
}

// UseMeter creates the eureka instruments on meter. Call before Start.
func (c *Client) UseMeter(meter metric.Meter) error {
	var instances func() int
	if c.registry != nil {
		instances = func() int { return c.registry.Snapshot().Len() }
	}
	m, err := NewMetrics(meter, instances)
	if err != nil {
		return err
	}
	c.metrics = m
	if c.registry != nil {
		c.registry.metrics = m
	}
	if c.instance != nil {
		c.instance.metrics = m
	}
	if c.breaker.Enabled() {
		return c.breaker.UseMeter(meter)
	}
	return nil
}

// Start fills the registry cache (one synchronous refresh, then the refresh
// loop) and then registers the instance, blocking until it is UP.
func (c *Client) Start(ctx context.Context) error {
	if c.registry != nil {
		if err := c.registry.Start(ctx); err != nil {
			return err
		}
	}
	if c.instance != nil {
		if err := c.instance.Start(ctx); err != nil {
			return err
		}
	}
	c.logger.InfoCtx(ctx, "eureka client started",
		zap.String("registry", c.cfg.BaseURL()),
		zap.Bool("fetch_registry", c.registry != nil),
		zap.Bool("register_with_eureka", c.instance != nil))
	return nil
}

// Stop stops both loops and deregisters the instance. It does not fail
// because of the registry.
func (c *Client) Stop(ctx context.Context) error {
	var errs []error
	if c.registry != nil {
		if err := c.registry.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.instance != nil {
		if err := c.instance.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.metrics.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := c.breaker.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Config returns the client configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// Registry returns the registry cache, or nil when fetch_registry is false.
func (c *Client) Registry() *RegistryCache {
	return c.registry
}

// Instance returns the lifecycle manager, or nil when register_with_eureka is false.
func (c *Client) Instance() *InstanceManager {
	return c.instance
}

// Breaker returns the outbound circuit breaker.
func (c *Client) Breaker() *breaker.Breaker {
	return c.breaker
}

// Wire returns the registry wire client.
func (c *Client) Wire() WireClient {
	return c.wire
}

// SetStatus overrides the status of the local instance. A failed heartbeat
// re-registers the instance as UP, which ends the override.
func (c *Client) SetStatus(ctx context.Context, status Status) error {
	if c.instance == nil {
		return ErrNotRegistering
	}
	return c.instance.SetStatus(ctx, status)
}

// SetMetadata updates one metadata entry of the local instance.
func (c *Client) SetMetadata(ctx context.Context, key, value string) error {
	if c.instance == nil {
		return ErrNotRegistering
	}
	return c.instance.SetMetadata(ctx, key, value)
}

// Resolve picks an UP instance of app. With ssl the secure port is used,
// otherwise the plain port; the host is the IP unless prefer_ip_address is
// off. Instances whose port is disabled are never picked. Unknown app and no
// usable UP instance return ErrUnknownApp.
func (c *Client) Resolve(app string) (Endpoint, error) {
	if c.registry == nil {
		return Endpoint{}, ErrUnknownApp.WithMsgf("unknown app %s: registry fetching is disabled", app)
	}
	inst, ok := c.registry.ResolveFunc(app, func(inst *Instance) bool {
		_, enabled := c.port(inst).Get()
		return enabled
	})
	if !ok {
		return Endpoint{}, ErrUnknownApp.WithMsgf("unknown app %s", app)
	}
	value, _ := c.port(&inst).Get()

	host := inst.IPAddr
	if !c.cfg.PreferIPAddress || host == "" {
		host = inst.HostName
	}
	return Endpoint{
		App:        inst.App,
		InstanceID: inst.ID(),
		Host:       host,
		Port:       value,
		Secure:     c.cfg.SSL,
	}, nil
}

// port returns the port Resolve connects to.
func (c *Client) port(inst *Instance) Port {
	if c.cfg.SSL {
		return inst.SecurePort
	}
	return inst.Port
}

// FindAppAddress returns host:port of an UP instance of app.
func (c *Client) FindAppAddress(app string) (string, error) {
	ep, err := c.Resolve(app)
	if err != nil {
		return "", err
	}
	return ep.Address(), nil
}

// DoRequest resolves app and sends body as JSON to path. It never retries.
// Non-2xx responses are returned as is; transport failures are ErrNetwork.
// While the circuit of app is open breaker.ErrCircuitOpen is returned and
// no request is sent.
func (c *Client) DoRequest(ctx context.Context, app, path, method string, body interface{}, headers map[string]string) (*httpclient.Response, error) {
	ep, err := c.Resolve(app)
	if err != nil {
		return nil, err
	}

	req := httpclient.NewRequest(method, ep.URL(path))
	if body != nil {
		if req, err = req.WithJSON(body); err != nil {
			return nil, ErrParse.WithMsg("encode request body").Wrap(err)
		}
	}
	for k, v := range headers {
		req.WithHeader(k, v)
	}
	if _, ok := req.Headers["X-Request-ID"]; !ok {
		req.WithHeader("X-Request-ID", uuid.NewString())
	}

	c.logger.DebugCtx(ctx, "outbound call",
		zap.String("app", app), zap.String("endpoint", ep.Address()), zap.String("method", method), zap.String("path", path))

	// 网络错误与 5xx 计为失败；5xx 响应仍原样返回
	var resp *httpclient.Response
	err = c.breaker.Execute(ctx, strings.ToUpper(app), func(ctx context.Context) error {
		var derr error
		if resp, derr = c.outbound.Do(ctx, req); derr != nil {
			return ErrNetwork.WithMsgf("call %s: network failure", app).Wrap(derr)
		}
		c.logger.DebugCtx(ctx, "outbound call done",
			zap.String("app", app), zap.Int("status", resp.StatusCode), zap.Duration("duration", resp.Duration))
		if resp.IsServerError() {
			return errServerStatus
		}
		return nil
	})
	switch {
	case errors.Is(err, errServerStatus):
		return resp, nil
	case err != nil:
		return nil, err
	}
	return resp, nil
}

var errServerStatus = errors.New("server error status")

// injectTraceContext 把当前 span 以全局 propagator 写入请求头
func injectTraceContext(r *http.Request) error {
	otel.GetTextMapPropagator().Inject(r.Context(), propagation.HeaderCarrier(r.Header))
	return nil
}

// Call is DoRequest plus: the response must be 200 and its JSON body is
// decoded into out (when out is non-nil).
func (c *Client) Call(ctx context.Context, app, path, method string, body interface{}, headers map[string]string, out interface{}) error {
	resp, err := c.DoRequest(ctx, app, path, method, body, headers)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return unexpectedStatus("call "+app, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := resp.JSON(out); err != nil {
		return ErrParse.WithMsgf("call %s: decode response", app).Wrap(err)
	}
	return nil
}

// CallJSON is Call decoding into a new T.
func CallJSON[T any](ctx context.Context, c *Client, app, path, method string, body interface{}, headers map[string]string) (*T, error) {
	var out T
	if err := c.Call(ctx, app, path, method, body, headers, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
