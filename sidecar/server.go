// Package sidecar 为 eureka.Client 提供本地 HTTP 状态服务：
// 健康检查、本实例信息、注册表缓存查询与状态/元数据变更
package sidecar

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/KOMKZ/go-yogan-eureka/eureka"
	"github.com/KOMKZ/go-yogan-eureka/health"
	"github.com/KOMKZ/go-yogan-eureka/httpx"
	"github.com/KOMKZ/go-yogan-eureka/logger"
	"github.com/KOMKZ/go-yogan-eureka/middleware"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

// Server sidecar HTTP 服务
type Server struct {
	cfg        Config
	client     *eureka.Client
	aggregator *health.Aggregator
	engine     *gin.Engine
	logger     logger.CtxLogger

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
	done     chan struct{}
}

// ServerOption Server 可选配置
type ServerOption func(*serverOptions)

type serverOptions struct {
	logger  logger.CtxLogger
	metrics *middleware.HTTPMetrics
}

// WithServerLogger replaces the "sidecar" module logger.
func WithServerLogger(l logger.CtxLogger) ServerOption {
	return func(o *serverOptions) {
		o.logger = l
	}
}

// WithHTTPMetrics records request metrics.
func WithHTTPMetrics(m *middleware.HTTPMetrics) ServerOption {
	return func(o *serverOptions) {
		o.metrics = m
	}
}

// NewServer builds the gin engine; nothing listens until Start.
// 中间件顺序：otelgin → TraceID → Recovery → RequestLog → metrics → RateLimit
func NewServer(cfg Config, client *eureka.Client, aggregator *health.Aggregator, opts ...ServerOption) *Server {
	o := serverOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.GetLogger("sidecar")
	}
	if aggregator == nil {
		aggregator = health.NewAggregator(cfg.HealthTimeout)
	}

	gin.SetMode(cfg.Mode)
	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	engine.Use(
		otelgin.Middleware("eureka-sidecar"),
		middleware.TraceID(middleware.DefaultTraceConfig()),
		middleware.Recovery(o.logger),
		middleware.RequestLog(middleware.RequestLogConfig{SkipPaths: cfg.SkipLogPaths, Logger: o.logger}),
		o.metrics.Handler(),
		middleware.RateLimit(cfg.RateLimit, o.logger),
	)
	engine.NoRoute(httpx.NoRouteHandler())

	s := &Server{
		cfg:        cfg,
		client:     client,
		aggregator: aggregator,
		engine:     engine,
		logger:     o.logger,
	}
	s.registerRoutes(engine)
	return s
}

// Engine returns the gin engine, e.g. for httptest.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Start 监听端口后立即返回；端口不可用时报错
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return fmt.Errorf("sidecar already started")
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("sidecar listen %s: %w", addr, err)
	}

	s.listener = ln
	s.srv = &http.Server{Handler: s.engine}
	s.done = make(chan struct{})
	go func(srv *http.Server, done chan struct{}) {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.ErrorCtx(context.Background(), "sidecar server stopped", zap.Error(err))
		}
	}(s.srv, s.done)

	s.logger.InfoCtx(ctx, "sidecar server started", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the listening address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown 优雅关闭，最多等待 shutdown_timeout；可重复调用
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.srv, s.done
	s.srv, s.listener, s.done = nil, nil, nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	if s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("sidecar shutdown: %w", err)
	}
	<-done
	s.logger.InfoCtx(ctx, "sidecar server stopped")
	return nil
}
