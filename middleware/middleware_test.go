package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/KOMKZ/go-yogan-eureka/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/trace"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestTraceID_GenerateNew(t *testing.T) {
	router := gin.New()
	router.Use(TraceID(DefaultTraceConfig()))
	router.GET("/test", func(c *gin.Context) {
		traceID := GetTraceID(c)
		assert.NotEmpty(t, traceID)
		// logger 从 request context 读取同一个值
		assert.Equal(t, traceID, c.Request.Context().Value(TraceIDKeyDefault))
		c.Status(http.StatusOK)
	})

	w := serve(router, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(TraceIDHeaderDefault))
}

func TestTraceID_FromHeader(t *testing.T) {
	router := gin.New()
	router.Use(TraceID(DefaultTraceConfig()))
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, GetTraceID(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(TraceIDHeaderDefault, "custom-trace-id-12345")
	w := serve(router, req)
	assert.Equal(t, "custom-trace-id-12345", w.Body.String())
	assert.Equal(t, "custom-trace-id-12345", w.Header().Get(TraceIDHeaderDefault))
}

func TestTraceID_PrefersSpanContext(t *testing.T) {
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Request = c.Request.WithContext(trace.ContextWithSpanContext(c.Request.Context(), sc))
		c.Next()
	})
	router.Use(TraceID(DefaultTraceConfig()))
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, GetTraceID(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(TraceIDHeaderDefault, "ignored")
	w := serve(router, req)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", w.Body.String())
}

func TestTraceID_DisableResponseHeader(t *testing.T) {
	cfg := DefaultTraceConfig()
	cfg.EnableResponseHeader = false
	cfg.Generator = func() string { return "fixed" }

	router := gin.New()
	router.Use(TraceID(cfg))
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, GetTraceID(c))
	})

	w := serve(router, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, "fixed", w.Body.String())
	assert.Empty(t, w.Header().Get(TraceIDHeaderDefault))
}

func TestRecovery(t *testing.T) {
	log := logger.NewTestCtxLogger()
	router := gin.New()
	router.Use(Recovery(log))
	router.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})

	w := serve(router, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "boom")
	assert.True(t, log.HasLog("ERROR", "panic recovered"))
	assert.True(t, log.HasLogWithField("ERROR", "panic recovered", "path", "/panic"))
}

func TestRequestLog(t *testing.T) {
	log := logger.NewTestCtxLogger()
	router := gin.New()
	router.Use(TraceID(DefaultTraceConfig()))
	router.Use(RequestLog(RequestLogConfig{SkipPaths: []string{"/health"}, Logger: log}))
	router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	router.GET("/fail", func(c *gin.Context) { c.Status(http.StatusBadGateway) })
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(TraceIDHeaderDefault, "trace-1")
	serve(router, req)
	serve(router, httptest.NewRequest(http.MethodGet, "/missing", nil))
	serve(router, httptest.NewRequest(http.MethodGet, "/fail", nil))
	serve(router, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.True(t, log.HasLogWithTraceID("INFO", "http request", "trace-1"))
	assert.True(t, log.HasLogWithField("WARN", "http request", "status", int64(http.StatusNotFound)))
	assert.True(t, log.HasLog("ERROR", "http request"))
	assert.Equal(t, 3, len(log.Logs()), "skipped path is not logged")
}

func TestHTTPMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	m, err := NewHTTPMetrics(provider.Meter("sidecar"))
	require.NoError(t, err)

	router := gin.New()
	router.Use(m.Handler())
	router.GET("/apps/:app", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(router, httptest.NewRequest(http.MethodGet, "/apps/ORDERS", nil))
	serve(router, httptest.NewRequest(http.MethodGet, "/apps/BILLING", nil))
	serve(router, httptest.NewRequest(http.MethodGet, "/nope", nil))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	byPath := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, metric := range sm.Metrics {
			if metric.Name != "http_requests_total" {
				continue
			}
			sum := metric.Data.(metricdata.Sum[int64])
			for _, dp := range sum.DataPoints {
				path, _ := dp.Attributes.Value("path")
				byPath[path.AsString()] += dp.Value
			}
		}
	}
	assert.Equal(t, map[string]int64{"/apps/:app": 2, "unknown": 1}, byPath)
}

func TestHTTPMetrics_NilPassesThrough(t *testing.T) {
	var m *HTTPMetrics
	router := gin.New()
	router.Use(m.Handler())
	router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(router, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(200))
	assert.Equal(t, "4xx", statusClass(404))
	assert.Equal(t, "5xx", statusClass(503))
	assert.Equal(t, "unknown", statusClass(0))
}

func TestRateLimit_Global(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	cfg.Enabled = true
	cfg.Rate = 0.001
	cfg.Capacity = 2

	router := gin.New()
	router.Use(RateLimit(cfg, logger.NewTestCtxLogger()))
	router.GET("/apps", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(router, httptest.NewRequest(http.MethodGet, "/apps", nil)).Code)
	assert.Equal(t, http.StatusOK, serve(router, httptest.NewRequest(http.MethodGet, "/apps", nil)).Code)
	w := serve(router, httptest.NewRequest(http.MethodGet, "/apps", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "too many requests")

	// 跳过的路径不消耗令牌
	assert.Equal(t, http.StatusOK, serve(router, httptest.NewRequest(http.MethodGet, "/health", nil)).Code)
}

func TestRateLimit_PerClientIP(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	cfg.Enabled = true
	cfg.KeyFunc = KeyFuncIP
	cfg.Rate = 0.001
	cfg.Capacity = 1

	router := gin.New()
	router.Use(RateLimit(cfg, nil))
	router.GET("/apps", func(c *gin.Context) { c.Status(http.StatusOK) })

	from := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/apps", nil)
		req.RemoteAddr = addr
		return serve(router, req).Code
	}
	assert.Equal(t, http.StatusOK, from("10.0.0.1:1234"))
	assert.Equal(t, http.StatusTooManyRequests, from("10.0.0.1:1235"))
	assert.Equal(t, http.StatusOK, from("10.0.0.2:1234"))
}

func TestRateLimit_DisabledPassesThrough(t *testing.T) {
	router := gin.New()
	router.Use(RateLimit(RateLimitConfig{}, nil))
	router.GET("/apps", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 10; i++ {
		assert.Equal(t, http.StatusOK, serve(router, httptest.NewRequest(http.MethodGet, "/apps", nil)).Code)
	}
}

func TestRateLimitConfig_Validate(t *testing.T) {
	assert.NoError(t, RateLimitConfig{}.Validate())

	cfg := DefaultRateLimitConfig()
	cfg.Enabled = true
	assert.NoError(t, cfg.Validate())

	cfg.KeyFunc = "path"
	assert.Error(t, cfg.Validate())

	cfg = DefaultRateLimitConfig()
	cfg.Enabled = true
	cfg.Capacity = 0
	assert.Error(t, cfg.Validate())
}
