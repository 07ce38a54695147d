package sidecar_test

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/KOMKZ/go-yogan-eureka/eureka"
	"github.com/KOMKZ/go-yogan-eureka/health"
	"github.com/KOMKZ/go-yogan-eureka/httpx"
	"github.com/KOMKZ/go-yogan-eureka/logger"
	"github.com/KOMKZ/go-yogan-eureka/middleware"
	"github.com/KOMKZ/go-yogan-eureka/sidecar"
	"github.com/KOMKZ/go-yogan-eureka/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope[T any] struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data T      `json:"data"`
}

func sidecarConfig() sidecar.Config {
	cfg := sidecar.DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.Mode = gin.TestMode
	cfg.HealthTimeout = time.Second
	return cfg
}

func orders(host, ip string, status eureka.Status) eureka.Instance {
	return eureka.Instance{
		HostName:       host,
		App:            "ORDERS",
		IPAddr:         ip,
		Status:         status,
		Port:           eureka.NewPort(8080),
		SecurePort:     eureka.Port{Value: 8443},
		DataCenterInfo: eureka.MyOwnDataCenter(),
	}
}

// newClient 返回指向 reg 的 Client；register 为 false 时不注册本实例
func newClient(t *testing.T, reg *testutil.FakeRegistry, register bool) *eureka.Client {
	t.Helper()
	cfg := eureka.DefaultConfig()
	reg.Apply(&cfg)
	cfg.HeartbeatGracePeriod = time.Hour
	cfg.RegistryFetchInterval = time.Hour
	cfg.RegisterRetryDelay = 10 * time.Millisecond
	cfg.RequestRetryDelay = time.Millisecond
	cfg.RequestTimeout = time.Second
	cfg.RegisterWithEureka = register
	cfg.Instance.App = "checkout"
	cfg.Instance.HostName = "checkout-1"
	cfg.Instance.IPAddr = "10.0.5.1"
	cfg.Instance.Port = 9000

	var inst *eureka.Instance
	if register {
		var err error
		inst, err = cfg.Instance.Build(cfg.HeartbeatInterval)
		require.NoError(t, err)
	}
	client, err := eureka.NewClient(cfg, inst, eureka.WithClientLogger(logger.NewTestCtxLogger()))
	require.NoError(t, err)
	return client
}

func startedServer(t *testing.T, reg *testutil.FakeRegistry) (*sidecar.Server, *eureka.Client) {
	t.Helper()
	reg.Put(orders("orders-1", "10.0.0.1", eureka.StatusUp))
	reg.Put(orders("orders-2", "10.0.0.2", eureka.StatusDown))

	client := newClient(t, reg, true)
	require.NoError(t, client.Start(context.Background()))
	t.Cleanup(func() { _ = client.Stop(context.Background()) })

	agg := health.NewAggregator(time.Second)
	agg.Register(eureka.NewHealthChecker(client))
	return sidecar.NewServer(sidecarConfig(), client, agg, sidecar.WithServerLogger(logger.NewTestCtxLogger())), client
}

func TestServer_Health(t *testing.T) {
	reg := testutil.NewFakeRegistry(t)
	srv, _ := startedServer(t, reg)

	resp := testutil.GET("/health").Do(srv.Engine())
	assert.Equal(t, http.StatusOK, resp.Status())

	var body health.Response
	require.NoError(t, resp.JSON(&body))
	assert.Equal(t, health.StatusUp, body.Status)
	assert.Contains(t, body.Checks, "eureka")
}

func TestServer_HealthDownBeforeStart(t *testing.T) {
	reg := testutil.NewFakeRegistry(t)
	client := newClient(t, reg, true)

	agg := health.NewAggregator(time.Second)
	agg.Register(eureka.NewHealthChecker(client))
	srv := sidecar.NewServer(sidecarConfig(), client, agg)

	resp := testutil.GET("/health").Do(srv.Engine())
	assert.Equal(t, http.StatusServiceUnavailable, resp.Status())

	var body health.Response
	require.NoError(t, resp.JSON(&body))
	assert.Equal(t, health.StatusDown, body.Status)
	assert.NotEmpty(t, body.Checks["eureka"].Error)
}

func TestServer_Info(t *testing.T) {
	reg := testutil.NewFakeRegistry(t)
	srv, _ := startedServer(t, reg)

	resp := testutil.GET("/info").WithTraceID("trace-info").Do(srv.Engine())
	require.Equal(t, http.StatusOK, resp.Status())
	assert.Equal(t, "trace-info", resp.Header(middleware.TraceIDHeaderDefault))

	var body envelope[sidecar.InfoResponse]
	require.NoError(t, resp.JSON(&body))
	assert.Equal(t, "CHECKOUT", body.Data.App)
	assert.Equal(t, "checkout-1", body.Data.InstanceID)
	assert.Equal(t, eureka.StateUp.String(), body.Data.State)
	assert.Equal(t, eureka.StatusUp, body.Data.Instance.Status)
}

func TestServer_InfoNotRegistering(t *testing.T) {
	reg := testutil.NewFakeRegistry(t)
	client := newClient(t, reg, false)
	srv := sidecar.NewServer(sidecarConfig(), client, nil)

	resp := testutil.GET("/info").Do(srv.Engine())
	assert.Equal(t, http.StatusNotFound, resp.Status())

	var body httpx.Response
	require.NoError(t, resp.JSON(&body))
	assert.Equal(t, eureka.ErrNotRegistering.Code(), body.Code)
}

func TestServer_Apps(t *testing.T) {
	reg := testutil.NewFakeRegistry(t)
	srv, _ := startedServer(t, reg)

	resp := testutil.GET("/apps").Do(srv.Engine())
	require.Equal(t, http.StatusOK, resp.Status())

	var body envelope[sidecar.AppsResponse]
	require.NoError(t, resp.JSON(&body))
	// 只缓存 UP 实例
	assert.Equal(t, map[string]int{"ORDERS": 1}, body.Data.Apps)
	assert.Equal(t, 1, body.Data.Instances)
}

func TestServer_AppInstances(t *testing.T) {
	reg := testutil.NewFakeRegistry(t)
	srv, _ := startedServer(t, reg)

	resp := testutil.GET("/apps/orders").Do(srv.Engine())
	require.Equal(t, http.StatusOK, resp.Status())

	var body envelope[sidecar.InstancesResponse]
	require.NoError(t, resp.JSON(&body))
	assert.Equal(t, "ORDERS", body.Data.App)
	require.Len(t, body.Data.Instances, 1)
	assert.Equal(t, "orders-1", body.Data.Instances[0].ID())

	missing := testutil.GET("/apps/billing").Do(srv.Engine())
	assert.Equal(t, http.StatusNotFound, missing.Status())
	var errBody httpx.Response
	require.NoError(t, missing.JSON(&errBody))
	assert.Equal(t, eureka.ErrUnknownApp.Code(), errBody.Code)
}

func TestServer_Endpoint(t *testing.T) {
	reg := testutil.NewFakeRegistry(t)
	srv, _ := startedServer(t, reg)

	resp := testutil.GET("/apps/ORDERS/endpoint").Do(srv.Engine())
	require.Equal(t, http.StatusOK, resp.Status())

	var body envelope[eureka.Endpoint]
	require.NoError(t, resp.JSON(&body))
	assert.Equal(t, "10.0.0.1:8080", body.Data.Address())

	assert.Equal(t, http.StatusNotFound, testutil.GET("/apps/BILLING/endpoint").Do(srv.Engine()).Status())
}

func TestServer_SetStatus(t *testing.T) {
	reg := testutil.NewFakeRegistry(t)
	srv, client := startedServer(t, reg)

	resp := testutil.PUT("/instance/status").
		WithJSON(map[string]string{"status": "OUT_OF_SERVICE"}).
		Do(srv.Engine())
	require.Equal(t, http.StatusOK, resp.Status(), resp.Body())

	var body envelope[sidecar.InfoResponse]
	require.NoError(t, resp.JSON(&body))
	assert.Equal(t, eureka.StatusOutOfService, body.Data.Instance.Status)
	assert.Equal(t, eureka.StatusOutOfService, client.Instance().Instance().Status)
	assert.Equal(t, eureka.StatusOutOfService, reg.Instances("CHECKOUT")[0].Status)
}

func TestServer_SetStatusRejectsUnknownStatus(t *testing.T) {
	reg := testutil.NewFakeRegistry(t)
	srv, _ := startedServer(t, reg)
	before := reg.CallCount(testutil.OpStatus)

	for _, status := range []string{"", "SLEEPING", "up"} {
		resp := testutil.PUT("/instance/status").
			WithJSON(map[string]string{"status": status}).
			Do(srv.Engine())
		assert.Equal(t, http.StatusBadRequest, resp.Status(), status)
	}
	assert.Equal(t, before, reg.CallCount(testutil.OpStatus))
}

func TestServer_SetMetadata(t *testing.T) {
	reg := testutil.NewFakeRegistry(t)
	srv, _ := startedServer(t, reg)

	resp := testutil.PUT("/instance/metadata").
		WithJSON(map[string]string{"key": "zone", "value": "us east"}).
		Do(srv.Engine())
	require.Equal(t, http.StatusOK, resp.Status(), resp.Body())

	var body envelope[sidecar.InfoResponse]
	require.NoError(t, resp.JSON(&body))
	assert.Equal(t, "us east", body.Data.Instance.Metadata["zone"])
	assert.Equal(t, "us east", reg.Instances("CHECKOUT")[0].Metadata["zone"])

	missingKey := testutil.PUT("/instance/metadata").
		WithJSON(map[string]string{"value": "x"}).
		Do(srv.Engine())
	assert.Equal(t, http.StatusBadRequest, missingKey.Status())
}

func TestServer_SetStatusRegistryFailure(t *testing.T) {
	reg := testutil.NewFakeRegistry(t)
	srv, _ := startedServer(t, reg)
	reg.FailNext(testutil.OpStatus, http.StatusInternalServerError)

	resp := testutil.PUT("/instance/status").
		WithJSON(map[string]string{"status": "DOWN"}).
		Do(srv.Engine())
	assert.Equal(t, http.StatusBadGateway, resp.Status())

	var body httpx.Response
	require.NoError(t, resp.JSON(&body))
	assert.Equal(t, eureka.ErrUnexpectedStatus.Code(), body.Code)
}

func TestServer_NoRoute(t *testing.T) {
	reg := testutil.NewFakeRegistry(t)
	srv := sidecar.NewServer(sidecarConfig(), newClient(t, reg, false), nil)

	assert.Equal(t, http.StatusNotFound, testutil.GET("/nope").Do(srv.Engine()).Status())
}

func TestServer_StartAndShutdown(t *testing.T) {
	reg := testutil.NewFakeRegistry(t)
	srv, _ := startedServer(t, reg)
	ctx := context.Background()

	assert.Empty(t, srv.Addr())
	require.NoError(t, srv.Start(ctx))
	assert.Error(t, srv.Start(ctx), "already started")

	resp, err := http.Get(fmt.Sprintf("http://%s/health", srv.Addr()))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, srv.Shutdown(ctx))
	require.NoError(t, srv.Shutdown(ctx))
	assert.Empty(t, srv.Addr())
}

func TestServer_StartPortInUse(t *testing.T) {
	reg := testutil.NewFakeRegistry(t)
	client := newClient(t, reg, false)

	first := sidecar.NewServer(sidecarConfig(), client, nil)
	require.NoError(t, first.Start(context.Background()))
	defer first.Shutdown(context.Background())

	_, port, err := splitAddr(first.Addr())
	require.NoError(t, err)
	cfg := sidecarConfig()
	cfg.Port = port

	second := sidecar.NewServer(cfg, client, nil)
	assert.Error(t, second.Start(context.Background()))
}

func splitAddr(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	return host, port, err
}

func TestServer_RateLimit(t *testing.T) {
	reg := testutil.NewFakeRegistry(t)
	cfg := sidecarConfig()
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.Rate = 0.001
	cfg.RateLimit.Capacity = 1
	require.NoError(t, sidecar.ValidateConfig(cfg))
	srv := sidecar.NewServer(cfg, newClient(t, reg, false), nil)

	assert.Equal(t, http.StatusOK, testutil.GET("/apps").Do(srv.Engine()).Status())
	assert.Equal(t, http.StatusTooManyRequests, testutil.GET("/apps").Do(srv.Engine()).Status())
	// /health 不限流，供注册中心探测
	assert.NotEqual(t, http.StatusTooManyRequests, testutil.GET("/health").Do(srv.Engine()).Status())
}
