package sidecar

import (
	"net/http"
	"sort"
	"strings"

	"github.com/KOMKZ/go-yogan-eureka/breaker"
	"github.com/KOMKZ/go-yogan-eureka/eureka"
	"github.com/KOMKZ/go-yogan-eureka/health"
	"github.com/KOMKZ/go-yogan-eureka/httpx"
	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

type noRequest struct{}

type appRequest struct {
	App string `uri:"app"`
}

func (r appRequest) Validate() error {
	return validation.ValidateStruct(&r, validation.Field(&r.App, validation.Required))
}

type statusRequest struct {
	Status string `json:"status"`
}

func (r statusRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Status, validation.Required, validation.By(func(value interface{}) error {
			_, err := eureka.ParseStatus(value.(string))
			return err
		})),
	)
}

type metadataRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (r metadataRequest) Validate() error {
	return validation.ValidateStruct(&r, validation.Field(&r.Key, validation.Required))
}

// InfoResponse GET /info
type InfoResponse struct {
	App        string          `json:"app"`
	InstanceID string          `json:"instance_id"`
	State      string          `json:"state"`
	Instance   eureka.Instance `json:"instance"`
}

// InstancesResponse GET /apps/:app
type InstancesResponse struct {
	App       string            `json:"app"`
	Instances []eureka.Instance `json:"instances"`
}

// AppsResponse GET /apps：app 名 -> 缓存实例数
type AppsResponse struct {
	Apps      map[string]int `json:"apps"`
	Instances int            `json:"instances"`
}

// BreakerInfo 单个下游 app 的熔断状态
type BreakerInfo struct {
	State string `json:"state"`
	breaker.Snapshot
}

// BreakersResponse GET /breakers
type BreakersResponse struct {
	Enabled   bool          `json:"enabled"`
	Resources []BreakerInfo `json:"resources"`
}

func (s *Server) registerRoutes(r gin.IRouter) {
	r.GET("/health", s.handleHealth)
	r.GET("/info", httpx.Wrap(s.info))
	r.GET("/apps", httpx.Wrap(s.apps))
	r.GET("/apps/:app", httpx.Wrap(s.appInstances))
	r.GET("/apps/:app/endpoint", httpx.Wrap(s.endpoint))
	r.PUT("/instance/status", httpx.Wrap(s.setStatus))
	r.PUT("/instance/metadata", httpx.Wrap(s.setMetadata))
	r.GET("/breakers", httpx.Wrap(s.breakers))
	r.POST("/breakers/:app/reset", httpx.Wrap(s.resetBreaker))
}

// handleHealth 供注册中心的 healthCheckUrl 探测：UP 200，DOWN 503
func (s *Server) handleHealth(c *gin.Context) {
	resp := s.aggregator.Check(c.Request.Context())
	code := http.StatusOK
	if resp.Status != health.StatusUp {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}

func (s *Server) info(c *gin.Context, _ *noRequest) (*InfoResponse, error) {
	mgr := s.client.Instance()
	if mgr == nil {
		return nil, eureka.ErrNotRegistering.WithHTTPStatus(http.StatusNotFound)
	}
	return &InfoResponse{
		App:        mgr.App(),
		InstanceID: mgr.InstanceID(),
		State:      mgr.State().String(),
		Instance:   mgr.Instance(),
	}, nil
}

func (s *Server) apps(c *gin.Context, _ *noRequest) (*AppsResponse, error) {
	resp := &AppsResponse{Apps: map[string]int{}}
	reg := s.client.Registry()
	if reg == nil {
		return resp, nil
	}
	snap := reg.Snapshot()
	for _, app := range snap.Apps() {
		resp.Apps[app] = len(snap.Instances(app))
	}
	resp.Instances = snap.Len()
	return resp, nil
}

func (s *Server) appInstances(c *gin.Context, req *appRequest) (*InstancesResponse, error) {
	reg := s.client.Registry()
	if reg == nil {
		return nil, eureka.ErrUnknownApp.WithMsgf("unknown app %s: registry fetching is disabled", req.App)
	}
	instances := reg.Instances(req.App)
	if len(instances) == 0 {
		return nil, eureka.ErrUnknownApp.WithMsgf("unknown app %s", req.App)
	}
	return &InstancesResponse{App: instances[0].App, Instances: instances}, nil
}

func (s *Server) endpoint(c *gin.Context, req *appRequest) (*eureka.Endpoint, error) {
	ep, err := s.client.Resolve(req.App)
	if err != nil {
		return nil, err
	}
	return &ep, nil
}

// setStatus 覆盖注册状态；心跳失败后的重新注册会恢复为 UP
func (s *Server) setStatus(c *gin.Context, req *statusRequest) (*InfoResponse, error) {
	status, _ := eureka.ParseStatus(req.Status)
	if err := s.client.SetStatus(c.Request.Context(), status); err != nil {
		return nil, err
	}
	return s.info(c, nil)
}

func (s *Server) setMetadata(c *gin.Context, req *metadataRequest) (*InfoResponse, error) {
	if err := s.client.SetMetadata(c.Request.Context(), req.Key, req.Value); err != nil {
		return nil, err
	}
	return s.info(c, nil)
}

func (s *Server) breakers(c *gin.Context, _ *noRequest) (*BreakersResponse, error) {
	b := s.client.Breaker()
	resp := &BreakersResponse{Enabled: b.Enabled(), Resources: []BreakerInfo{}}
	names := make([]string, 0)
	for name := range b.States() {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		resp.Resources = append(resp.Resources, breakerInfo(b, name))
	}
	return resp, nil
}

func (s *Server) resetBreaker(c *gin.Context, req *appRequest) (*BreakerInfo, error) {
	b := s.client.Breaker()
	if !b.Enabled() {
		return nil, breaker.ErrInvalidConfig.WithMsg("circuit breaker is disabled").WithHTTPStatus(http.StatusNotFound)
	}
	name := strings.ToUpper(req.App)
	b.Reset(name)
	info := breakerInfo(b, name)
	return &info, nil
}

func breakerInfo(b *breaker.Breaker, name string) BreakerInfo {
	snap := b.Snapshot(name)
	return BreakerInfo{State: snap.State.String(), Snapshot: snap}
}
