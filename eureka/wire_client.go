package eureka

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/KOMKZ/go-yogan-eureka/httpclient"
)

// WireClient 注册中心 REST 操作；无状态、不重试，重试策略由调用方决定
type WireClient interface {
	Register(ctx context.Context, app string, inst *Instance) error
	Deregister(ctx context.Context, app, id string) error
	Heartbeat(ctx context.Context, app, id string) error
	FetchAll(ctx context.Context) ([]Instance, error)
	FetchByApp(ctx context.Context, app string) ([]Instance, error)
	FetchByInstance(ctx context.Context, app, id string) (*Instance, error)
	FetchByVIP(ctx context.Context, vip string) ([]Instance, error)
	FetchBySecureVIP(ctx context.Context, svip string) ([]Instance, error)
	SetStatus(ctx context.Context, app, id string, status Status) error
	SetMetadata(ctx context.Context, app, id, key, value string) error
}

var _ WireClient = (*HTTPWireClient)(nil)

// HTTPWireClient speaks the registry protocol over httpclient.
type HTTPWireClient struct {
	http  *httpclient.Client
	codec Codec
}

// NewHTTPWireClient binds a client to baseURL ({scheme}://{host}:{port}{servicePath}).
// Every request is bounded by timeout and sent once.
func NewHTTPWireClient(baseURL string, codec Codec, timeout time.Duration, opts ...httpclient.Option) *HTTPWireClient {
	if codec == nil {
		codec = xmlCodec{}
	}
	base := []httpclient.Option{
		httpclient.WithBaseURL(baseURL),
		httpclient.WithTimeout(timeout),
	}
	base = append(base, opts...)
	return &HTTPWireClient{
		http:  httpclient.NewClient(base...),
		codec: codec,
	}
}

// BaseURL returns the registry base URL.
func (c *HTTPWireClient) BaseURL() string {
	return c.http.BaseURL()
}

// appPath builds /apps/{app}[/{id}...] with path-segment escaping.
func appPath(app string, rest ...string) string {
	p := "/apps/" + url.PathEscape(app)
	for _, seg := range rest {
		p += "/" + url.PathEscape(seg)
	}
	return p
}

// Register POST /apps/{app}, expects 204.
func (c *HTTPWireClient) Register(ctx context.Context, app string, inst *Instance) error {
	body, err := c.codec.EncodeInstance(inst)
	if err != nil {
		return ErrParse.WithMsg("register: encode instance").Wrap(err)
	}
	req := httpclient.NewRequest(http.MethodPost, appPath(app)).
		WithBytes(body, c.codec.ContentType())
	return c.expect(ctx, "register", req, http.StatusNoContent)
}

// Deregister DELETE /apps/{app}/{id}, expects 200.
func (c *HTTPWireClient) Deregister(ctx context.Context, app, id string) error {
	req := httpclient.NewRequest(http.MethodDelete, appPath(app, id))
	return c.expect(ctx, "deregister", req, http.StatusOK)
}

// Heartbeat PUT /apps/{app}/{id}, expects 200; 404 is ErrUnexpectedState.
func (c *HTTPWireClient) Heartbeat(ctx context.Context, app, id string) error {
	req := httpclient.NewRequest(http.MethodPut, appPath(app, id))
	resp, err := c.send(ctx, "heartbeat", req)
	if err != nil {
		return err
	}
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return ErrUnexpectedState.WithMsgf("heartbeat: instance %s/%s not registered", app, id)
	}
	return unexpectedStatus("heartbeat", resp.StatusCode)
}

// FetchAll GET /apps.
func (c *HTTPWireClient) FetchAll(ctx context.Context) ([]Instance, error) {
	return c.fetchApplications(ctx, "fetch all", "/apps")
}

// FetchByApp GET /apps/{app}.
func (c *HTTPWireClient) FetchByApp(ctx context.Context, app string) ([]Instance, error) {
	data, err := c.fetch(ctx, "fetch app", appPath(app))
	if err != nil {
		return nil, err
	}
	doc, err := c.codec.DecodeApplication(data)
	if err != nil {
		return nil, ErrParse.WithMsg("fetch app: decode application").Wrap(err)
	}
	return doc.Instances, nil
}

// FetchByInstance GET /apps/{app}/{id}.
func (c *HTTPWireClient) FetchByInstance(ctx context.Context, app, id string) (*Instance, error) {
	data, err := c.fetch(ctx, "fetch instance", appPath(app, id))
	if err != nil {
		return nil, err
	}
	inst, err := c.codec.DecodeInstance(data)
	if err != nil {
		return nil, ErrParse.WithMsg("fetch instance: decode instance").Wrap(err)
	}
	return inst, nil
}

// FetchByVIP GET /vips/{vip}.
func (c *HTTPWireClient) FetchByVIP(ctx context.Context, vip string) ([]Instance, error) {
	return c.fetchApplications(ctx, "fetch vip", "/vips/"+url.PathEscape(vip))
}

// FetchBySecureVIP GET /svips/{svip}.
func (c *HTTPWireClient) FetchBySecureVIP(ctx context.Context, svip string) ([]Instance, error) {
	return c.fetchApplications(ctx, "fetch svip", "/svips/"+url.PathEscape(svip))
}

// SetStatus PUT /apps/{app}/{id}/status?value={status}, expects 200.
func (c *HTTPWireClient) SetStatus(ctx context.Context, app, id string, status Status) error {
	token, err := status.MarshalText()
	if err != nil {
		return ErrParse.WithMsg("set status: encode status").Wrap(err)
	}
	req := httpclient.NewRequest(http.MethodPut, appPath(app, id, "status")).
		WithQuery("value", string(token))
	return c.expect(ctx, "set status", req, http.StatusOK)
}

// SetMetadata PUT /apps/{app}/{id}/metadata?{key}={value}, expects 200.
func (c *HTTPWireClient) SetMetadata(ctx context.Context, app, id, key, value string) error {
	req := httpclient.NewRequest(http.MethodPut, appPath(app, id, "metadata")).
		WithQuery(key, value)
	return c.expect(ctx, "set metadata", req, http.StatusOK)
}

func (c *HTTPWireClient) fetchApplications(ctx context.Context, op, path string) ([]Instance, error) {
	data, err := c.fetch(ctx, op, path)
	if err != nil {
		return nil, err
	}
	doc, err := c.codec.DecodeApplications(data)
	if err != nil {
		return nil, ErrParse.WithMsgf("%s: decode applications", op).Wrap(err)
	}
	return doc.Flatten(), nil
}

func (c *HTTPWireClient) fetch(ctx context.Context, op, path string) ([]byte, error) {
	req := httpclient.NewGetRequest(path)
	resp, err := c.send(ctx, op, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, unexpectedStatus(op, resp.StatusCode)
	}
	return resp.Body, nil
}

func (c *HTTPWireClient) expect(ctx context.Context, op string, req *httpclient.Request, want int) error {
	resp, err := c.send(ctx, op, req)
	if err != nil {
		return err
	}
	if resp.StatusCode != want {
		return unexpectedStatus(op, resp.StatusCode)
	}
	return nil
}

func (c *HTTPWireClient) send(ctx context.Context, op string, req *httpclient.Request) (*httpclient.Response, error) {
	req.WithHeader("Accept", c.codec.ContentType())
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, ErrNetwork.WithMsgf("%s: registry network failure", op).WithData("op", op).Wrap(err)
	}
	return resp, nil
}
