package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Client HTTP 客户端
type Client struct {
	httpClient *http.Client
	config     *config
}

// NewClient creates a client. The per-request timeout is applied through the
// request context, so http.Client itself carries none.
func NewClient(opts ...Option) *Client {
	cfg := newConfig()
	applyOptions(cfg, opts)
	return &Client{
		httpClient: &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()},
		config:     cfg,
	}
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.config.baseURL
}

// Do 执行请求；传输错误以 "http request failed: %w" 返回
// 非 2xx 响应不是错误，由调用方判断状态码。从不重试
func (c *Client) Do(ctx context.Context, req *Request, opts ...Option) (*Response, error) {
	cfg := c.config.merge(opts)
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	resp, err := c.doRequest(ctx, req, cfg)
	if err != nil {
		return nil, err
	}
	resp.Duration = time.Since(start)
	return resp, nil
}

func (c *Client) doRequest(ctx context.Context, req *Request, cfg *config) (*Response, error) {
	httpReq, err := req.buildHTTPRequest(cfg)
	if err != nil {
		return nil, fmt.Errorf("build http request failed: %w", err)
	}

	if cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}
	httpReq = httpReq.WithContext(ctx)

	if cfg.beforeRequest != nil {
		if err := cfg.beforeRequest(httpReq); err != nil {
			return nil, fmt.Errorf("before request hook failed: %w", err)
		}
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	resp, err := newResponse(httpResp)
	if err != nil {
		return nil, fmt.Errorf("http request failed: read body: %w", err)
	}
	return resp, nil
}
