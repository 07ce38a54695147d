package httpclient

import (
	"net/http"
	"time"
)

// config 内部配置结构（Client 级 + Request 级）
type config struct {
	baseURL string
	timeout time.Duration
	headers map[string]string

	beforeRequest func(*http.Request) error
}

// Option 配置选项
type Option func(*config)

// WithBaseURL prefixes relative request URLs.
func WithBaseURL(baseURL string) Option {
	return func(c *config) {
		c.baseURL = baseURL
	}
}

// WithTimeout bounds a single request, including reading the body.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithHeader sets one default header.
func WithHeader(key, value string) Option {
	return func(c *config) {
		c.headers[key] = value
	}
}

// WithBeforeRequest runs fn on the built *http.Request.
func WithBeforeRequest(fn func(*http.Request) error) Option {
	return func(c *config) {
		c.beforeRequest = fn
	}
}

func newConfig() *config {
	return &config{
		timeout: 30 * time.Second,
		headers: make(map[string]string),
	}
}

func applyOptions(cfg *config, opts []Option) {
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
}

// merge 合并配置（Request 级覆盖 Client 级）
func (c *config) merge(opts []Option) *config {
	merged := &config{
		baseURL:       c.baseURL,
		timeout:       c.timeout,
		headers:       make(map[string]string, len(c.headers)),
		beforeRequest: c.beforeRequest,
	}
	for k, v := range c.headers {
		merged.headers[k] = v
	}
	applyOptions(merged, opts)
	return merged
}
