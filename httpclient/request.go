package httpclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Request HTTP 请求封装；Body 以字节缓存，便于重试
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Query   url.Values
	Body    []byte
}

// NewRequest creates a request. urlStr may be relative to the base URL and
// may already carry escaped path segments.
func NewRequest(method, urlStr string) *Request {
	return &Request{
		Method:  method,
		URL:     urlStr,
		Headers: make(map[string]string),
		Query:   make(url.Values),
	}
}

// NewGetRequest creates a GET request.
func NewGetRequest(urlStr string) *Request {
	return NewRequest(http.MethodGet, urlStr)
}

// WithHeader sets a header.
func (r *Request) WithHeader(key, value string) *Request {
	r.Headers[key] = value
	return r
}

// WithQuery sets a query parameter; values are query-escaped on build.
func (r *Request) WithQuery(key, value string) *Request {
	r.Query.Set(key, value)
	return r
}

// WithBytes sets the raw body and content type.
func (r *Request) WithBytes(body []byte, contentType string) *Request {
	r.Body = body
	if contentType != "" {
		r.Headers["Content-Type"] = contentType
	}
	return r
}

// WithJSON encodes data as the JSON body.
func (r *Request) WithJSON(data interface{}) (*Request, error) {
	if data == nil {
		return r, nil
	}
	body, err := json.Marshal(data)
	if err != nil {
		return r, fmt.Errorf("marshal request body failed: %w", err)
	}
	return r.WithBytes(body, "application/json"), nil
}

// resolveURL joins baseURL and the request URL unless the latter is absolute.
func (r *Request) resolveURL(baseURL string) string {
	if baseURL == "" || strings.HasPrefix(r.URL, "http://") || strings.HasPrefix(r.URL, "https://") {
		return r.URL
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(r.URL, "/")
}

// buildHTTPRequest 构建 http.Request（不修改 r，可重复调用）
func (r *Request) buildHTTPRequest(cfg *config) (*http.Request, error) {
	fullURL := r.resolveURL(cfg.baseURL)

	if query := r.Query; len(query) > 0 {
		sep := "?"
		if strings.Contains(fullURL, "?") {
			sep = "&"
		}
		fullURL += sep + query.Encode()
	}

	var body io.Reader
	if len(r.Body) > 0 {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequest(r.Method, fullURL, body)
	if err != nil {
		return nil, err
	}

	for k, v := range cfg.headers {
		req.Header.Set(k, v)
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}
