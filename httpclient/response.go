package httpclient

import (
	"encoding/json"
	"io"
	"net/http"
	"time"
)

// Response HTTP 响应封装（Body 已完整读取）
type Response struct {
	StatusCode int
	Status     string
	Headers    http.Header
	Body       []byte

	Duration time.Duration // 请求总耗时
}

// IsServerError reports a 5xx status.
func (r *Response) IsServerError() bool {
	return r.StatusCode >= 500 && r.StatusCode < 600
}

// JSON decodes the body into v.
func (r *Response) JSON(v interface{}) error {
	return json.Unmarshal(r.Body, v)
}

func newResponse(httpResp *http.Response) (*Response, error) {
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}
	return &Response{
		StatusCode: httpResp.StatusCode,
		Status:     httpResp.Status,
		Headers:    httpResp.Header,
		Body:       body,
	}, nil
}
