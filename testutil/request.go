package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
)

// RequestBuilder 针对 gin engine 的进程内请求
//
//	resp := testutil.PUT("/instance/status").WithJSON(body).Do(srv.Engine())
type RequestBuilder struct {
	method  string
	path    string
	body    interface{}
	headers http.Header
}

// NewRequest returns a builder for method and path (query included).
func NewRequest(method, path string) *RequestBuilder {
	return &RequestBuilder{method: method, path: path, headers: http.Header{}}
}

// GET /path
func GET(path string) *RequestBuilder { return NewRequest(http.MethodGet, path) }

// POST /path
func POST(path string) *RequestBuilder { return NewRequest(http.MethodPost, path) }

// PUT /path
func PUT(path string) *RequestBuilder { return NewRequest(http.MethodPut, path) }

// WithJSON sets body, encoded as JSON by Do.
func (rb *RequestBuilder) WithJSON(body interface{}) *RequestBuilder {
	rb.body = body
	return rb
}

// WithHeader sets a request header.
func (rb *RequestBuilder) WithHeader(key, value string) *RequestBuilder {
	rb.headers.Set(key, value)
	return rb
}

// WithTraceID sets the X-Trace-ID header read by the sidecar middleware.
func (rb *RequestBuilder) WithTraceID(traceID string) *RequestBuilder {
	return rb.WithHeader("X-Trace-ID", traceID)
}

// Do serves the request on engine through an httptest recorder.
func (rb *RequestBuilder) Do(engine *gin.Engine) *ResponseHelper {
	var payload []byte
	if rb.body != nil {
		payload, _ = json.Marshal(rb.body)
	}
	req := httptest.NewRequest(rb.method, rb.path, bytes.NewReader(payload))
	for k, vs := range rb.headers {
		req.Header[k] = vs
	}
	if rb.body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return &ResponseHelper{Recorder: w}
}

// ResponseHelper wraps the recorded response.
type ResponseHelper struct {
	Recorder *httptest.ResponseRecorder
}

// Status returns the status code.
func (rh *ResponseHelper) Status() int { return rh.Recorder.Code }

// Body returns the raw body, handy as a failure message.
func (rh *ResponseHelper) Body() string { return rh.Recorder.Body.String() }

// Header returns a response header.
func (rh *ResponseHelper) Header(key string) string { return rh.Recorder.Header().Get(key) }

// JSON decodes the body into v.
func (rh *ResponseHelper) JSON(v interface{}) error {
	return json.Unmarshal(rh.Recorder.Body.Bytes(), v)
}
