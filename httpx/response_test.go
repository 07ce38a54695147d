package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/KOMKZ/go-yogan-eureka/errcode"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var errTestMissing = errcode.Register(errcode.New(99, 1, "test",
	"test.missing", "thing not found", http.StatusNotFound))

func decode(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestOkJson(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	OkJson(c, map[string]string{"app": "ORDERS"})

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, 0, resp.Code)
	assert.Equal(t, "success", resp.Msg)
	assert.Equal(t, map[string]interface{}{"app": "ORDERS"}, resp.Data)
}

func TestNoRouteHandler(t *testing.T) {
	engine := gin.New()
	engine.NoRoute(NoRouteHandler())

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "route not found: GET /nope", decode(t, w).Msg)
}

func TestHandleError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantHTTP int
		wantCode int
		wantMsg  string
	}{
		{
			name:     "layered",
			err:      errTestMissing.WithMsgf("no UP instance of %s", "ORDERS"),
			wantHTTP: http.StatusNotFound,
			wantCode: errTestMissing.Code(),
			wantMsg:  "no UP instance of ORDERS",
		},
		{
			name:     "wrapped layered",
			err:      errors.Join(errors.New("context"), errTestMissing),
			wantHTTP: http.StatusNotFound,
			wantCode: errTestMissing.Code(),
			wantMsg:  "thing not found",
		},
		{
			name:     "plain",
			err:      errors.New("boom"),
			wantHTTP: http.StatusInternalServerError,
			wantCode: http.StatusInternalServerError,
			wantMsg:  "boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			HandleError(c, tt.err)

			assert.Equal(t, tt.wantHTTP, w.Code)
			resp := decode(t, w)
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.Equal(t, tt.wantMsg, resp.Msg)
		})
	}
}

func TestHandleError_Data(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	HandleError(c, errTestMissing.WithData("app", "ORDERS"))

	assert.Equal(t, map[string]interface{}{"app": "ORDERS"}, decode(t, w).Data)
}

func TestHandleError_Nil(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	HandleError(c, nil)
	assert.Zero(t, w.Body.Len())
}
