// Package httpx 提供 gin handler 的统一响应与错误映射
package httpx

import (
	"net/http"

	"github.com/KOMKZ/go-yogan-eureka/errcode"
	"github.com/KOMKZ/go-yogan-eureka/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrBadRequest 请求体或参数无法解析
var ErrBadRequest = errcode.Register(errcode.New(1, 1001, "common",
	"error.common.bad_request", "bad request", http.StatusBadRequest))

// Response 统一响应格式
type Response struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg,omitempty"`
	Data interface{} `json:"data,omitempty"`
}

// OkJson 200 成功响应
func OkJson(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Code: 0, Msg: "success", Data: data})
}

// NotFoundJson 404
func NotFoundJson(c *gin.Context, msg string) {
	c.JSON(http.StatusNotFound, Response{Code: http.StatusNotFound, Msg: msg})
}

// NoRouteHandler is registered with engine.NoRoute.
func NoRouteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		NotFoundJson(c, "route not found: "+c.Request.Method+" "+c.Request.URL.Path)
	}
}

// HandleError LayeredError 按其 HTTPStatus、code、message 和 data 返回；
// 其他错误一律 500。5xx 记录 ERROR 日志
func HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	ctx := c.Request.Context()

	le, ok := errcode.As(err)
	if !ok {
		logger.ErrorCtx(ctx, "httpx", "request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{
			Code: http.StatusInternalServerError,
			Msg:  err.Error(),
		})
		return
	}

	if le.HTTPStatus() >= http.StatusInternalServerError {
		logger.ErrorCtx(ctx, "httpx", "request failed",
			zap.Int("error_code", le.Code()),
			zap.String("error_chain", err.Error()))
	}
	c.JSON(le.HTTPStatus(), Response{
		Code: le.Code(),
		Msg:  le.Message(),
		Data: le.Data(),
	})
}
