package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/KOMKZ/go-yogan-eureka/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Recovery 捕获 handler panic，记录堆栈并返回统一的 500 响应（不向客户端暴露堆栈）
func Recovery(log logger.CtxLogger) gin.HandlerFunc {
	if log == nil {
		log = logger.GetLogger("sidecar")
	}
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.ErrorCtx(c.Request.Context(), "panic recovered",
					zap.Any("error", err),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.String("client_ip", c.ClientIP()),
					zap.String("stack", string(debug.Stack())),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"code": http.StatusInternalServerError,
					"msg":  fmt.Sprintf("internal server error: %v", err),
				})
			}
		}()
		c.Next()
	}
}
