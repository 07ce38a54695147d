package httpx

import (
	"github.com/KOMKZ/go-yogan-eureka/validator"
	"github.com/gin-gonic/gin"
)

// HandlerFunc 泛型 handler：Req 由 Parse 绑定，返回值经 OkJson 输出
type HandlerFunc[Req any, Resp any] func(c *gin.Context, req *Req) (*Resp, error)

// Wrap 解析 → 校验（Req 实现 validator.Validatable 时）→ 调用 → 响应
//
//	router.PUT("/instance/status", httpx.Wrap(s.setStatus))
func Wrap[Req any, Resp any](handler HandlerFunc[Req, Resp]) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req Req
		if err := Parse(c, &req); err != nil {
			HandleError(c, err)
			return
		}

		if v, ok := any(&req).(validator.Validatable); ok {
			if err := validator.Validate(v); err != nil {
				HandleError(c, err)
				return
			}
		}

		resp, err := handler(c, &req)
		if err != nil {
			HandleError(c, err)
			return
		}
		OkJson(c, resp)
	}
}
