// Package middleware 提供 sidecar 使用的 gin 中间件
package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TraceIDKeyDefault is the gin.Context and context.Context key; the
	// logger reads the same key.
	TraceIDKeyDefault = "trace_id"

	// TraceIDHeaderDefault is the request/response header.
	TraceIDHeaderDefault = "X-Trace-ID"
)

// TraceConfig Trace 中间件配置
type TraceConfig struct {
	TraceIDKey           string
	TraceIDHeader        string
	EnableResponseHeader bool
	Generator            func() string // 默认 uuid
}

// DefaultTraceConfig returns the default configuration.
func DefaultTraceConfig() TraceConfig {
	return TraceConfig{
		TraceIDKey:           TraceIDKeyDefault,
		TraceIDHeader:        TraceIDHeaderDefault,
		EnableResponseHeader: true,
		Generator:            uuid.NewString,
	}
}

// TraceID 提取或生成 TraceID，注入 gin.Context 与 request context
// 若请求已带有效的 OpenTelemetry span（otelgin 在前），优先使用其 TraceID
//
//	engine.Use(otelgin.Middleware("sidecar"), middleware.TraceID(middleware.DefaultTraceConfig()))
func TraceID(cfg TraceConfig) gin.HandlerFunc {
	if cfg.TraceIDKey == "" {
		cfg.TraceIDKey = TraceIDKeyDefault
	}
	if cfg.TraceIDHeader == "" {
		cfg.TraceIDHeader = TraceIDHeaderDefault
	}
	if cfg.Generator == nil {
		cfg.Generator = uuid.NewString
	}

	return func(c *gin.Context) {
		var traceID string
		if sc := trace.SpanFromContext(c.Request.Context()).SpanContext(); sc.IsValid() {
			traceID = sc.TraceID().String()
		} else {
			traceID = c.GetHeader(cfg.TraceIDHeader)
			if traceID == "" {
				traceID = cfg.Generator()
			}
			ctx := context.WithValue(c.Request.Context(), cfg.TraceIDKey, traceID) //nolint:staticcheck // logger 按字符串 key 读取
			c.Request = c.Request.WithContext(ctx)
		}

		c.Set(cfg.TraceIDKey, traceID)
		if cfg.EnableResponseHeader {
			c.Writer.Header().Set(cfg.TraceIDHeader, traceID)
		}
		c.Next()
	}
}

// GetTraceID returns the trace id stored under the default key.
func GetTraceID(c *gin.Context) string {
	return c.GetString(TraceIDKeyDefault)
}
