package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// CtxLogger is the logging surface components depend on.
// Both CtxZapLogger and TestCtxLogger implement it.
type CtxLogger interface {
	DebugCtx(ctx context.Context, msg string, fields ...zap.Field)
	InfoCtx(ctx context.Context, msg string, fields ...zap.Field)
	WarnCtx(ctx context.Context, msg string, fields ...zap.Field)
	ErrorCtx(ctx context.Context, msg string, fields ...zap.Field)
}

var (
	_ CtxLogger = (*CtxZapLogger)(nil)
	_ CtxLogger = (*TestCtxLogger)(nil)
)

// CtxZapLogger Context-Aware 的 Zap Logger 包装器
// module 在创建时绑定，调用时只传 ctx；通过 GetLogger() 获取
type CtxZapLogger struct {
	base   *zap.Logger
	module string
	config *ManagerConfig
}

// DebugCtx logs at debug level with trace enrichment.
func (l *CtxZapLogger) DebugCtx(ctx context.Context, msg string, fields ...zap.Field) {
	l.base.Debug(msg, l.enrichFields(ctx, fields)...)
}

// InfoCtx logs at info level with trace enrichment.
func (l *CtxZapLogger) InfoCtx(ctx context.Context, msg string, fields ...zap.Field) {
	l.base.Info(msg, l.enrichFields(ctx, fields)...)
}

// WarnCtx logs at warn level with trace enrichment.
func (l *CtxZapLogger) WarnCtx(ctx context.Context, msg string, fields ...zap.Field) {
	l.base.Warn(msg, l.enrichFields(ctx, fields)...)
}

// ErrorCtx logs at error level and, when configured, appends a depth-limited stack.
func (l *CtxZapLogger) ErrorCtx(ctx context.Context, msg string, fields ...zap.Field) {
	enriched := l.enrichFields(ctx, fields)
	if l.config != nil && shouldCaptureStacktrace("error", *l.config) {
		// skip=3 drops runtime.Callers, CaptureStacktrace and ErrorCtx
		if stack := CaptureStacktrace(3, l.config.StacktraceDepth); stack != "" {
			enriched = append(enriched, zap.String("stack", stack))
		}
	}
	l.base.Error(msg, enriched...)
}

// Info is InfoCtx without a context.
func (l *CtxZapLogger) Info(msg string, fields ...zap.Field) {
	l.InfoCtx(context.Background(), msg, fields...)
}

// Error is ErrorCtx without a context.
func (l *CtxZapLogger) Error(msg string, fields ...zap.Field) {
	l.ErrorCtx(context.Background(), msg, fields...)
}

// With returns a child logger carrying preset fields.
func (l *CtxZapLogger) With(fields ...zap.Field) *CtxZapLogger {
	return &CtxZapLogger{
		base:   l.base.With(fields...),
		module: l.module,
		config: l.config,
	}
}

// Module returns the bound module name.
func (l *CtxZapLogger) Module() string {
	return l.module
}

// enrichFields 注入 app_name 与 trace_id（module 字段已在 Manager 中添加）
func (l *CtxZapLogger) enrichFields(ctx context.Context, fields []zap.Field) []zap.Field {
	if l.config == nil {
		return fields
	}

	enriched := make([]zap.Field, 0, len(fields)+2)
	enriched = append(enriched, zap.String("app_name", l.config.AppName))

	if l.config.EnableTraceID {
		if traceID := extractTraceIDFromContext(ctx, l.config); traceID != "" {
			name := l.config.TraceIDFieldName
			if name == "" {
				name = "trace_id"
			}
			enriched = append(enriched, zap.String(name, traceID))
		}
	}
	return append(enriched, fields...)
}

// extractTraceIDFromContext 优先级：OpenTelemetry Span > 配置的 key > "trace_id"
func extractTraceIDFromContext(ctx context.Context, cfg *ManagerConfig) string {
	if ctx == nil {
		return ""
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		return sc.TraceID().String()
	}

	keys := []any{"trace_id"}
	if cfg != nil && cfg.TraceIDKey != "" && cfg.TraceIDKey != "trace_id" {
		keys = append([]any{cfg.TraceIDKey}, keys...)
	}
	for _, k := range keys {
		if v, ok := ctx.Value(k).(string); ok && v != "" {
			return v
		}
	}
	return ""
}
