package logger

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TestCtxLogger 测试专用 Logger，日志记录到内存便于断言
//
//	log := logger.NewTestCtxLogger()
//	mgr := eureka.NewInstanceManager(api, inst, cfg, eureka.WithLogger(log))
//	assert.True(t, log.HasLog("WARN", "heartbeat rejected, re-registering"))
type TestCtxLogger struct {
	store *logStore
}

type logStore struct {
	mu   sync.RWMutex
	logs []LogEntry
}

// LogEntry is one recorded entry.
type LogEntry struct {
	Level   string
	Message string
	TraceID string
	Fields  map[string]interface{}
}

// NewTestCtxLogger creates an empty in-memory logger.
func NewTestCtxLogger() *TestCtxLogger {
	return &TestCtxLogger{store: &logStore{}}
}

func (t *TestCtxLogger) record(ctx context.Context, level, msg string, fields []zap.Field) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.logs = append(t.store.logs, LogEntry{
		Level:   level,
		Message: msg,
		TraceID: extractTraceIDFromContext(ctx, nil),
		Fields:  extractFieldsMap(fields),
	})
}

// DebugCtx records a DEBUG entry.
func (t *TestCtxLogger) DebugCtx(ctx context.Context, msg string, fields ...zap.Field) {
	t.record(ctx, "DEBUG", msg, fields)
}

// InfoCtx records an INFO entry.
func (t *TestCtxLogger) InfoCtx(ctx context.Context, msg string, fields ...zap.Field) {
	t.record(ctx, "INFO", msg, fields)
}

// WarnCtx records a WARN entry.
func (t *TestCtxLogger) WarnCtx(ctx context.Context, msg string, fields ...zap.Field) {
	t.record(ctx, "WARN", msg, fields)
}

// ErrorCtx records an ERROR entry.
func (t *TestCtxLogger) ErrorCtx(ctx context.Context, msg string, fields ...zap.Field) {
	t.record(ctx, "ERROR", msg, fields)
}

// With returns a logger sharing the same store; preset fields are not tracked.
func (t *TestCtxLogger) With(fields ...zap.Field) *TestCtxLogger {
	return &TestCtxLogger{store: t.store}
}

// HasLog reports whether an entry with level and message exists.
func (t *TestCtxLogger) HasLog(level, message string) bool {
	return t.CountMessage(level, message) > 0
}

// HasLogWithTraceID also matches the trace id.
func (t *TestCtxLogger) HasLogWithTraceID(level, message, traceID string) bool {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	for _, e := range t.store.logs {
		if e.Level == level && e.Message == message && e.TraceID == traceID {
			return true
		}
	}
	return false
}

// HasLogWithField also matches one field value.
func (t *TestCtxLogger) HasLogWithField(level, message, key string, value interface{}) bool {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	for _, e := range t.store.logs {
		if e.Level == level && e.Message == message {
			if v, ok := e.Fields[key]; ok && v == value {
				return true
			}
		}
	}
	return false
}

// CountLogs counts entries at level.
func (t *TestCtxLogger) CountLogs(level string) int {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	n := 0
	for _, e := range t.store.logs {
		if e.Level == level {
			n++
		}
	}
	return n
}

// CountMessage counts entries with level and message.
func (t *TestCtxLogger) CountMessage(level, message string) int {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	n := 0
	for _, e := range t.store.logs {
		if e.Level == level && e.Message == message {
			n++
		}
	}
	return n
}

// Logs returns a copy of all entries.
func (t *TestCtxLogger) Logs() []LogEntry {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	out := make([]LogEntry, len(t.store.logs))
	copy(out, t.store.logs)
	return out
}

// Clear drops all entries.
func (t *TestCtxLogger) Clear() {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.logs = nil
}

// extractFieldsMap encodes zap fields into a plain map for assertions.
func extractFieldsMap(fields []zap.Field) map[string]interface{} {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(enc)
	}
	return enc.Fields
}
