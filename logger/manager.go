package logger

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Manager 管理按模块划分的 Logger（eureka、sidecar、cli ...）
type Manager struct {
	cfg        ManagerConfig
	loggers    map[string]*CtxZapLogger        // 模块名 -> CtxZapLogger
	zapLoggers map[string]*zap.Logger          // 模块名 -> 底层 zap.Logger（Sync 用）
	writers    map[string][]*lumberjack.Logger // 模块名 -> 文件写入器（关闭用）
	mu         sync.RWMutex
}

var (
	globalManager *Manager
	globalMu      sync.RWMutex
)

// NewManager creates an independent Manager; zero-valued fields are defaulted.
func NewManager(cfg ManagerConfig) *Manager {
	cfg.ApplyDefaults()
	return &Manager{
		cfg:        cfg,
		loggers:    make(map[string]*CtxZapLogger),
		zapLoggers: make(map[string]*zap.Logger),
		writers:    make(map[string][]*lumberjack.Logger),
	}
}

// InitManager replaces the global manager. Loggers obtained earlier keep
// writing through the old manager until they are fetched again.
func InitManager(cfg ManagerConfig) {
	m := NewManager(cfg)

	globalMu.Lock()
	old := globalManager
	globalManager = m
	globalMu.Unlock()

	if old != nil {
		old.CloseAll()
	}
}

func global() *Manager {
	globalMu.RLock()
	m := globalManager
	globalMu.RUnlock()
	if m != nil {
		return m
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalManager == nil {
		globalManager = NewManager(DefaultManagerConfig())
	}
	return globalManager
}

// GetLogger 获取模块 Logger（线程安全，按需创建），已自动带 module 字段
func (m *Manager) GetLogger(module string) *CtxZapLogger {
	m.mu.RLock()
	if l, ok := m.loggers[module]; ok {
		m.mu.RUnlock()
		return l
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// double check
	if l, ok := m.loggers[module]; ok {
		return l
	}

	base := m.build(module).With(zap.String("module", module))
	l := &CtxZapLogger{
		base:   base.WithOptions(zap.AddCallerSkip(1)), // 跳过 CtxZapLogger 包装层
		module: module,
		config: &m.cfg,
	}
	m.loggers[module] = l
	m.zapLoggers[module] = base
	return l
}

// build 创建底层 zap.Logger：console + info 文件 + error 文件
func (m *Manager) build(module string) *zap.Logger {
	level := ParseLevel(m.cfg.Level)
	encoder := newEncoder(m.cfg.Encoding)

	var cores []zapcore.Core
	if m.cfg.EnableConsole {
		consoleEncoder := encoder
		if m.cfg.ConsoleEncoding != "" && m.cfg.ConsoleEncoding != m.cfg.Encoding {
			consoleEncoder = newEncoder(m.cfg.ConsoleEncoding)
		}
		cores = append(cores, zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stderr), level))
	}

	if m.cfg.EnableFile {
		infoWriter := m.fileWriter(module, "info")
		errorWriter := m.fileWriter(module, "error")
		m.writers[module] = []*lumberjack.Logger{infoWriter, errorWriter}

		cores = append(cores,
			zapcore.NewCore(encoder, zapcore.AddSync(infoWriter), zap.LevelEnablerFunc(func(l zapcore.Level) bool {
				return l >= level && l < zapcore.ErrorLevel
			})),
			zapcore.NewCore(encoder, zapcore.AddSync(errorWriter), zap.LevelEnablerFunc(func(l zapcore.Level) bool {
				return l >= zapcore.ErrorLevel
			})),
		)
	}

	if len(cores) == 0 {
		return zap.NewNop()
	}

	var opts []zap.Option
	if m.cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}
	// 堆栈由 CtxZapLogger.ErrorCtx 按深度截取，这里不开启 zap.AddStacktrace
	return zap.New(zapcore.NewTee(cores...), opts...)
}

// fileWriter 使用 lumberjack 实现文件切割
func (m *Manager) fileWriter(module, level string) *lumberjack.Logger {
	filename := m.cfg.filePath(module, level)
	_ = os.MkdirAll(filepath.Dir(filename), 0o755)
	return &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    m.cfg.MaxSize,
		MaxBackups: m.cfg.MaxBackups,
		MaxAge:     m.cfg.MaxAge,
		Compress:   m.cfg.Compress,
		LocalTime:  true,
	}
}

// CloseAll flushes buffers and closes file handles.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, l := range m.zapLoggers {
		_ = l.Sync()
	}
	for _, ws := range m.writers {
		for _, w := range ws {
			_ = w.Close()
		}
	}
	m.loggers = make(map[string]*CtxZapLogger)
	m.zapLoggers = make(map[string]*zap.Logger)
	m.writers = make(map[string][]*lumberjack.Logger)
}

// Config returns the effective configuration.
func (m *Manager) Config() ManagerConfig {
	return m.cfg
}

func newEncoder(encoding string) zapcore.Encoder {
	encCfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		MessageKey:     "msg",
		CallerKey:      "caller",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	if encoding == "console" {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewConsoleEncoder(encCfg)
	}
	return zapcore.NewJSONEncoder(encCfg)
}

// ============================================
// 包级别便捷函数（走全局 Manager）
// ============================================

// GetLogger returns the module logger from the global manager.
//
//	log := logger.GetLogger("eureka")
//	log.InfoCtx(ctx, "registered", zap.String("app", app))
func GetLogger(module string) *CtxZapLogger {
	return global().GetLogger(module)
}

// CloseAll flushes the global manager.
func CloseAll() {
	globalMu.RLock()
	m := globalManager
	globalMu.RUnlock()
	if m != nil {
		m.CloseAll()
	}
}

// InfoCtx logs through the global manager.
func InfoCtx(ctx context.Context, module, msg string, fields ...zap.Field) {
	GetLogger(module).InfoCtx(ctx, msg, fields...)
}

// WarnCtx logs through the global manager.
func WarnCtx(ctx context.Context, module, msg string, fields ...zap.Field) {
	GetLogger(module).WarnCtx(ctx, msg, fields...)
}

// ErrorCtx logs through the global manager.
func ErrorCtx(ctx context.Context, module, msg string, fields ...zap.Field) {
	GetLogger(module).ErrorCtx(ctx, msg, fields...)
}
