package utils

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig controls how InitLogger builds a Logger.
type LogConfig struct {
	Level       string // debug, info, warn, error, fatal (default info)
	Format      string // json, text (default json)
	Output      string // file path; empty or unwritable falls back to stderr
	Development bool
}

// Logger wraps a zap.Logger with a cached SugaredLogger and domain-specific
// field helpers.
type Logger struct {
	*zap.Logger
	sugar *zap.SugaredLogger
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug", "DEBUG":
		return zapcore.DebugLevel
	case "info", "INFO":
		return zapcore.InfoLevel
	case "warn", "WARN", "warning", "WARNING":
		return zapcore.WarnLevel
	case "error", "ERROR":
		return zapcore.ErrorLevel
	case "fatal", "FATAL":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func buildEncoder(format string, development bool) zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	if development {
		cfg = zap.NewDevelopmentEncoderConfig()
	}
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if format == "text" {
		return zapcore.NewConsoleEncoder(cfg)
	}
	return zapcore.NewJSONEncoder(cfg)
}

func openSink(path string) zapcore.WriteSyncer {
	if path == "" {
		return zapcore.AddSync(os.Stderr)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return zapcore.AddSync(os.Stderr)
	}
	return zapcore.AddSync(f)
}

// InitLogger builds a standalone Logger from cfg. It never panics: any
// misconfiguration (bad output path) falls back to stderr.
func InitLogger(cfg LogConfig) *Logger {
	encoder := buildEncoder(cfg.Format, cfg.Development)
	sink := openSink(cfg.Output)
	core := zapcore.NewCore(encoder, sink, parseLevel(cfg.Level))

	opts := []zap.Option{zap.AddCaller(), zap.AddCallerSkip(1)}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}
	zl := zap.New(core, opts...)
	return &Logger{Logger: zl, sugar: zl.Sugar()}
}

// With returns a child Logger with fields attached.
func (l *Logger) With(fields ...zap.Field) *Logger {
	child := l.Logger.With(fields...)
	return &Logger{Logger: child, sugar: child.Sugar()}
}

// WithComponent tags the logger with a subsystem name (router, dispatcher, ...).
func (l *Logger) WithComponent(name string) *Logger { return l.With(Component(name)) }

// WithGroup tags the logger with a group id.
func (l *Logger) WithGroup(groupJID string) *Logger { return l.With(Group(groupJID)) }

// WithDeal tags the logger with a deal id.
func (l *Logger) WithDeal(dealID string) *Logger { return l.With(Deal(dealID)) }

// WithSource tags the logger with a price source name.
func (l *Logger) WithSource(source string) *Logger { return l.With(Source(source)) }

// WithTrigger tags the logger with a trigger id.
func (l *Logger) WithTrigger(triggerID int) *Logger { return l.With(TriggerID(triggerID)) }

// Sugar returns the cached SugaredLogger.
func (l *Logger) Sugar() *zap.SugaredLogger { return l.sugar }

// ============================================================
// Domain field constructors
// ============================================================

func Group(groupJID string) zap.Field      { return zap.String("group_jid", groupJID) }
func Client(clientJID string) zap.Field    { return zap.String("client_jid", clientJID) }
func Deal(dealID string) zap.Field         { return zap.String("deal_id", dealID) }
func TriggerID(id int) zap.Field           { return zap.Int("trigger_id", id) }
func Source(source string) zap.Field       { return zap.String("source", source) }
func Symbol(symbol string) zap.Field       { return zap.String("symbol", symbol) }
func Side(side string) zap.Field           { return zap.String("side", side) }
func State(state string) zap.Field         { return zap.String("state", state) }
func Latency(ms float64) zap.Field         { return zap.Float64("latency_ms", ms) }
func RequestID(id string) zap.Field        { return zap.String("request_id", id) }
func Component(name string) zap.Field      { return zap.String("component", name) }
func Reason(reason string) zap.Field       { return zap.String("reason", reason) }

// Re-exported stdlib field constructors so callers only ever import this
// package, matching the teacher's logger surface.
var (
	String  = zap.String
	Int     = zap.Int
	Int64   = zap.Int64
	Float64 = zap.Float64
	Bool    = zap.Bool
	Err     = zap.Error
	Any     = zap.Any
)

func fieldsToInterface(fields []zap.Field) []interface{} {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(enc)
	}
	out := make([]interface{}, 0, len(enc.Fields)*2)
	for k, v := range enc.Fields {
		out = append(out, k, v)
	}
	return out
}

// ============================================================
// Global logger
// ============================================================

var (
	globalMu     sync.RWMutex
	globalLogger *Logger
)

// InitGlobalLogger builds a Logger from cfg and installs it as the process
// global.
func InitGlobalLogger(cfg LogConfig) *Logger {
	l := InitLogger(cfg)
	SetGlobalLogger(l)
	return l
}

// SetGlobalLogger installs l as the process-wide logger.
func SetGlobalLogger(l *Logger) {
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
}

// GetGlobalLogger returns the process-wide logger, lazily creating a
// default one (info level, json) if none has been installed yet.
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}
	l = InitLogger(LogConfig{})
	globalMu.Lock()
	if globalLogger == nil {
		globalLogger = l
	}
	l = globalLogger
	globalMu.Unlock()
	return l
}

// L is shorthand for GetGlobalLogger.
func L() *Logger { return GetGlobalLogger() }

func Debug(msg string, fields ...zap.Field) { L().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { L().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { L().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { L().Error(msg, fields...) }

func Debugf(format string, args ...interface{}) { L().sugar.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { L().sugar.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { L().sugar.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { L().sugar.Errorf(format, args...) }
