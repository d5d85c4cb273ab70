package logging

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	disabled atomic.Bool
	mu       sync.RWMutex
	base     = newLogger(false)
)

func newLogger(verbose bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.DisableStacktrace = true
	cfg.OutputPaths = []string{"stderr"}
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// Init rebuilds the package logger. Verbose enables debug output.
func Init(verbose bool) {
	logger := newLogger(verbose)
	mu.Lock()
	old := base
	base = logger
	mu.Unlock()
	_ = old.Sync()
}

// Replace swaps the package logger, e.g. for zaptest in tests.
func Replace(logger *zap.Logger) {
	mu.Lock()
	base = logger
	mu.Unlock()
}

// L returns the structured logger. Returns a no-op logger while disabled.
func L() *zap.Logger {
	if disabled.Load() {
		return zap.NewNop()
	}
	mu.RLock()
	defer mu.RUnlock()
	return base
}

func sugar() *zap.SugaredLogger {
	return L().WithOptions(zap.AddCallerSkip(1)).Sugar()
}

// Sync flushes buffered log entries
func Sync() {
	_ = L().Sync()
}

// Disable turns off all logging
func Disable() {
	disabled.Store(true)
}

// Enable turns logging back on
func Enable() {
	disabled.Store(false)
}

// Info logs an info message
func Info(v ...any) {
	sugar().Info(v...)
}

// Infof logs a formatted info message
func Infof(format string, v ...any) {
	sugar().Infof(format, v...)
}

// Error logs an error message
func Error(v ...any) {
	sugar().Error(v...)
}

// Errorf logs a formatted error message
func Errorf(format string, v ...any) {
	sugar().Errorf(format, v...)
}

// Warn logs a warning message
func Warn(v ...any) {
	sugar().Warn(v...)
}

// Warnf logs a formatted warning message
func Warnf(format string, v ...any) {
	sugar().Warnf(format, v...)
}

// Debug logs a debug message
func Debug(v ...any) {
	sugar().Debug(v...)
}

// Debugf logs a formatted debug message
func Debugf(format string, v ...any) {
	sugar().Debugf(format, v...)
}

// Logger is a named logger that can be embedded in structs
type Logger struct {
	name string
}

// Named returns a Logger that tags every entry with a component name
func Named(name string) Logger {
	return Logger{name: name}
}

// WithContext creates a new Logger (context is ignored, for API compatibility)
func WithContext(ctx context.Context) Logger {
	return Logger{}
}

func (l Logger) sugar() *zap.SugaredLogger {
	z := L().WithOptions(zap.AddCallerSkip(1))
	if l.name != "" {
		z = z.Named(l.name)
	}
	return z.Sugar()
}

// With returns the underlying zap logger with extra fields attached
func (l Logger) With(fields ...zap.Field) *zap.Logger {
	z := L()
	if l.name != "" {
		z = z.Named(l.name)
	}
	return z.With(fields...)
}

// Info logs an info message
func (l Logger) Info(v ...any) {
	l.sugar().Info(v...)
}

// Infof logs a formatted info message
func (l Logger) Infof(format string, v ...any) {
	l.sugar().Infof(format, v...)
}

// Warnf logs a formatted warning message
func (l Logger) Warnf(format string, v ...any) {
	l.sugar().Warnf(format, v...)
}

// Debugf logs a formatted debug message
func (l Logger) Debugf(format string, v ...any) {
	l.sugar().Debugf(format, v...)
}

// Error logs an error message
func (l Logger) Error(v ...any) {
	l.sugar().Error(v...)
}

// Errorf logs a formatted error message
func (l Logger) Errorf(format string, v ...any) {
	l.sugar().Errorf(format, v...)
}
