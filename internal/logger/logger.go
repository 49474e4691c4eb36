// Package logger wraps a process-wide zap logger with optional file rotation.
package logger

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type contextKey string

const LoggerKey = contextKey("logger")

// Config controls where and how verbosely the logger writes.
type Config struct {
	Level      string // debug, info, warn, error
	Path       string // empty writes to stdout
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	Stderr     bool // console output to stderr instead of stdout
}

var (
	mu           sync.RWMutex
	globalLogger *zap.SugaredLogger
)

// Init initializes the global logger based on configuration.
func Init(cfg Config) {
	console := zapcore.AddSync(os.Stdout)
	if cfg.Stderr {
		console = zapcore.AddSync(os.Stderr)
	}
	writeSyncer := console

	if cfg.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			zap.NewExample().Sugar().Warnf("[LOG] failed to create log directory, writing to stdout: %v", err)
		} else {
			rotator := &lumberjack.Logger{
				Filename:   cfg.Path,
				MaxSize:    cfg.MaxSizeMB,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAgeDays,
				Compress:   cfg.Compress,
			}
			writeSyncer = zapcore.NewMultiWriteSyncer(console, zapcore.AddSync(rotator))
		}
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewConsoleEncoder(encoderConfig)

	core := zapcore.NewCore(encoder, writeSyncer, ParseLevel(cfg.Level))
	l := zap.New(core, zap.AddCaller()).Sugar()

	mu.Lock()
	globalLogger = l
	mu.Unlock()

	l.Infof("[LOG] Logging initialized (Level: %s, Path: %s)", ParseLevel(cfg.Level), cfg.Path)
}

// ParseLevel maps a config string to a zap level, defaulting to info.
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Sync flushes any buffered log entries.
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	if globalLogger != nil {
		return globalLogger.Sync()
	}
	return nil
}

// L returns the global logger, or a development logger before Init.
func L() *zap.SugaredLogger {
	mu.RLock()
	l := globalLogger
	mu.RUnlock()
	if l != nil {
		return l
	}
	dev, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewExample().Sugar()
	}
	return dev.Sugar()
}

// Get returns the logger from context or the global logger.
func Get(ctx context.Context) *zap.SugaredLogger {
	if ctx != nil {
		if l, ok := ctx.Value(LoggerKey).(*zap.SugaredLogger); ok {
			return l
		}
	}
	return L()
}

// WithContext adds logger to context.
func WithContext(ctx context.Context, l *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, LoggerKey, l)
}

// SetForTest replaces the global logger and returns a restore func.
func SetForTest(l *zap.SugaredLogger) func() {
	mu.Lock()
	prev := globalLogger
	globalLogger = l
	mu.Unlock()
	return func() {
		mu.Lock()
		globalLogger = prev
		mu.Unlock()
	}
}
