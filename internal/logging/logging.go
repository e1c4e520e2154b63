// Package logging provides the process-wide structured logger, built on
// zap the way the rest of this codebase's ambient stack is.
package logging

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	once   sync.Once
	logger *zap.SugaredLogger
)

// Get returns the process-wide SugaredLogger, building it on first call
// from the RUNTIME_LOG_LEVEL environment variable (default "info").
func Get() *zap.SugaredLogger {
	once.Do(func() {
		logger = build(os.Getenv("RUNTIME_LOG_LEVEL"))
	})
	return logger
}

func build(levelName string) *zap.SugaredLogger {
	level := zapcore.InfoLevel
	if levelName != "" {
		if err := level.Set(levelName); err != nil {
			level = zapcore.InfoLevel
		}
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build()
	if err != nil {
		l = zap.NewNop()
	}
	return l.Sugar()
}

// NewNop returns a logger that discards everything, for tests that don't
// care about log output.
func NewNop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
