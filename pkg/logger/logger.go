// Package logger owns the process-wide zap logger. Packages take a child via
// WithModule at construction time; tests swap the root with Replace.
package logger

import (
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var root atomic.Pointer[zap.Logger]

func init() {
	root.Store(zap.NewNop())
}

// Init builds the root logger. level is a zap level name and falls back to
// info; format "console" selects the colourised development encoder, anything
// else JSON.
func Init(level string, format ...string) error {
	cfg := zap.NewProductionConfig()
	if len(format) > 0 && strings.EqualFold(strings.TrimSpace(format[0]), "console") {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	lvl, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	built, err := cfg.Build()
	if err != nil {
		return err
	}
	Replace(built.Named("happycat"))
	return nil
}

// Replace installs l as the root logger and returns a func restoring the
// previous one. A nil l installs a no-op logger.
func Replace(l *zap.Logger) (restore func()) {
	if l == nil {
		l = zap.NewNop()
	}
	prev := root.Swap(l)
	return func() { root.Store(prev) }
}

func Logger() *zap.Logger {
	return root.Load()
}

func Sync() error {
	return Logger().Sync()
}

// WithModule returns a child of the current root tagged with module.
func WithModule(module string) *zap.Logger {
	return Logger().With(zap.String("module", module))
}
