// Package logger builds the zap logger shared by the CLI and the storage
// components.
package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// L is the package level logger used across the application.
var L = zap.NewNop()

// Set replaces the default logger with the provided one.
func Set(l *zap.Logger) {
	if l != nil {
		L = l
	}
}

// Config holds logging configuration options.
type Config struct {
	Level  string // debug|info|warn|error
	Format string // json|console
}

// New creates a zap logger from cfg. An empty Format means json.
func New(cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.Set(strings.ToLower(cfg.Level)); err != nil {
			return nil, err
		}
	}

	var zcfg zap.Config
	if strings.EqualFold(cfg.Format, "console") {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	// CLI output goes to stdout; diagnostics stay on stderr.
	zcfg.OutputPaths = []string{"stderr"}

	l, err := zcfg.Build(zap.AddCaller())
	if err != nil {
		return nil, err
	}
	return l.With(zap.String("service", "lbflow")), nil
}

// Sync flushes any buffered log entries.
func Sync(l *zap.Logger) {
	_ = l.Sync()
}

// Component returns a zap field for the component name.
func Component(name string) zap.Field { return zap.String("component", name) }

// Backend returns a zap field for the backend type.
func Backend(t string) zap.Field { return zap.String("backend", t) }

// Migration returns a zap field for a migration id.
func Migration(id string) zap.Field { return zap.String("migration", id) }

// Pool returns a zap field for a pool key.
func Pool(key string) zap.Field { return zap.String("pool", key) }
