// Package logger builds the application's zap logger. The terminal belongs
// to the TUI, so logs go to a file.
package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects level, encoding and destination.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // console or json
	File   string
	// Development switches to zap's development config: stack traces on
	// warnings and panics on DPanic.
	Development bool
}

// ParseLevel maps a level name to a zap level, defaulting to info.
func ParseLevel(name string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "dpanic":
		return zapcore.DPanicLevel
	case "panic":
		return zapcore.PanicLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// New initializes a zap logger from opts.
func New(opts Options) (*zap.Logger, error) {
	var zapConfig zap.Config
	if opts.Development {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.Level = zap.NewAtomicLevelAt(ParseLevel(opts.Level))

	if strings.ToLower(opts.Format) == "json" {
		zapConfig.Encoding = "json"
	} else {
		zapConfig.Encoding = "console"
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	if opts.File != "" {
		zapConfig.OutputPaths = []string{opts.File}
		zapConfig.ErrorOutputPaths = []string{opts.File}
	}

	return zapConfig.Build()
}
