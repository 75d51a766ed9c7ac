// Package logging builds the zap loggers used by the tabcart binaries.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Options struct {
	// Level is a zap level name; empty means info.
	Level string
	// Verbose forces debug level.
	Verbose     bool
	Development bool
	// OutputPaths overrides the default stderr sink, e.g. a file for the TUI.
	OutputPaths []string
}

func New(opts Options) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
	}

	level := zapcore.InfoLevel
	if s := strings.TrimSpace(opts.Level); s != "" {
		if err := level.UnmarshalText([]byte(s)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", s, err)
		}
	}
	if opts.Verbose {
		level = zapcore.DebugLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	if len(opts.OutputPaths) > 0 {
		cfg.OutputPaths = opts.OutputPaths
		cfg.ErrorOutputPaths = opts.OutputPaths
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// Nop returns a logger that discards everything.
func Nop() *zap.Logger { return zap.NewNop() }
