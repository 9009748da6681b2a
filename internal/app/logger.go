package app

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"partnerline/internal/config"
)

// NewLogger builds a zap logger writing to stderr. Format "console" selects
// the human-readable development encoder; anything else logs JSON.
func NewLogger(cfg *config.Config, verbose bool) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	format := "json"
	if cfg != nil {
		if cfg.Log.Level != "" {
			if err := level.Set(cfg.Log.Level); err != nil {
				return nil, fmt.Errorf("log level: %w", err)
			}
		}
		if cfg.Log.Format != "" {
			format = cfg.Log.Format
		}
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zcfg := zap.NewProductionConfig()
	if format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
