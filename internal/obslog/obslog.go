// Package obslog constructs the zap loggers shared by every process in
// this module. No package-level logger is kept; each constructor receives
// and threads a *zap.Logger explicitly (spec §9 — no global singleton
// logger).
package obslog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls logger construction.
type Config struct {
	Level       string // debug|info|warn|error
	Development bool
	Service     string
}

// New builds a production-shaped zap logger named after the service.
func New(cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, err
		}
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.EncoderConfig.TimeKey = "ts"

	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	if cfg.Service != "" {
		logger = logger.Named(cfg.Service)
	}
	return logger, nil
}
