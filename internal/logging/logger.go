// Package logging provides zap logger helpers.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/jobscout-crawler/internal/crawler"
)

// New builds a zap.Logger configured for development or production. level overrides the
// default level when non-empty ("debug", "info", "warn", "error").
func New(development bool, level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.EncoderConfig.TimeKey = "ts"
	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

// JobFields returns the standard fields attached to every per-job log line.
func JobFields(item crawler.QueueItem) []zap.Field {
	return []zap.Field{
		zap.String("job_key", item.Key),
		zap.String("url", item.Job.URL),
		zap.String("source", item.Job.Source),
		zap.Int("depth", item.Job.Depth),
		zap.Int("attempt", item.Attempt),
	}
}
