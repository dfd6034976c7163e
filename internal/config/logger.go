package config

import (
	"fmt"

	"go.uber.org/zap"
)

// InitLogger builds the process zap.Logger based on general.log_level.
func InitLogger(general GeneralConfig) (*zap.Logger, error) {
	var logger *zap.Logger
	var err error

	switch general.LogLevel {
	case "debug":
		logger, err = zap.NewDevelopment()
	case "", "info", "warn", "error":
		logger, err = zap.NewProduction()
	default:
		return nil, fmt.Errorf("invalid general.log_level %q", general.LogLevel)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	return logger, nil
}
