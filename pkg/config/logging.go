package config

import (
	"github.com/marmos91/dittovault/internal/logger"
)

// ConfigureLogging applies the logging section to the process logger.
func ConfigureLogging(cfg *LoggingConfig) error {
	logger.SetLevel(cfg.Level)
	logger.SetFormat(cfg.Format)
	return logger.SetOutput(cfg.Output)
}
