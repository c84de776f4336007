// Package conf provides configuration management for fallguard.
package conf

import "github.com/tphakala/fallguard/internal/logger"

// GetLogger returns the config package logger scoped to the config module.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
