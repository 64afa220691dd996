package config

import "btpctl/internal/logging"

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level,omitempty"`   // debug, info, warn, error
	Format string `yaml:"format" json:"format,omitempty"` // console, json
	File   string `yaml:"file" json:"file,omitempty"`     // empty = stderr
}

// LoggerConfig converts to the logging package's config.
func (c LoggingConfig) LoggerConfig() logging.Config {
	return logging.Config{Level: c.Level, Format: c.Format, File: c.File}
}
