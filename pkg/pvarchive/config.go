package pvarchive

import (
	"github.com/ghalamif/pvarchive/internal/app/config"
)

// Config re-exports the root configuration struct so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	// ArchiveConfig selects the database and tunes queries.
	ArchiveConfig = config.ArchiveConfig
	// MetricsConfig configures the metrics HTTP server.
	MetricsConfig = config.MetricsConfig
	// LogConfig sets the log level.
	LogConfig = config.LogConfig
)

// LoadConfig loads YAML from disk using the internal config reader.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// ParseConfig reads YAML from memory, applying the same defaults and checks
// as LoadConfig.
func ParseConfig(raw []byte) (*Config, error) {
	return config.Parse(raw)
}
