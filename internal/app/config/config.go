package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ghalamif/pvarchive/internal/ports"
)

type Config struct {
	Archive ArchiveConfig `yaml:"archive"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

type ArchiveConfig struct {
	Dialect              ports.Dialect `yaml:"dialect"`
	Driver               string        `yaml:"driver"`
	DSN                  string        `yaml:"dsn"`
	SchemaPrefix         string        `yaml:"schema_prefix"`
	FetchSize            int           `yaml:"fetch_size"`
	Timeout              time.Duration `yaml:"timeout"`
	StoredProcedure      string        `yaml:"stored_procedure"`
	EquivalentPVPrefixes []string      `yaml:"equivalent_pv_prefixes"`
	KeepIntegers         bool          `yaml:"keep_integers"`
	// UseArrayBlob is false for archives that keep array elements in the
	// array_val table. Defaults to true.
	UseArrayBlob *bool `yaml:"use_array_blob"`
	MaxOpenConns int   `yaml:"max_open_conns"`
}

// ArrayBlobs reports whether array samples are stored as blobs.
func (a ArchiveConfig) ArrayBlobs() bool {
	return a.UseArrayBlob == nil || *a.UseArrayBlob
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Procedure and schema names are spliced into SQL text.
var (
	identPattern  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)
	prefixPattern = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*\.)?[A-Za-z0-9_]*$`)
)

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse decodes a YAML document, fills defaults and validates the result.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) ApplyDefaults() {
	if c.Archive.Dialect == "" {
		c.Archive.Dialect = ports.DialectPostgreSQL
	}
	if c.Archive.FetchSize == 0 {
		c.Archive.FetchSize = 10_000
	}
	if c.Archive.StoredProcedure == "" && c.Archive.Dialect == ports.DialectTimescaleDB {
		c.Archive.StoredProcedure = "auto_optimize"
	}
	if c.Archive.UseArrayBlob == nil {
		blobs := true
		c.Archive.UseArrayBlob = &blobs
	}
	if c.Archive.MaxOpenConns == 0 {
		c.Archive.MaxOpenConns = 8
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) Validate() error {
	a := c.Archive
	if !a.Dialect.Valid() {
		return fmt.Errorf("archive.dialect %q is not one of PostgreSQL, TimescaleDB, MySQL, Oracle", a.Dialect)
	}
	if a.DSN == "" {
		return fmt.Errorf("archive.dsn is required")
	}
	if a.Dialect == ports.DialectOracle && a.Driver == "" {
		return fmt.Errorf("archive.driver is required for Oracle")
	}
	if a.FetchSize < 0 {
		return fmt.Errorf("archive.fetch_size must be positive, got %d", a.FetchSize)
	}
	if a.Timeout < 0 {
		return fmt.Errorf("archive.timeout must not be negative, got %s", a.Timeout)
	}
	if a.MaxOpenConns < 0 {
		return fmt.Errorf("archive.max_open_conns must not be negative, got %d", a.MaxOpenConns)
	}
	if a.StoredProcedure != "" && !identPattern.MatchString(a.StoredProcedure) {
		return fmt.Errorf("archive.stored_procedure %q is not an identifier", a.StoredProcedure)
	}
	if !prefixPattern.MatchString(a.SchemaPrefix) {
		return fmt.Errorf("archive.schema_prefix %q is not a table name prefix", a.SchemaPrefix)
	}
	if c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required")
	}
	return nil
}
