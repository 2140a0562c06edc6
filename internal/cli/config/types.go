// Package config loads CLI configuration from file, environment, and flags.
package config

import (
	"github.com/starmill-data/starmill/internal/adapter"
)

// Defaults applied before any other configuration source.
const (
	DefaultStateFile = ".starmill/state.db"
	DefaultDWSchema  = "dw"
	DefaultOutput    = "table"
)

// TargetConfig describes the warehouse connection.
type TargetConfig struct {
	// Type is the adapter type ("duckdb", "postgres").
	Type string `koanf:"type"`
	// Path is the database file for file-based targets.
	Path string `koanf:"path"`

	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Database string `koanf:"database"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Schema   string `koanf:"schema"`

	Options map[string]string `koanf:"options"`
}

// Config is the resolved CLI configuration.
type Config struct {
	// StatePath is the SQLite state database location.
	StatePath string `koanf:"state_path"`
	// DWSchema is the warehouse schema star tables live in.
	DWSchema string `koanf:"dw_schema"`
	Verbose  bool   `koanf:"verbose"`
	// Output selects the result rendering (table|json|csv|md).
	Output string `koanf:"output"`

	Target *TargetConfig `koanf:"target"`
}

// AdapterConfig translates the target into an adapter config.
func (c *Config) AdapterConfig() adapter.Config {
	t := c.Target
	if t == nil {
		t = &TargetConfig{Type: "duckdb"}
	}
	return adapter.Config{
		Type:     t.Type,
		Path:     t.Path,
		Host:     t.Host,
		Port:     t.Port,
		Database: t.Database,
		Username: t.User,
		Password: t.Password,
		Schema:   t.Schema,
		Options:  t.Options,
	}
}
