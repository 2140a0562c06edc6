// Package etl loads star-schema warehouses from raw source tables. A sync
// runs dimension loads (content-hash deduplicated) followed by the fact
// load, inside a single transaction, in either full or incremental mode.
package etl

import (
	"fmt"
	"strings"
	"time"
)

// SyncMode selects how a sync treats existing warehouse rows.
type SyncMode string

const (
	// SyncModeFull truncates the star schema and reloads everything.
	SyncModeFull SyncMode = "full"
	// SyncModeIncremental appends rows newer than the last watermark.
	SyncModeIncremental SyncMode = "incremental"
)

// DefaultSchema is the warehouse schema used when a config names none.
const DefaultSchema = "dw"

// ColumnMapping routes one source column (or SQL expression) into one
// warehouse column.
type ColumnMapping struct {
	SourceTable  string `json:"source_table" yaml:"source_table"`
	SourceColumn string `json:"source_column" yaml:"source_column"`
	TargetTable  string `json:"target_table" yaml:"target_table"`
	TargetColumn string `json:"target_column" yaml:"target_column"`

	// Transformation, when set, is a SQL expression used instead of the
	// bare source column reference.
	Transformation string `json:"transformation,omitempty" yaml:"transformation,omitempty"`
}

// Expr returns the SQL expression extracting this mapping's value.
func (m ColumnMapping) Expr() string {
	if m.Transformation != "" {
		return m.Transformation
	}
	return m.SourceTable + "." + m.SourceColumn
}

// SourceJoin declares how two source tables connect, so multi-table
// extraction queries never fall back to cross joins.
type SourceJoin struct {
	LeftTable  string `json:"left_table" yaml:"left_table"`
	LeftKey    string `json:"left_key" yaml:"left_key"`
	RightTable string `json:"right_table" yaml:"right_table"`
	RightKey   string `json:"right_key" yaml:"right_key"`
}

// Config describes how one cube's star schema is loaded from source tables.
type Config struct {
	CubeName        string          `json:"cube_name" yaml:"cube_name"`
	FactTable       string          `json:"fact_table" yaml:"fact_table"`
	DimensionTables []string        `json:"dimension_tables" yaml:"dimension_tables"`
	SourceTables    []string        `json:"source_tables,omitempty" yaml:"source_tables,omitempty"`
	Mappings        []ColumnMapping `json:"mappings" yaml:"mappings"`
	SourceJoins     []SourceJoin    `json:"source_joins,omitempty" yaml:"source_joins,omitempty"`

	// DWSchema is the warehouse schema holding the star tables.
	DWSchema string `json:"dw_schema,omitempty" yaml:"dw_schema,omitempty"`

	SyncMode SyncMode `json:"sync_mode,omitempty" yaml:"sync_mode,omitempty"`

	// IncrementalColumn is the source timestamp column compared against the
	// last-sync watermark. Required in incremental mode.
	IncrementalColumn string `json:"incremental_column,omitempty" yaml:"incremental_column,omitempty"`

	CreatedAt time.Time  `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	LastSync  *time.Time `json:"last_sync,omitempty" yaml:"last_sync,omitempty"`
}

// Validate normalizes defaults and checks the config is loadable: a cube
// name and fact table are required, and incremental mode needs a timestamp
// column to filter on.
func (c *Config) Validate() error {
	if c.CubeName == "" {
		return fmt.Errorf("etl config has no cube name")
	}
	if c.FactTable == "" {
		return fmt.Errorf("etl config for cube %q has no fact table", c.CubeName)
	}
	if c.DWSchema == "" {
		c.DWSchema = DefaultSchema
	}
	switch c.SyncMode {
	case "":
		c.SyncMode = SyncModeFull
	case SyncModeFull:
	case SyncModeIncremental:
		if c.IncrementalColumn == "" {
			return fmt.Errorf("etl config for cube %q: incremental sync requires incremental_column", c.CubeName)
		}
	default:
		return fmt.Errorf("etl config for cube %q: unknown sync mode %q", c.CubeName, c.SyncMode)
	}
	return nil
}

// MappingsFor returns the mappings targeting the given warehouse table.
// Matching is tolerant of schema prefixes on either side, so "dw.dim_time"
// and "dim_time" refer to the same table.
func (c *Config) MappingsFor(table string) []ColumnMapping {
	want := bareTable(table)
	var out []ColumnMapping
	for _, m := range c.Mappings {
		if bareTable(m.TargetTable) == want {
			out = append(out, m)
		}
	}
	return out
}

func bareTable(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i+1:]
	}
	return name
}
