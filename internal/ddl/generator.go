// Package ddl generates the warehouse-side star schema for a cube: one
// table per dimension, a fact table with foreign keys into each dimension,
// and the indexes the loader's dedup path relies on.
package ddl

import (
	"fmt"
	"strings"

	"github.com/starmill-data/starmill/internal/cube"
)

// DefaultSchema is the warehouse schema used when a request names none.
const DefaultSchema = "dw"

// Column types used when a request leaves them unset.
const (
	defaultDimType     = "VARCHAR(255)"
	defaultMeasureType = "NUMERIC"
)

// ETL audit columns added to every generated table. The hash column backs
// the loader's ON CONFLICT dedup and must stay in sync with its INSERTs.
const (
	LoadedAtColumn   = "_etl_loaded_at"
	SourceHashColumn = "_etl_source_hash"
)

// Column is a name/type pair; an empty Type takes the context default.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// Table is a dimension table definition.
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// Request describes the star schema to provision.
type Request struct {
	Schema     string   `json:"schema,omitempty"`
	FactTable  string   `json:"fact_table"`
	Measures   []Column `json:"measures"`
	Dimensions []Table  `json:"dimensions"`
}

// FromCube derives a provisioning request from cube metadata: each level
// becomes a dimension column, each measure a numeric fact column. Surrogate
// "id" level columns are dropped since every table gets a surrogate key of
// its own.
func FromCube(c *cube.Cube, schema string) Request {
	req := Request{Schema: schema, FactTable: c.FactTable}
	for _, m := range c.Measures {
		req.Measures = append(req.Measures, Column{Name: m.Column})
	}
	for _, d := range c.Dimensions {
		t := Table{Name: d.Table}
		for _, l := range d.Levels {
			if l.Column == cube.DefaultPrimaryKey {
				continue
			}
			t.Columns = append(t.Columns, Column{Name: l.Column})
		}
		req.Dimensions = append(req.Dimensions, t)
	}
	return req
}

// Generate returns the ordered DDL statements for a request: schema first,
// then dimension tables, the fact table, and finally the indexes. Every
// statement is idempotent (IF NOT EXISTS) so provisioning can be re-run.
func Generate(req Request) []string {
	schema := req.Schema
	if schema == "" {
		schema = DefaultSchema
	}

	stmts := []string{fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)}

	for _, dim := range req.Dimensions {
		cols := []string{"id SERIAL PRIMARY KEY"}
		for _, c := range dim.Columns {
			cols = append(cols, c.Name+" "+typeOrDefault(c.Type, defaultDimType))
		}
		cols = append(cols, auditColumns()...)
		stmts = append(stmts, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.%s (%s)",
			schema, dim.Name, strings.Join(cols, ", ")))
	}

	factCols := []string{"id SERIAL PRIMARY KEY"}
	for _, dim := range req.Dimensions {
		factCols = append(factCols, fmt.Sprintf("%s_id INTEGER REFERENCES %s.%s(id)",
			dim.Name, schema, dim.Name))
	}
	for _, m := range req.Measures {
		factCols = append(factCols, m.Name+" "+typeOrDefault(m.Type, defaultMeasureType))
	}
	factCols = append(factCols, auditColumns()...)
	stmts = append(stmts, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.%s (%s)",
		schema, req.FactTable, strings.Join(factCols, ", ")))

	for _, dim := range req.Dimensions {
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s_id ON %s.%s(%s_id)",
			req.FactTable, dim.Name, schema, req.FactTable, dim.Name))
	}
	for _, dim := range req.Dimensions {
		// Unique so that ON CONFLICT (_etl_source_hash) is a real dedup.
		stmts = append(stmts, fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS uq_%s_source_hash ON %s.%s(%s)",
			dim.Name, schema, dim.Name, SourceHashColumn))
	}

	return stmts
}

func auditColumns() []string {
	return []string{
		LoadedAtColumn + " TIMESTAMP DEFAULT NOW()",
		SourceHashColumn + " VARCHAR(64)",
	}
}

func typeOrDefault(t, def string) string {
	if t == "" {
		return def
	}
	return t
}
