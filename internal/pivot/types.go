// Package pivot compiles pivot-style analytical requests into SQL SELECT
// statements over a star-schema cube. Compilation is pure: the same cube and
// request always produce the same SQL text.
package pivot

import "fmt"

// DefaultLimit caps result sets when a request gives no positive bound.
const DefaultLimit = 1000

// Field references one level of one dimension.
type Field struct {
	Dimension string `json:"dimension"`
	Level     string `json:"level"`
}

// MeasureRef names a measure declared by the cube.
type MeasureRef struct {
	Name string `json:"name"`
}

// Filter restricts a dimension level. Operator is a SQL comparison
// (=, !=, <, <=, >, >=), IN, NOT IN, or LIKE.
type Filter struct {
	Dimension string `json:"dimension"`
	Level     string `json:"level"`
	Operator  string `json:"operator"`
	Values    []any  `json:"values"`
}

// Query is a pivot request: row and column axes, measures, and filters.
type Query struct {
	CubeName string       `json:"cube_name"`
	Rows     []Field      `json:"rows"`
	Columns  []Field      `json:"columns"`
	Measures []MeasureRef `json:"measures"`
	Filters  []Filter     `json:"filters,omitempty"`
	Limit    int          `json:"limit,omitempty"`
}

// UnknownFieldError reports a request referencing a dimension, level, or
// measure the cube does not declare.
type UnknownFieldError struct {
	Kind string // "dimension", "level", or "measure"
	Name string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown %s %q", e.Kind, e.Name)
}

// UnresolvedJoinError reports a dimension whose table cannot be joined to
// the fact table: no explicit join spec and no foreign key.
type UnresolvedJoinError struct {
	Dimension string
	Table     string
}

func (e *UnresolvedJoinError) Error() string {
	return fmt.Sprintf("cannot join dimension %q: table %q has no join spec and no foreign key", e.Dimension, e.Table)
}
