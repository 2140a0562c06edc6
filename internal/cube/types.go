// Package cube defines the star-schema metadata model: cubes, dimensions,
// hierarchy levels, measures, and explicit join specifications. A Cube is
// built once per schema load and treated as an immutable snapshot by the
// pivot compiler and the DDL generator.
package cube

import (
	"fmt"
	"strings"
)

// SQL aggregators supported by measures.
const (
	AggSum           = "SUM"
	AggCount         = "COUNT"
	AggAvg           = "AVG"
	AggMin           = "MIN"
	AggMax           = "MAX"
	AggCountDistinct = "COUNT DISTINCT"
)

// DefaultPrimaryKey is the surrogate key column assumed for dimension tables
// that do not declare one.
const DefaultPrimaryKey = "id"

// Level is one rung of a dimension's hierarchy, mapped to a column.
type Level struct {
	Name        string `json:"name"`
	Column      string `json:"column"`
	OrderColumn string `json:"order_column,omitempty"`
	Caption     string `json:"caption,omitempty"`
}

// Dimension is a descriptive axis for slicing facts, backed by a table and
// an ordered hierarchy of levels.
type Dimension struct {
	Name       string  `json:"name"`
	Table      string  `json:"table"`
	ForeignKey string  `json:"foreign_key,omitempty"`
	PrimaryKey string  `json:"primary_key,omitempty"`
	Levels     []Level `json:"levels"`
	Caption    string  `json:"caption,omitempty"`
}

// Level returns the named level, or nil if the dimension does not declare it.
func (d *Dimension) Level(name string) *Level {
	for i := range d.Levels {
		if d.Levels[i].Name == name {
			return &d.Levels[i]
		}
	}
	return nil
}

// ResolvedPrimaryKey returns the declared primary key or the "id" default.
func (d *Dimension) ResolvedPrimaryKey() string {
	if d.PrimaryKey != "" {
		return d.PrimaryKey
	}
	return DefaultPrimaryKey
}

// Measure pairs a fact column with an aggregation function.
type Measure struct {
	Name         string `json:"name"`
	Column       string `json:"column"`
	Agg          string `json:"agg"`
	FormatString string `json:"format_string,omitempty"`
	Caption      string `json:"caption,omitempty"`
}

// JoinSpec is an explicit join between two tables, overriding the inferred
// foreignKey/primaryKey join for a dimension.
type JoinSpec struct {
	LeftTable  string `json:"left_table"`
	LeftKey    string `json:"left_key"`
	RightTable string `json:"right_table"`
	RightKey   string `json:"right_key"`
}

// Cube is a named analytical model: one fact table, its dimensions, and
// measures.
type Cube struct {
	Name       string      `json:"name"`
	FactTable  string      `json:"fact_table"`
	Dimensions []Dimension `json:"dimensions"`
	Measures   []Measure   `json:"measures"`
	Joins      []JoinSpec  `json:"joins,omitempty"`
	Caption    string      `json:"caption,omitempty"`
}

// Dimension returns the named dimension, or nil if the cube does not
// declare it.
func (c *Cube) Dimension(name string) *Dimension {
	for i := range c.Dimensions {
		if c.Dimensions[i].Name == name {
			return &c.Dimensions[i]
		}
	}
	return nil
}

// Measure returns the named measure, or nil if the cube does not declare it.
func (c *Cube) Measure(name string) *Measure {
	for i := range c.Measures {
		if c.Measures[i].Name == name {
			return &c.Measures[i]
		}
	}
	return nil
}

// Join returns the explicit join spec whose right side is the given table,
// or nil if none is declared.
func (c *Cube) Join(rightTable string) *JoinSpec {
	for i := range c.Joins {
		if c.Joins[i].RightTable == rightTable {
			return &c.Joins[i]
		}
	}
	return nil
}

// Validate checks the cube's structural invariants: a non-empty fact table,
// unique dimension and measure names, and join resolvability for every
// dimension stored outside the fact table.
func (c *Cube) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("cube has no name")
	}
	if c.FactTable == "" {
		return fmt.Errorf("cube %q has no fact table", c.Name)
	}

	dims := make(map[string]bool, len(c.Dimensions))
	for _, d := range c.Dimensions {
		if dims[d.Name] {
			return fmt.Errorf("cube %q: duplicate dimension %q", c.Name, d.Name)
		}
		dims[d.Name] = true

		if d.Table != c.FactTable && d.ForeignKey == "" && c.Join(d.Table) == nil {
			return fmt.Errorf("cube %q: dimension %q on table %q has no foreign key and no join spec", c.Name, d.Name, d.Table)
		}
	}

	measures := make(map[string]bool, len(c.Measures))
	for _, m := range c.Measures {
		if measures[m.Name] {
			return fmt.Errorf("cube %q: duplicate measure %q", c.Name, m.Name)
		}
		measures[m.Name] = true
	}

	return nil
}

// Describe renders a text summary of the cube suitable for display or for
// handing to downstream tooling as schema context.
func (c *Cube) Describe() string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Cube: %s\n", c.Name)
	fmt.Fprintf(&b, "Fact Table: %s\n\n", c.FactTable)

	b.WriteString("### Measures:\n")
	for _, m := range c.Measures {
		fmt.Fprintf(&b, "  - %s: %s(%s.%s)\n", m.Name, m.Agg, c.FactTable, m.Column)
	}

	b.WriteString("\n### Dimensions:\n")
	for _, d := range c.Dimensions {
		fmt.Fprintf(&b, "  - %s (table: %s)\n", d.Name, d.Table)
		for _, l := range d.Levels {
			fmt.Fprintf(&b, "    - Level: %s (column: %s)\n", l.Name, l.Column)
		}
	}

	if len(c.Joins) > 0 {
		b.WriteString("\n### Joins:\n")
		for _, j := range c.Joins {
			fmt.Fprintf(&b, "  - %s.%s = %s.%s\n", j.LeftTable, j.LeftKey, j.RightTable, j.RightKey)
		}
	}

	return b.String()
}

// Metadata is the collection of cubes parsed from one schema document.
type Metadata struct {
	SchemaName string `json:"schema_name,omitempty"`
	Cubes      []Cube `json:"cubes"`
}
