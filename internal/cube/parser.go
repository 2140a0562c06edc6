package cube

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// ParseError reports a malformed or incomplete schema document.
type ParseError struct {
	Msg string
	Err error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("schema parse: %s: %v", e.Msg, e.Err)
	}
	return "schema parse: " + e.Msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// Document node shapes. Attribute names follow the Mondrian-style schema
// format the documents are authored in.

type xmlSchema struct {
	Name  string    `xml:"name,attr"`
	Cubes []xmlCube `xml:"Cube"`
}

type xmlCube struct {
	Name            string              `xml:"name,attr"`
	Caption         string              `xml:"caption,attr"`
	FactTable       string              `xml:"fact_table,attr"`
	Table           *xmlTable           `xml:"Table"`
	Dimensions      []xmlDimension      `xml:"Dimension"`
	DimensionUsages []xmlDimensionUsage `xml:"DimensionUsage"`
	Measures        []xmlMeasure        `xml:"Measure"`
}

type xmlTable struct {
	Name   string `xml:"name,attr"`
	Schema string `xml:"schema,attr"`
}

type xmlDimension struct {
	Name        string         `xml:"name,attr"`
	Caption     string         `xml:"caption,attr"`
	Table       string         `xml:"table,attr"`
	ForeignKey  string         `xml:"foreignKey,attr"`
	Hierarchies []xmlHierarchy `xml:"Hierarchy"`
	Levels      []xmlLevel     `xml:"Level"`
}

type xmlHierarchy struct {
	Name       string     `xml:"name,attr"`
	PrimaryKey string     `xml:"primaryKey,attr"`
	Table      *xmlTable  `xml:"Table"`
	Levels     []xmlLevel `xml:"Level"`
}

type xmlLevel struct {
	Name          string `xml:"name,attr"`
	Column        string `xml:"column,attr"`
	OrdinalColumn string `xml:"ordinalColumn,attr"`
	Caption       string `xml:"caption,attr"`
}

type xmlMeasure struct {
	Name         string `xml:"name,attr"`
	Column       string `xml:"column,attr"`
	Aggregator   string `xml:"aggregator,attr"`
	FormatString string `xml:"formatString,attr"`
	Caption      string `xml:"caption,attr"`
}

type xmlDimensionUsage struct {
	Name       string `xml:"name,attr"`
	Source     string `xml:"source,attr"`
	ForeignKey string `xml:"foreignKey,attr"`
}

var aggregators = map[string]string{
	"sum":            AggSum,
	"count":          AggCount,
	"avg":            AggAvg,
	"min":            AggMin,
	"max":            AggMax,
	"distinct-count": AggCountDistinct,
}

// ParseSchema reads a schema document and returns the cube metadata it
// declares.
func ParseSchema(r io.Reader) (*Metadata, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &ParseError{Msg: "reading document", Err: err}
	}
	return ParseSchemaBytes(data)
}

// ParseSchemaBytes parses a schema document held in memory. The document
// root is normally a Schema element wrapping one or more Cube elements; a
// bare Cube root is accepted too.
func ParseSchemaBytes(data []byte) (*Metadata, error) {
	var doc xmlSchema
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Msg: "malformed document", Err: err}
	}

	cubes := doc.Cubes
	if len(cubes) == 0 {
		// The document may be a single Cube with no Schema wrapper.
		var root struct {
			XMLName xml.Name
		}
		if err := xml.Unmarshal(data, &root); err == nil && root.XMLName.Local == "Cube" {
			var c xmlCube
			if err := xml.Unmarshal(data, &c); err != nil {
				return nil, &ParseError{Msg: "malformed document", Err: err}
			}
			cubes = []xmlCube{c}
		}
	}
	if len(cubes) == 0 {
		return nil, &ParseError{Msg: "document declares no cubes"}
	}

	meta := &Metadata{SchemaName: doc.Name}
	if meta.SchemaName == "" {
		meta.SchemaName = "Default"
	}

	for _, xc := range cubes {
		c, err := parseCube(xc)
		if err != nil {
			return nil, err
		}
		meta.Cubes = append(meta.Cubes, *c)
	}
	return meta, nil
}

func parseCube(xc xmlCube) (*Cube, error) {
	if xc.Name == "" {
		return nil, &ParseError{Msg: "cube element has no name"}
	}

	fact := ""
	if xc.Table != nil {
		fact = xc.Table.Name
	}
	if fact == "" {
		fact = xc.FactTable
	}
	if fact == "" {
		fact = strings.ToLower(xc.Name)
	}
	if fact == "" {
		return nil, &ParseError{Msg: fmt.Sprintf("cube %q has no fact table reference", xc.Name)}
	}

	c := &Cube{
		Name:      xc.Name,
		FactTable: fact,
		Caption:   xc.Caption,
	}

	for _, xm := range xc.Measures {
		if xm.Name == "" || xm.Column == "" {
			continue
		}
		c.Measures = append(c.Measures, Measure{
			Name:         xm.Name,
			Column:       xm.Column,
			Agg:          mapAggregator(xm.Aggregator),
			FormatString: xm.FormatString,
			Caption:      xm.Caption,
		})
	}

	for _, xd := range xc.Dimensions {
		if xd.Name == "" {
			continue
		}
		c.Dimensions = append(c.Dimensions, parseDimension(c, xd))
	}

	for _, xu := range xc.DimensionUsages {
		if xu.Name == "" {
			continue
		}
		c.Dimensions = append(c.Dimensions, placeholderDimension(xu))
	}

	return c, nil
}

func parseDimension(c *Cube, xd xmlDimension) Dimension {
	d := Dimension{
		Name:       xd.Name,
		ForeignKey: xd.ForeignKey,
		Caption:    xd.Caption,
	}

	d.Table = xd.Table
	if d.Table == "" {
		d.Table = strings.ToLower(xd.Name)
	}

	levels := xd.Levels
	if len(xd.Hierarchies) > 0 {
		h := xd.Hierarchies[0]
		if h.Table != nil && h.Table.Name != "" {
			d.Table = h.Table.Name
		}
		if h.PrimaryKey != "" {
			d.PrimaryKey = h.PrimaryKey
		}
		if len(h.Levels) > 0 {
			levels = h.Levels
		}
	}

	for _, xl := range levels {
		if xl.Name == "" {
			continue
		}
		col := xl.Column
		if col == "" {
			col = deriveColumn(xl.Name)
		}
		d.Levels = append(d.Levels, Level{
			Name:        xl.Name,
			Column:      col,
			OrderColumn: xl.OrdinalColumn,
			Caption:     xl.Caption,
		})
	}

	// A key pair on a non-fact dimension table pins the join explicitly.
	if d.ForeignKey != "" && d.PrimaryKey != "" && d.Table != c.FactTable {
		c.Joins = append(c.Joins, JoinSpec{
			LeftTable:  c.FactTable,
			LeftKey:    d.ForeignKey,
			RightTable: d.Table,
			RightKey:   d.PrimaryKey,
		})
	}

	return d
}

// placeholderDimension collapses a shared-dimension usage into a stub with a
// single surrogate-key level. The schema format carries no canonical
// definition to resolve the usage against, so only the join key survives.
func placeholderDimension(xu xmlDimensionUsage) Dimension {
	source := xu.Source
	if source == "" {
		source = xu.Name
	}
	return Dimension{
		Name:       xu.Name,
		Table:      strings.ToLower(source),
		ForeignKey: xu.ForeignKey,
		Levels:     []Level{{Name: DefaultPrimaryKey, Column: DefaultPrimaryKey}},
	}
}

func mapAggregator(agg string) string {
	if sql, ok := aggregators[strings.ToLower(agg)]; ok {
		return sql
	}
	return AggSum
}

func deriveColumn(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "_")
}
