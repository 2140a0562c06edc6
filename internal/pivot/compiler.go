package pivot

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/starmill-data/starmill/internal/cube"
)

// Compile translates a pivot request into a single-line SQL SELECT against
// the cube's star schema. Row and column fields become grouped dimension
// columns, measures become aggregate expressions, and every non-fact
// dimension table referenced by the request is joined exactly once, in
// first-use order.
func Compile(c *cube.Cube, q *Query) (string, error) {
	if len(q.Rows) == 0 && len(q.Columns) == 0 && len(q.Measures) == 0 {
		return "SELECT 1", nil
	}

	var (
		selects []string
		groups  []string
		joined  []string // dimension tables in first-use order
		joins   = map[string]string{}
		wheres  []string
	)

	addJoin := func(d *cube.Dimension) error {
		if d.Table == c.FactTable {
			return nil
		}
		if _, ok := joins[d.Table]; ok {
			return nil
		}
		cond, err := joinCondition(c, d)
		if err != nil {
			return err
		}
		joins[d.Table] = cond
		joined = append(joined, d.Table)
		return nil
	}

	for _, f := range append(append([]Field{}, q.Rows...), q.Columns...) {
		d := c.Dimension(f.Dimension)
		if d == nil {
			return "", &UnknownFieldError{Kind: "dimension", Name: f.Dimension}
		}
		l := d.Level(f.Level)
		if l == nil {
			return "", &UnknownFieldError{Kind: "level", Name: f.Dimension + "." + f.Level}
		}
		if err := addJoin(d); err != nil {
			return "", err
		}
		ref := quoteIdent(d.Table) + "." + quoteIdent(l.Column)
		alias := quoteIdent(f.Dimension + "_" + f.Level)
		selects = append(selects, ref+" AS "+alias)
		groups = append(groups, ref)
	}

	for _, mr := range q.Measures {
		m := c.Measure(mr.Name)
		if m == nil {
			return "", &UnknownFieldError{Kind: "measure", Name: mr.Name}
		}
		col := quoteIdent(c.FactTable) + "." + quoteIdent(m.Column)
		var expr string
		if m.Agg == cube.AggCountDistinct {
			expr = "COUNT(DISTINCT " + col + ")"
		} else {
			expr = m.Agg + "(" + col + ")"
		}
		selects = append(selects, expr+" AS "+quoteIdent(m.Name))
	}

	for _, f := range q.Filters {
		d := c.Dimension(f.Dimension)
		if d == nil {
			return "", &UnknownFieldError{Kind: "dimension", Name: f.Dimension}
		}
		l := d.Level(f.Level)
		if l == nil {
			return "", &UnknownFieldError{Kind: "level", Name: f.Dimension + "." + f.Level}
		}
		if err := addJoin(d); err != nil {
			return "", err
		}
		clause := filterClause(quoteIdent(d.Table)+"."+quoteIdent(l.Column), f)
		if clause != "" {
			wheres = append(wheres, clause)
		}
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(selects, ", "))
	b.WriteString(" FROM ")
	b.WriteString(quoteIdent(c.FactTable))
	for _, t := range joined {
		fmt.Fprintf(&b, " JOIN %s ON %s", quoteIdent(t), joins[t])
	}
	if len(wheres) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(wheres, " AND "))
	}
	if len(groups) > 0 {
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(groups, ", "))
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(groups, ", "))
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	fmt.Fprintf(&b, " LIMIT %d", limit)

	return b.String(), nil
}

// joinCondition resolves how a dimension table attaches to the fact table:
// an explicit join spec wins, otherwise the dimension's foreign key against
// its primary key.
func joinCondition(c *cube.Cube, d *cube.Dimension) (string, error) {
	if j := c.Join(d.Table); j != nil && j.LeftTable == c.FactTable {
		return fmt.Sprintf("%s.%s = %s.%s",
			quoteIdent(j.LeftTable), quoteIdent(j.LeftKey),
			quoteIdent(j.RightTable), quoteIdent(j.RightKey)), nil
	}
	if d.ForeignKey != "" {
		return fmt.Sprintf("%s.%s = %s.%s",
			quoteIdent(c.FactTable), quoteIdent(d.ForeignKey),
			quoteIdent(d.Table), quoteIdent(d.ResolvedPrimaryKey())), nil
	}
	return "", &UnresolvedJoinError{Dimension: d.Name, Table: d.Table}
}

func filterClause(col string, f Filter) string {
	if len(f.Values) == 0 {
		return ""
	}
	op := strings.ToUpper(strings.TrimSpace(f.Operator))
	switch op {
	case "IN", "NOT IN":
		vals := make([]string, len(f.Values))
		for i, v := range f.Values {
			vals[i] = formatValue(v)
		}
		return fmt.Sprintf("%s %s (%s)", col, op, strings.Join(vals, ", "))
	case "LIKE":
		return fmt.Sprintf("%s LIKE %s", col, formatValue(f.Values[0]))
	case "":
		op = "="
	}
	return fmt.Sprintf("%s %s %s", col, op, formatValue(f.Values[0]))
}

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	case float64:
		// JSON numbers decode as float64; keep integers free of a
		// trailing .0 so 2024 stays 2024.
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case nil:
		return "NULL"
	default:
		return fmt.Sprintf("%v", x)
	}
}

// quoteIdent wraps an identifier in double quotes when it contains anything
// outside [A-Za-z0-9_], doubling embedded quotes. Plain identifiers pass
// through untouched.
func quoteIdent(name string) string {
	plain := true
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			plain = false
		}
		if !plain {
			break
		}
	}
	if plain && name != "" {
		return name
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
