package etl

import (
	"fmt"
	"strings"
	"time"
)

// Audit column written by every load; matches the provisioned DDL.
const sourceHashColumn = "_etl_source_hash"

// watermarkFormat renders the last-sync timestamp into the incremental
// WHERE predicate.
const watermarkFormat = "2006-01-02 15:04:05"

// buildDimensionInsert returns the deduplicating load statement for one
// dimension table:
//
//	INSERT INTO <schema>.<dim> (cols..., _etl_source_hash)
//	SELECT DISTINCT exprs..., MD5(CONCAT(COALESCE(expr::text, '')...))
//	FROM <joined sources>
//	ON CONFLICT (_etl_source_hash) DO NOTHING
//
// The hash covers the projected values in mapping order, so a row's
// identity is exactly its attribute tuple.
func buildDimensionInsert(cfg *Config, table string) (string, error) {
	mappings := cfg.MappingsFor(table)
	if len(mappings) == 0 {
		return "", fmt.Errorf("no mappings target table %q", table)
	}

	cols := make([]string, 0, len(mappings)+1)
	exprs := make([]string, 0, len(mappings)+1)
	for _, m := range mappings {
		cols = append(cols, m.TargetColumn)
		exprs = append(exprs, m.Expr())
	}
	cols = append(cols, sourceHashColumn)
	exprs = append(exprs, hashExpr(mappings))

	from, err := buildFromClause(cfg, mappings)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("INSERT INTO %s (%s) SELECT DISTINCT %s FROM %s ON CONFLICT (%s) DO NOTHING",
		qualify(cfg.DWSchema, table),
		strings.Join(cols, ", "),
		strings.Join(exprs, ", "),
		from,
		sourceHashColumn,
	), nil
}

// buildFactInsert returns the fact load statement. Fact rows are events:
// no DISTINCT and no hash dedup, duplicates are legitimate. In incremental
// mode rows are restricted to those newer than the last-sync watermark.
func buildFactInsert(cfg *Config, since *time.Time) (string, error) {
	mappings := cfg.MappingsFor(cfg.FactTable)
	if len(mappings) == 0 {
		return "", fmt.Errorf("no mappings target fact table %q", cfg.FactTable)
	}

	cols := make([]string, 0, len(mappings))
	exprs := make([]string, 0, len(mappings))
	for _, m := range mappings {
		cols = append(cols, m.TargetColumn)
		exprs = append(exprs, m.Expr())
	}

	from, err := buildFromClause(cfg, mappings)
	if err != nil {
		return "", err
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
		qualify(cfg.DWSchema, cfg.FactTable),
		strings.Join(cols, ", "),
		strings.Join(exprs, ", "),
		from,
	)
	if since != nil {
		stmt += fmt.Sprintf(" WHERE %s > '%s'", cfg.IncrementalColumn, since.UTC().Format(watermarkFormat))
	}
	return stmt, nil
}

// buildFromClause joins the source tables referenced by the mappings, in
// first-use order, through the config's declared source joins. A table that
// cannot be connected to the already-joined set aborts the build; cross
// joins are never emitted.
func buildFromClause(cfg *Config, mappings []ColumnMapping) (string, error) {
	var tables []string
	seen := map[string]bool{}
	for _, m := range mappings {
		if m.SourceTable != "" && !seen[m.SourceTable] {
			seen[m.SourceTable] = true
			tables = append(tables, m.SourceTable)
		}
	}
	if len(tables) == 0 {
		return "", fmt.Errorf("mappings reference no source tables")
	}

	var b strings.Builder
	b.WriteString(tables[0])
	joined := map[string]bool{tables[0]: true}

	for _, t := range tables[1:] {
		j := findSourceJoin(cfg.SourceJoins, joined, t)
		if j == nil {
			return "", fmt.Errorf("%w: cannot connect table %q", ErrUnjoinedSources, t)
		}
		fmt.Fprintf(&b, " JOIN %s ON %s.%s = %s.%s",
			t, j.LeftTable, j.LeftKey, j.RightTable, j.RightKey)
		joined[t] = true
	}
	return b.String(), nil
}

// findSourceJoin locates a declared join connecting table t to any
// already-joined table.
func findSourceJoin(joins []SourceJoin, joined map[string]bool, t string) *SourceJoin {
	for i := range joins {
		j := &joins[i]
		if j.RightTable == t && joined[j.LeftTable] {
			return j
		}
		if j.LeftTable == t && joined[j.RightTable] {
			return j
		}
	}
	return nil
}

// hashExpr builds the content hash over the mapped expressions, computed in
// SQL so the database is the single authority on row identity:
//
//	MD5(CONCAT(COALESCE(expr::text, ''), ...))
func hashExpr(mappings []ColumnMapping) string {
	parts := make([]string, len(mappings))
	for i, m := range mappings {
		parts[i] = fmt.Sprintf("COALESCE(%s::text, '')", m.Expr())
	}
	return fmt.Sprintf("MD5(CONCAT(%s))", strings.Join(parts, ", "))
}

// qualify prefixes a table with the warehouse schema, tolerating names that
// already carry a prefix.
func qualify(schema, table string) string {
	if strings.Contains(table, ".") {
		return table
	}
	if schema == "" {
		schema = DefaultSchema
	}
	return schema + "." + table
}

func truncateStmt(schema, table string, cascade bool) string {
	stmt := "TRUNCATE TABLE " + qualify(schema, table)
	if cascade {
		stmt += " CASCADE"
	}
	return stmt
}
