package pivot

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starmill-data/starmill/internal/cube"
)

func salesCube() *cube.Cube {
	return &cube.Cube{
		Name:      "sales",
		FactTable: "fact_sales",
		Dimensions: []cube.Dimension{
			{Name: "time", Table: "dim_time", ForeignKey: "time_id", Levels: []cube.Level{
				{Name: "year", Column: "year"},
				{Name: "month", Column: "month"},
			}},
			{Name: "product", Table: "dim_product", ForeignKey: "product_id", Levels: []cube.Level{
				{Name: "category", Column: "category"},
			}},
		},
		Measures: []cube.Measure{
			{Name: "total", Column: "amount", Agg: cube.AggSum},
			{Name: "orders", Column: "order_id", Agg: cube.AggCountDistinct},
		},
	}
}

func TestCompileGolden(t *testing.T) {
	sql, err := Compile(salesCube(), &Query{
		CubeName: "sales",
		Rows:     []Field{{Dimension: "time", Level: "year"}},
		Measures: []MeasureRef{{Name: "total"}},
		Limit:    100,
	})
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT dim_time.year AS time_year, SUM(fact_sales.amount) AS total "+
			"FROM fact_sales JOIN dim_time ON fact_sales.time_id = dim_time.id "+
			"GROUP BY dim_time.year ORDER BY dim_time.year LIMIT 100",
		sql)
}

func TestCompileIsDeterministic(t *testing.T) {
	q := &Query{
		Rows:     []Field{{Dimension: "time", Level: "year"}},
		Columns:  []Field{{Dimension: "product", Level: "category"}},
		Measures: []MeasureRef{{Name: "total"}, {Name: "orders"}},
		Filters:  []Filter{{Dimension: "time", Level: "year", Operator: ">=", Values: []any{2020}}},
	}
	first, err := Compile(salesCube(), q)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Compile(salesCube(), q)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestCompileJoinsEachTableOnce(t *testing.T) {
	sql, err := Compile(salesCube(), &Query{
		Rows: []Field{
			{Dimension: "time", Level: "year"},
			{Dimension: "time", Level: "month"},
		},
		Columns:  []Field{{Dimension: "product", Level: "category"}},
		Measures: []MeasureRef{{Name: "total"}},
		Filters:  []Filter{{Dimension: "time", Level: "year", Operator: "=", Values: []any{2024}}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(sql, "JOIN dim_time"))
	assert.Equal(t, 1, strings.Count(sql, "JOIN dim_product"))
	// First-use order: time axis fields precede product.
	assert.Less(t, strings.Index(sql, "JOIN dim_time"), strings.Index(sql, "JOIN dim_product"))
}

func TestCompileExplicitJoinSpecWins(t *testing.T) {
	c := salesCube()
	c.Joins = []cube.JoinSpec{{
		LeftTable: "fact_sales", LeftKey: "time_key",
		RightTable: "dim_time", RightKey: "time_key",
	}}
	sql, err := Compile(c, &Query{
		Rows:     []Field{{Dimension: "time", Level: "year"}},
		Measures: []MeasureRef{{Name: "total"}},
	})
	require.NoError(t, err)
	assert.Contains(t, sql, "JOIN dim_time ON fact_sales.time_key = dim_time.time_key")
}

func TestCompileUnresolvableJoin(t *testing.T) {
	c := salesCube()
	c.Dimensions = append(c.Dimensions, cube.Dimension{
		Name: "region", Table: "dim_region",
		Levels: []cube.Level{{Name: "country", Column: "country"}},
	})
	_, err := Compile(c, &Query{
		Rows:     []Field{{Dimension: "region", Level: "country"}},
		Measures: []MeasureRef{{Name: "total"}},
	})
	var jerr *UnresolvedJoinError
	require.True(t, errors.As(err, &jerr))
	assert.Equal(t, "dim_region", jerr.Table)
}

func TestCompileUnknownFields(t *testing.T) {
	var ferr *UnknownFieldError

	_, err := Compile(salesCube(), &Query{Rows: []Field{{Dimension: "ghost", Level: "x"}}})
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, "dimension", ferr.Kind)

	_, err = Compile(salesCube(), &Query{Rows: []Field{{Dimension: "time", Level: "decade"}}})
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, "level", ferr.Kind)

	_, err = Compile(salesCube(), &Query{Measures: []MeasureRef{{Name: "revenue"}}})
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, "measure", ferr.Kind)
}

func TestCompileEmptyRequest(t *testing.T) {
	sql, err := Compile(salesCube(), &Query{})
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", sql)
}

func TestCompileFilters(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   string
	}{
		{
			"equality with string quoting",
			Filter{Dimension: "product", Level: "category", Operator: "=", Values: []any{"Food & Drink"}},
			"dim_product.category = 'Food & Drink'",
		},
		{
			"embedded quote doubled",
			Filter{Dimension: "product", Level: "category", Operator: "=", Values: []any{"O'Brien"}},
			"dim_product.category = 'O''Brien'",
		},
		{
			"numbers unquoted",
			Filter{Dimension: "time", Level: "year", Operator: ">=", Values: []any{2020}},
			"dim_time.year >= 2020",
		},
		{
			"in list",
			Filter{Dimension: "time", Level: "year", Operator: "IN", Values: []any{2023, 2024}},
			"dim_time.year IN (2023, 2024)",
		},
		{
			"not in list",
			Filter{Dimension: "time", Level: "month", Operator: "NOT IN", Values: []any{"Jan", "Feb"}},
			"dim_time.month NOT IN ('Jan', 'Feb')",
		},
		{
			"like",
			Filter{Dimension: "product", Level: "category", Operator: "LIKE", Values: []any{"Fresh%"}},
			"dim_product.category LIKE 'Fresh%'",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, err := Compile(salesCube(), &Query{
				Rows:     []Field{{Dimension: "time", Level: "year"}},
				Measures: []MeasureRef{{Name: "total"}},
				Filters:  []Filter{tt.filter},
			})
			require.NoError(t, err)
			assert.Contains(t, sql, "WHERE "+tt.want)
		})
	}
}

func TestCompileEmptyFilterValuesProducesNoClause(t *testing.T) {
	sql, err := Compile(salesCube(), &Query{
		Rows:     []Field{{Dimension: "time", Level: "year"}},
		Measures: []MeasureRef{{Name: "total"}},
		Filters:  []Filter{{Dimension: "time", Level: "year", Operator: "IN"}},
	})
	require.NoError(t, err)
	assert.NotContains(t, sql, "WHERE")
}

func TestCompileDefaultLimit(t *testing.T) {
	sql, err := Compile(salesCube(), &Query{
		Rows:     []Field{{Dimension: "time", Level: "year"}},
		Measures: []MeasureRef{{Name: "total"}},
	})
	require.NoError(t, err)
	assert.Contains(t, sql, "LIMIT 1000")
}

func TestCompileMeasureOnlyHasNoGroupBy(t *testing.T) {
	sql, err := Compile(salesCube(), &Query{Measures: []MeasureRef{{Name: "orders"}}, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(DISTINCT fact_sales.order_id) AS orders FROM fact_sales LIMIT 10", sql)
}

func TestQuoteIdent(t *testing.T) {
	tests := []struct{ in, want string }{
		{"dim_time", "dim_time"},
		{"Year2024", "Year2024"},
		{"order count", `"order count"`},
		{"weird-name", `"weird-name"`},
		{`has"quote`, `"has""quote"`},
		{"ünïcode", `"ünïcode"`},
	}
	for _, tt := range tests {
		if got := quoteIdent(tt.in); got != tt.want {
			t.Errorf("quoteIdent(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
