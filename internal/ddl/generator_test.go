package ddl

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starmill-data/starmill/internal/cube"
)

func salesRequest() Request {
	return Request{
		FactTable: "fact_sales",
		Measures:  []Column{{Name: "amount"}, {Name: "quantity", Type: "INTEGER"}},
		Dimensions: []Table{
			{Name: "dim_time", Columns: []Column{{Name: "year"}, {Name: "month"}}},
			{Name: "dim_product", Columns: []Column{{Name: "category"}}},
		},
	}
}

func TestGenerateStatementOrder(t *testing.T) {
	stmts := Generate(salesRequest())
	// schema + 2 dims + fact + 2 FK indexes + 2 hash indexes
	require.Len(t, stmts, 8)

	assert.Equal(t, "CREATE SCHEMA IF NOT EXISTS dw", stmts[0])
	assert.Contains(t, stmts[1], "CREATE TABLE IF NOT EXISTS dw.dim_time")
	assert.Contains(t, stmts[2], "CREATE TABLE IF NOT EXISTS dw.dim_product")
	assert.Contains(t, stmts[3], "CREATE TABLE IF NOT EXISTS dw.fact_sales")
	assert.Contains(t, stmts[4], "idx_fact_sales_dim_time_id")
	assert.Contains(t, stmts[5], "idx_fact_sales_dim_product_id")
	assert.Contains(t, stmts[6], "uq_dim_time_source_hash")
	assert.Contains(t, stmts[7], "uq_dim_product_source_hash")
}

func TestGenerateDimensionTable(t *testing.T) {
	stmts := Generate(salesRequest())
	assert.Equal(t,
		"CREATE TABLE IF NOT EXISTS dw.dim_time (id SERIAL PRIMARY KEY, "+
			"year VARCHAR(255), month VARCHAR(255), "+
			"_etl_loaded_at TIMESTAMP DEFAULT NOW(), _etl_source_hash VARCHAR(64))",
		stmts[1])
}

func TestGenerateFactTable(t *testing.T) {
	stmts := Generate(salesRequest())
	fact := stmts[3]
	assert.Contains(t, fact, "dim_time_id INTEGER REFERENCES dw.dim_time(id)")
	assert.Contains(t, fact, "dim_product_id INTEGER REFERENCES dw.dim_product(id)")
	assert.Contains(t, fact, "amount NUMERIC")
	assert.Contains(t, fact, "quantity INTEGER")
	assert.Contains(t, fact, "_etl_source_hash VARCHAR(64)")
}

func TestGenerateCustomSchema(t *testing.T) {
	req := salesRequest()
	req.Schema = "mart"
	for _, s := range Generate(req) {
		assert.NotContains(t, s, "dw.")
		if strings.Contains(s, "CREATE SCHEMA") {
			assert.Equal(t, "CREATE SCHEMA IF NOT EXISTS mart", s)
		}
	}
}

func TestGenerateUniqueHashIndex(t *testing.T) {
	stmts := Generate(salesRequest())
	assert.Equal(t,
		"CREATE UNIQUE INDEX IF NOT EXISTS uq_dim_time_source_hash ON dw.dim_time(_etl_source_hash)",
		stmts[6])
}

func TestFromCube(t *testing.T) {
	c := &cube.Cube{
		Name:      "sales",
		FactTable: "fact_sales",
		Dimensions: []cube.Dimension{
			{Name: "time", Table: "dim_time", Levels: []cube.Level{
				{Name: "year", Column: "year"},
			}},
			{Name: "store", Table: "dim_store", Levels: []cube.Level{
				{Name: "id", Column: "id"},
			}},
		},
		Measures: []cube.Measure{{Name: "total", Column: "amount", Agg: cube.AggSum}},
	}

	req := FromCube(c, "dw")
	assert.Equal(t, "fact_sales", req.FactTable)
	require.Len(t, req.Dimensions, 2)
	assert.Equal(t, []Column{{Name: "year"}}, req.Dimensions[0].Columns)
	// Surrogate-key levels are not duplicated as data columns.
	assert.Empty(t, req.Dimensions[1].Columns)
	assert.Equal(t, []Column{{Name: "amount"}}, req.Measures)
}
