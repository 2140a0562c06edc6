package etl

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func salesConfig() *Config {
	return &Config{
		CubeName:        "sales",
		FactTable:       "fact_sales",
		DimensionTables: []string{"dim_time"},
		DWSchema:        "dw",
		SyncMode:        SyncModeFull,
		Mappings: []ColumnMapping{
			{SourceTable: "orders", SourceColumn: "order_year", TargetTable: "dim_time", TargetColumn: "year"},
			{SourceTable: "orders", SourceColumn: "order_month", TargetTable: "dim_time", TargetColumn: "month"},
			{SourceTable: "orders", SourceColumn: "amount", TargetTable: "fact_sales", TargetColumn: "amount"},
		},
	}
}

func TestBuildDimensionInsert(t *testing.T) {
	stmt, err := buildDimensionInsert(salesConfig(), "dim_time")
	require.NoError(t, err)
	assert.Equal(t,
		"INSERT INTO dw.dim_time (year, month, _etl_source_hash) "+
			"SELECT DISTINCT orders.order_year, orders.order_month, "+
			"MD5(CONCAT(COALESCE(orders.order_year::text, ''), COALESCE(orders.order_month::text, ''))) "+
			"FROM orders ON CONFLICT (_etl_source_hash) DO NOTHING",
		stmt)
}

func TestBuildDimensionInsertUsesTransformation(t *testing.T) {
	cfg := salesConfig()
	cfg.Mappings[0].Transformation = "EXTRACT(YEAR FROM orders.ordered_at)"
	stmt, err := buildDimensionInsert(cfg, "dim_time")
	require.NoError(t, err)
	assert.Contains(t, stmt, "SELECT DISTINCT EXTRACT(YEAR FROM orders.ordered_at), orders.order_month")
	assert.Contains(t, stmt, "COALESCE(EXTRACT(YEAR FROM orders.ordered_at)::text, '')")
}

func TestBuildFactInsertFull(t *testing.T) {
	stmt, err := buildFactInsert(salesConfig(), nil)
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO dw.fact_sales (amount) SELECT orders.amount FROM orders", stmt)
	// Fact rows are events: never deduplicated.
	assert.NotContains(t, stmt, "DISTINCT")
	assert.NotContains(t, stmt, "ON CONFLICT")
}

func TestBuildFactInsertIncrementalWatermark(t *testing.T) {
	cfg := salesConfig()
	cfg.SyncMode = SyncModeIncremental
	cfg.IncrementalColumn = "updated_at"
	since := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)

	stmt, err := buildFactInsert(cfg, &since)
	require.NoError(t, err)
	assert.Contains(t, stmt, "WHERE updated_at > '2026-03-01 12:30:00'")
}

func TestBuildFromClauseJoinsDeclaredSources(t *testing.T) {
	cfg := salesConfig()
	cfg.Mappings = append(cfg.Mappings, ColumnMapping{
		SourceTable: "customers", SourceColumn: "region", TargetTable: "fact_sales", TargetColumn: "region",
	})
	cfg.SourceJoins = []SourceJoin{
		{LeftTable: "orders", LeftKey: "customer_id", RightTable: "customers", RightKey: "id"},
	}

	stmt, err := buildFactInsert(cfg, nil)
	require.NoError(t, err)
	assert.Contains(t, stmt, "FROM orders JOIN customers ON orders.customer_id = customers.id")
}

func TestBuildFromClauseRefusesCrossJoin(t *testing.T) {
	cfg := salesConfig()
	cfg.Mappings = append(cfg.Mappings, ColumnMapping{
		SourceTable: "customers", SourceColumn: "region", TargetTable: "fact_sales", TargetColumn: "region",
	})

	_, err := buildFactInsert(cfg, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnjoinedSources))
}

func TestMappingsForToleratesSchemaPrefix(t *testing.T) {
	cfg := salesConfig()
	cfg.Mappings[0].TargetTable = "dw.dim_time"

	assert.Len(t, cfg.MappingsFor("dim_time"), 2)
	assert.Len(t, cfg.MappingsFor("dw.dim_time"), 2)
	assert.Len(t, cfg.MappingsFor("fact_sales"), 1)
}

func TestQualify(t *testing.T) {
	assert.Equal(t, "dw.dim_time", qualify("dw", "dim_time"))
	assert.Equal(t, "mart.dim_time", qualify("mart", "dim_time"))
	assert.Equal(t, "other.dim_time", qualify("dw", "other.dim_time"))
	assert.Equal(t, "dw.dim_time", qualify("", "dim_time"))
}

func TestConfigValidate(t *testing.T) {
	cfg := salesConfig()
	require.NoError(t, cfg.Validate())

	noCube := salesConfig()
	noCube.CubeName = ""
	assert.Error(t, noCube.Validate())

	noFact := salesConfig()
	noFact.FactTable = ""
	assert.Error(t, noFact.Validate())

	inc := salesConfig()
	inc.SyncMode = SyncModeIncremental
	err := inc.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "incremental_column")

	inc.IncrementalColumn = "updated_at"
	assert.NoError(t, inc.Validate())

	bad := salesConfig()
	bad.SyncMode = "nightly"
	assert.Error(t, bad.Validate())

	defaulted := salesConfig()
	defaulted.SyncMode = ""
	defaulted.DWSchema = ""
	require.NoError(t, defaulted.Validate())
	assert.Equal(t, SyncModeFull, defaulted.SyncMode)
	assert.Equal(t, "dw", defaulted.DWSchema)
}
