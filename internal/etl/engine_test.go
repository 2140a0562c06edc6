package etl

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starmill-data/starmill/internal/adapter"
)

// mockWarehouse adapts a sqlmock connection to the adapter interface.
type mockWarehouse struct {
	adapter.BaseSQLAdapter
}

func (m *mockWarehouse) Connect(ctx context.Context, cfg adapter.Config) error { return nil }
func (m *mockWarehouse) DialectName() string                                   { return "postgres" }

// memStore is an in-memory etl.Store.
type memStore struct {
	configs  map[string]*Config
	lastSync map[string]time.Time
	runs     map[string]*SyncRun
	steps    []SyncStep
	nextID   int
}

func newMemStore(cfgs ...*Config) *memStore {
	s := &memStore{
		configs:  make(map[string]*Config),
		lastSync: make(map[string]time.Time),
		runs:     make(map[string]*SyncRun),
	}
	for _, c := range cfgs {
		s.configs[c.CubeName] = c
	}
	return s
}

func (s *memStore) GetETLConfig(cubeName string) (*Config, error) {
	c, ok := s.configs[cubeName]
	if !ok {
		return nil, fmt.Errorf("etl config %q not found", cubeName)
	}
	return c, nil
}

func (s *memStore) UpdateLastSync(cubeName string, t time.Time) error {
	s.lastSync[cubeName] = t
	return nil
}

func (s *memStore) CreateSyncRun(cubeName string, mode SyncMode) (*SyncRun, error) {
	s.nextID++
	run := &SyncRun{
		ID:        fmt.Sprintf("run-%d", s.nextID),
		CubeName:  cubeName,
		Mode:      mode,
		Status:    RunStatusRunning,
		StartedAt: time.Now(),
	}
	s.runs[run.ID] = run
	return run, nil
}

func (s *memStore) CompleteSyncRun(id string, status RunStatus, errMsg string, rowsInserted, rowsUpdated int64) error {
	run, ok := s.runs[id]
	if !ok {
		return fmt.Errorf("run %q not found", id)
	}
	now := time.Now()
	run.Status = status
	run.Error = errMsg
	run.RowsInserted = rowsInserted
	run.RowsUpdated = rowsUpdated
	run.CompletedAt = &now
	return nil
}

func (s *memStore) RecordSyncStep(runID, table, status string, rowsInserted int64, message string) error {
	s.steps = append(s.steps, SyncStep{
		RunID: runID, TableName: table, Status: status,
		RowsInserted: rowsInserted, Message: message,
	})
	return nil
}

func newTestEngine(t *testing.T, store Store) (*Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	wh := &mockWarehouse{BaseSQLAdapter: adapter.BaseSQLAdapter{DB: db}}
	return NewEngine(EngineConfig{Store: store, Adapter: wh}), mock
}

const (
	dimTimeInsert = "INSERT INTO dw.dim_time (year, month, _etl_source_hash) " +
		"SELECT DISTINCT orders.order_year, orders.order_month, " +
		"MD5(CONCAT(COALESCE(orders.order_year::text, ''), COALESCE(orders.order_month::text, ''))) " +
		"FROM orders ON CONFLICT (_etl_source_hash) DO NOTHING"
	factInsert = "INSERT INTO dw.fact_sales (amount) SELECT orders.amount FROM orders"
)

func TestSyncFullLoadsDimensionsThenFact(t *testing.T) {
	store := newMemStore(salesConfig())
	eng, mock := newTestEngine(t, store)

	mock.ExpectBegin()
	mock.ExpectExec("TRUNCATE TABLE dw.dim_time CASCADE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("TRUNCATE TABLE dw.fact_sales").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(dimTimeInsert).WillReturnResult(sqlmock.NewResult(0, 12))
	mock.ExpectExec(factInsert).WillReturnResult(sqlmock.NewResult(0, 340))
	mock.ExpectCommit()

	res, err := eng.Sync(context.Background(), "sales", false)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, SyncModeFull, res.Mode)
	assert.Equal(t, int64(352), res.RowsInserted)
	assert.Equal(t, StatusCompleted, res.Details["dim_time"].Status)
	assert.Equal(t, int64(340), res.Details["fact_sales"].RowsInserted)

	// Watermark advanced and the run is recorded as completed.
	_, ok := store.lastSync["sales"]
	assert.True(t, ok)
	require.Len(t, store.runs, 1)
	for _, run := range store.runs {
		assert.Equal(t, RunStatusCompleted, run.Status)
		assert.Equal(t, int64(352), run.RowsInserted)
	}
	assert.Len(t, store.steps, 2)
}

func TestSyncIncrementalAppliesWatermark(t *testing.T) {
	cfg := salesConfig()
	cfg.SyncMode = SyncModeIncremental
	cfg.IncrementalColumn = "updated_at"
	last := time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC)
	cfg.LastSync = &last

	store := newMemStore(cfg)
	eng, mock := newTestEngine(t, store)

	mock.ExpectBegin()
	mock.ExpectExec(dimTimeInsert).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(factInsert + " WHERE updated_at > '2026-02-10 08:00:00'").
		WillReturnResult(sqlmock.NewResult(0, 25))
	mock.ExpectCommit()

	res, err := eng.Sync(context.Background(), "sales", false)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, SyncModeIncremental, res.Mode)
	assert.Equal(t, int64(25), res.RowsInserted)
	assert.True(t, store.lastSync["sales"].After(last))
}

func TestSyncIncrementalWithoutWatermarkRunsFull(t *testing.T) {
	cfg := salesConfig()
	cfg.SyncMode = SyncModeIncremental
	cfg.IncrementalColumn = "updated_at"
	// No LastSync recorded yet: the first sync must be full.

	store := newMemStore(cfg)
	eng, mock := newTestEngine(t, store)

	mock.ExpectBegin()
	mock.ExpectExec("TRUNCATE TABLE dw.dim_time CASCADE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("TRUNCATE TABLE dw.fact_sales").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(dimTimeInsert).WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec(factInsert).WillReturnResult(sqlmock.NewResult(0, 50))
	mock.ExpectCommit()

	res, err := eng.Sync(context.Background(), "sales", false)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, SyncModeFull, res.Mode)
}

func TestSyncForceFullOverridesIncremental(t *testing.T) {
	cfg := salesConfig()
	cfg.SyncMode = SyncModeIncremental
	cfg.IncrementalColumn = "updated_at"
	last := time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC)
	cfg.LastSync = &last

	store := newMemStore(cfg)
	eng, mock := newTestEngine(t, store)

	mock.ExpectBegin()
	mock.ExpectExec("TRUNCATE TABLE dw.dim_time CASCADE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("TRUNCATE TABLE dw.fact_sales").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(dimTimeInsert).WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec(factInsert).WillReturnResult(sqlmock.NewResult(0, 50))
	mock.ExpectCommit()

	res, err := eng.Sync(context.Background(), "sales", true)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, SyncModeFull, res.Mode)
}

func TestSyncDimensionFailureRollsBackAndSkipsFact(t *testing.T) {
	store := newMemStore(salesConfig())
	eng, mock := newTestEngine(t, store)

	mock.ExpectBegin()
	mock.ExpectExec("TRUNCATE TABLE dw.dim_time CASCADE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("TRUNCATE TABLE dw.fact_sales").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(dimTimeInsert).WillReturnError(errors.New(`relation "dw.dim_time" does not exist`))
	mock.ExpectRollback()

	res, err := eng.Sync(context.Background(), "sales", false)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	var sfail *SyncFailure
	require.True(t, errors.As(err, &sfail))
	var dberr *DatabaseError
	require.True(t, errors.As(err, &dberr))
	assert.Contains(t, dberr.Error(), `relation "dw.dim_time" does not exist`)

	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, StatusFailed, res.Details["dim_time"].Status)
	assert.Equal(t, StatusSkipped, res.Details["fact_sales"].Status)

	// The watermark must not advance on failure.
	_, ok := store.lastSync["sales"]
	assert.False(t, ok)
	for _, run := range store.runs {
		assert.Equal(t, RunStatusFailed, run.Status)
	}
}

func TestSyncMissingConfig(t *testing.T) {
	eng, _ := newTestEngine(t, newMemStore())

	res, err := eng.Sync(context.Background(), "ghost", false)
	require.Error(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, err.Error(), "ghost")
}

func TestSyncDimensionWithoutMappingsIsSkipped(t *testing.T) {
	cfg := salesConfig()
	cfg.DimensionTables = append(cfg.DimensionTables, "dim_store")

	store := newMemStore(cfg)
	eng, mock := newTestEngine(t, store)

	mock.ExpectBegin()
	mock.ExpectExec("TRUNCATE TABLE dw.dim_time CASCADE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("TRUNCATE TABLE dw.dim_store CASCADE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("TRUNCATE TABLE dw.fact_sales").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(dimTimeInsert).WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec(factInsert).WillReturnResult(sqlmock.NewResult(0, 50))
	mock.ExpectCommit()

	res, err := eng.Sync(context.Background(), "sales", false)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, StatusSkipped, res.Details["dim_store"].Status)
}
