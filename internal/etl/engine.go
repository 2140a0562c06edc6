package etl

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starmill-data/starmill/internal/adapter"
)

// Engine runs warehouse syncs. The database connection is established
// lazily on the first sync; syncs of the same cube are serialized while
// different cubes may run concurrently.
type Engine struct {
	store Store

	db          adapter.Adapter
	dbConfig    adapter.Config
	dbConnected bool
	dbMu        sync.Mutex

	logger *slog.Logger

	lockMu    sync.Mutex
	cubeLocks map[string]*sync.Mutex
}

// EngineConfig holds engine construction options.
type EngineConfig struct {
	// Store persists ETL configs, watermarks, and run history.
	Store Store
	// AdapterConfig selects and configures the warehouse adapter.
	AdapterConfig adapter.Config
	// Adapter, when set, is used as an already-connected warehouse
	// connection and AdapterConfig is ignored.
	Adapter adapter.Adapter
	// Logger is the structured logger (discard if nil).
	Logger *slog.Logger
}

// NewEngine creates a sync engine with a lazy database connection.
func NewEngine(cfg EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		store:       cfg.Store,
		db:          cfg.Adapter,
		dbConfig:    cfg.AdapterConfig,
		dbConnected: cfg.Adapter != nil,
		logger:      logger,
		cubeLocks:   make(map[string]*sync.Mutex),
	}
}

// ensureDBConnected lazily connects to the warehouse.
func (e *Engine) ensureDBConnected(ctx context.Context) error {
	e.dbMu.Lock()
	defer e.dbMu.Unlock()

	if e.dbConnected {
		return nil
	}

	e.logger.Debug("connecting to warehouse", "adapter_type", e.dbConfig.Type)

	db, err := adapter.New(e.dbConfig, e.logger)
	if err != nil {
		return fmt.Errorf("failed to create database adapter: %w", err)
	}
	if err := db.Connect(ctx, e.dbConfig); err != nil {
		return fmt.Errorf("failed to connect to warehouse: %w", err)
	}

	e.db = db
	e.dbConnected = true
	return nil
}

// Close releases the warehouse connection.
func (e *Engine) Close() error {
	if e.db != nil {
		return e.db.Close()
	}
	return nil
}

// lockFor returns the mutex serializing syncs of one cube.
func (e *Engine) lockFor(cubeName string) *sync.Mutex {
	e.lockMu.Lock()
	defer e.lockMu.Unlock()
	mu, ok := e.cubeLocks[cubeName]
	if !ok {
		mu = &sync.Mutex{}
		e.cubeLocks[cubeName] = mu
	}
	return mu
}

// Sync loads the cube's star schema from its sources. Full mode truncates
// and reloads; incremental mode appends rows newer than the last watermark.
// The watermark advances only after a fully successful run.
func (e *Engine) Sync(ctx context.Context, cubeName string, forceFull bool) (*SyncResult, error) {
	mu := e.lockFor(cubeName)
	mu.Lock()
	defer mu.Unlock()

	start := time.Now()
	result := &SyncResult{
		CubeName: cubeName,
		Status:   StatusFailed,
		Details:  make(map[string]TableResult),
	}
	fail := func(err error) (*SyncResult, error) {
		result.Error = err.Error()
		result.Duration = time.Since(start)
		return result, err
	}

	cfg, err := e.store.GetETLConfig(cubeName)
	if err != nil {
		return fail(fmt.Errorf("no ETL config for cube %q: %w", cubeName, err))
	}
	if err := cfg.Validate(); err != nil {
		return fail(err)
	}

	full := forceFull || cfg.SyncMode == SyncModeFull || cfg.LastSync == nil
	result.Mode = SyncModeIncremental
	if full {
		result.Mode = SyncModeFull
	}

	e.logger.Info("starting sync",
		"cube", cubeName,
		"mode", result.Mode,
		"force_full", forceFull)

	if err := e.ensureDBConnected(ctx); err != nil {
		return fail(err)
	}

	run, err := e.store.CreateSyncRun(cubeName, result.Mode)
	if err != nil {
		return fail(fmt.Errorf("failed to create sync run: %w", err))
	}

	tx, err := e.db.Begin(ctx)
	if err != nil {
		dbErr := &DatabaseError{Op: "begin", Err: err}
		e.finishRun(run.ID, result, dbErr)
		result.Duration = time.Since(start)
		result.Error = dbErr.Error()
		return result, &SyncFailure{CubeName: cubeName, Result: result, Err: dbErr}
	}

	if err := e.runSync(ctx, tx, cfg, full, result); err != nil {
		_ = tx.Rollback()
		result.Duration = time.Since(start)
		result.Error = err.Error()
		e.finishRun(run.ID, result, err)
		e.logger.Error("sync failed", "cube", cubeName, "error", err)
		return result, &SyncFailure{CubeName: cubeName, Result: result, Err: err}
	}

	if err := tx.Commit(); err != nil {
		dbErr := &DatabaseError{Op: "commit", Err: err}
		result.Duration = time.Since(start)
		result.Error = dbErr.Error()
		e.finishRun(run.ID, result, dbErr)
		return result, &SyncFailure{CubeName: cubeName, Result: result, Err: dbErr}
	}

	if err := e.store.UpdateLastSync(cubeName, time.Now().UTC()); err != nil {
		// Data is committed; a stale watermark only widens the next
		// incremental window.
		e.logger.Warn("failed to advance last-sync watermark", "cube", cubeName, "error", err)
	}

	result.Status = StatusCompleted
	result.Duration = time.Since(start)
	e.finishRun(run.ID, result, nil)

	e.logger.Info("sync completed",
		"cube", cubeName,
		"rows_inserted", result.RowsInserted,
		"duration", result.Duration)
	return result, nil
}

// runSync executes the load inside the given transaction: optional
// truncation, then dimensions in declared order, then the fact table. On
// failure the remaining tables are marked skipped and the error returned.
func (e *Engine) runSync(ctx context.Context, tx adapter.Tx, cfg *Config, full bool, result *SyncResult) error {
	if full {
		for _, dim := range cfg.DimensionTables {
			// CASCADE clears fact rows referencing the dimension.
			if _, err := tx.Exec(ctx, truncateStmt(cfg.DWSchema, dim, true)); err != nil {
				dbErr := &DatabaseError{Op: "truncate", Table: dim, Err: err}
				result.Details[dim] = TableResult{Status: StatusFailed, Reason: dbErr.Error()}
				e.markRemaining(cfg, 0, result)
				return dbErr
			}
		}
		if _, err := tx.Exec(ctx, truncateStmt(cfg.DWSchema, cfg.FactTable, false)); err != nil {
			dbErr := &DatabaseError{Op: "truncate", Table: cfg.FactTable, Err: err}
			result.Details[cfg.FactTable] = TableResult{Status: StatusFailed, Reason: dbErr.Error()}
			e.markRemaining(cfg, 0, result)
			return dbErr
		}
	}

	for i, dim := range cfg.DimensionTables {
		if len(cfg.MappingsFor(dim)) == 0 {
			result.Details[dim] = TableResult{Status: StatusSkipped, Reason: "no mappings target this table"}
			continue
		}
		stmt, err := buildDimensionInsert(cfg, dim)
		if err != nil {
			result.Details[dim] = TableResult{Status: StatusFailed, Reason: err.Error()}
			e.markRemaining(cfg, i+1, result)
			return err
		}
		e.logger.Debug("loading dimension", "table", dim)
		n, err := tx.Exec(ctx, stmt)
		if err != nil {
			dbErr := &DatabaseError{Op: "load", Table: dim, Err: err}
			result.Details[dim] = TableResult{Status: StatusFailed, Reason: dbErr.Error()}
			e.markRemaining(cfg, i+1, result)
			return dbErr
		}
		result.Details[dim] = TableResult{Status: StatusCompleted, RowsInserted: n}
		result.RowsInserted += n
	}

	if len(cfg.MappingsFor(cfg.FactTable)) == 0 {
		result.Details[cfg.FactTable] = TableResult{Status: StatusSkipped, Reason: "no mappings target this table"}
		return nil
	}

	var since *time.Time
	if !full {
		since = cfg.LastSync
	}
	stmt, err := buildFactInsert(cfg, since)
	if err != nil {
		result.Details[cfg.FactTable] = TableResult{Status: StatusFailed, Reason: err.Error()}
		return err
	}
	e.logger.Debug("loading fact table", "table", cfg.FactTable)
	n, err := tx.Exec(ctx, stmt)
	if err != nil {
		dbErr := &DatabaseError{Op: "load", Table: cfg.FactTable, Err: err}
		result.Details[cfg.FactTable] = TableResult{Status: StatusFailed, Reason: dbErr.Error()}
		return dbErr
	}
	result.Details[cfg.FactTable] = TableResult{Status: StatusCompleted, RowsInserted: n}
	result.RowsInserted += n
	return nil
}

// markRemaining records skipped details for tables after a failure point.
// Index i counts through dimension tables; the fact table is always last.
func (e *Engine) markRemaining(cfg *Config, i int, result *SyncResult) {
	for ; i < len(cfg.DimensionTables); i++ {
		dim := cfg.DimensionTables[i]
		if _, done := result.Details[dim]; !done {
			result.Details[dim] = TableResult{Status: StatusSkipped, Reason: "skipped after earlier failure"}
		}
	}
	if _, done := result.Details[cfg.FactTable]; !done {
		result.Details[cfg.FactTable] = TableResult{Status: StatusSkipped, Reason: "skipped after earlier failure"}
	}
}

// finishRun persists per-table steps and the run's final status.
func (e *Engine) finishRun(runID string, result *SyncResult, runErr error) {
	for table, d := range result.Details {
		if err := e.store.RecordSyncStep(runID, table, d.Status, d.RowsInserted, d.Reason); err != nil {
			e.logger.Warn("failed to record sync step", "table", table, "error", err)
		}
	}

	status := RunStatusCompleted
	errMsg := ""
	if runErr != nil {
		status = RunStatusFailed
		errMsg = runErr.Error()
	}
	if err := e.store.CompleteSyncRun(runID, status, errMsg, result.RowsInserted, result.RowsUpdated); err != nil {
		e.logger.Warn("failed to complete sync run", "run_id", runID, "error", err)
	}
}
