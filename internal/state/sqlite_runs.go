package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starmill-data/starmill/internal/etl"
)

// CreateSyncRun records a new running sync.
func (s *SQLiteStore) CreateSyncRun(cubeName string, mode etl.SyncMode) (*etl.SyncRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	run := &etl.SyncRun{
		ID:        generateID(),
		CubeName:  cubeName,
		Mode:      mode,
		Status:    etl.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO sync_runs (id, cube_name, mode, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.CubeName, string(run.Mode), string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync run: %w", err)
	}
	return run, nil
}

// CompleteSyncRun marks a run finished with its final status and totals.
func (s *SQLiteStore) CompleteSyncRun(id string, status etl.RunStatus, errMsg string, rowsInserted, rowsUpdated int64) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	var errPtr *string
	if errMsg != "" {
		errPtr = &errMsg
	}

	res, err := s.db.Exec(
		`UPDATE sync_runs SET status = ?, completed_at = ?, error = ?, rows_inserted = ?, rows_updated = ? WHERE id = ?`,
		string(status), time.Now().UTC(), errPtr, rowsInserted, rowsUpdated, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete sync run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sync run not found: %s", id)
	}
	return nil
}

// RecordSyncStep records the outcome of one table within a run.
func (s *SQLiteStore) RecordSyncStep(runID, table, status string, rowsInserted int64, message string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	_, err := s.db.Exec(
		`INSERT INTO sync_steps (id, run_id, table_name, status, rows_inserted, message) VALUES (?, ?, ?, ?, ?, ?)`,
		generateID(), runID, table, status, rowsInserted, message,
	)
	if err != nil {
		return fmt.Errorf("failed to record sync step: %w", err)
	}
	return nil
}

// GetSyncRun retrieves a run by ID.
func (s *SQLiteStore) GetSyncRun(id string) (*etl.SyncRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	run, err := s.scanSyncRun(s.db.QueryRow(
		`SELECT id, cube_name, mode, status, started_at, completed_at, error, rows_inserted, rows_updated
		 FROM sync_runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sync run not found: %s", id)
	}
	return run, err
}

// GetLatestSyncRun retrieves the most recent run for a cube, or nil when
// the cube has never been synced.
func (s *SQLiteStore) GetLatestSyncRun(cubeName string) (*etl.SyncRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	run, err := s.scanSyncRun(s.db.QueryRow(
		`SELECT id, cube_name, mode, status, started_at, completed_at, error, rows_inserted, rows_updated
		 FROM sync_runs WHERE cube_name = ? ORDER BY started_at DESC LIMIT 1`, cubeName))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

// GetSyncStepsForRun returns the recorded steps of a run.
func (s *SQLiteStore) GetSyncStepsForRun(runID string) ([]etl.SyncStep, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT id, run_id, table_name, status, rows_inserted, message FROM sync_steps WHERE run_id = ?`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get sync steps: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var steps []etl.SyncStep
	for rows.Next() {
		var step etl.SyncStep
		var message sql.NullString
		if err := rows.Scan(&step.ID, &step.RunID, &step.TableName, &step.Status, &step.RowsInserted, &message); err != nil {
			return nil, fmt.Errorf("failed to scan sync step: %w", err)
		}
		step.Message = message.String
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync steps: %w", err)
	}
	return steps, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanSyncRun(row rowScanner) (*etl.SyncRun, error) {
	run := &etl.SyncRun{}
	var mode, status string
	var completedAt sql.NullTime
	var errMsg sql.NullString

	err := row.Scan(&run.ID, &run.CubeName, &mode, &status, &run.StartedAt,
		&completedAt, &errMsg, &run.RowsInserted, &run.RowsUpdated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan sync run: %w", err)
	}

	run.Mode = etl.SyncMode(mode)
	run.Status = etl.RunStatus(status)
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	run.Error = errMsg.String
	return run, nil
}
