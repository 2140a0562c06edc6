package etl

import (
	"errors"
	"fmt"
	"time"
)

// Per-table and overall sync statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// TableResult is the outcome of loading one warehouse table.
type TableResult struct {
	Status       string `json:"status"`
	RowsInserted int64  `json:"rows_inserted"`
	Reason       string `json:"reason,omitempty"`
}

// SyncResult summarizes one sync invocation. Details is keyed by warehouse
// table name and covers every table the sync planned to touch, including
// ones skipped after an earlier failure.
type SyncResult struct {
	CubeName     string                 `json:"cube_name"`
	Status       string                 `json:"status"`
	Mode         SyncMode               `json:"mode"`
	RowsInserted int64                  `json:"rows_inserted"`
	RowsUpdated  int64                  `json:"rows_updated"`
	Duration     time.Duration          `json:"duration"`
	Error        string                 `json:"error,omitempty"`
	Details      map[string]TableResult `json:"details"`
}

// DatabaseError wraps a driver error, preserving its message and the
// statement context it occurred in.
type DatabaseError struct {
	Op    string // "begin", "truncate", "load", "commit"
	Table string
	Err   error
}

func (e *DatabaseError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("database error during %s of %s: %v", e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("database error during %s: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

// SyncFailure reports a failed sync together with its partial per-table
// results.
type SyncFailure struct {
	CubeName string
	Result   *SyncResult
	Err      error
}

func (e *SyncFailure) Error() string {
	return fmt.Sprintf("sync of cube %q failed: %v", e.CubeName, e.Err)
}

func (e *SyncFailure) Unwrap() error { return e.Err }

// ErrUnjoinedSources is returned when an extraction query needs multiple
// source tables but the config declares no join predicate connecting them.
var ErrUnjoinedSources = errors.New("source tables have no join predicate")
