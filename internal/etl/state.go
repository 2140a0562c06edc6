package etl

import "time"

// RunStatus tracks a sync run's lifecycle in the state store.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// SyncRun is one recorded sync invocation.
type SyncRun struct {
	ID           string     `json:"id"`
	CubeName     string     `json:"cube_name"`
	Mode         SyncMode   `json:"mode"`
	Status       RunStatus  `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Error        string     `json:"error,omitempty"`
	RowsInserted int64      `json:"rows_inserted"`
	RowsUpdated  int64      `json:"rows_updated"`
}

// SyncStep is the recorded outcome of one table within a run.
type SyncStep struct {
	ID           string `json:"id"`
	RunID        string `json:"run_id"`
	TableName    string `json:"table_name"`
	Status       string `json:"status"`
	RowsInserted int64  `json:"rows_inserted"`
	Message      string `json:"message,omitempty"`
}

// Store is the slice of state persistence the sync engine depends on. The
// SQLite state store satisfies it.
type Store interface {
	GetETLConfig(cubeName string) (*Config, error)
	UpdateLastSync(cubeName string, t time.Time) error

	CreateSyncRun(cubeName string, mode SyncMode) (*SyncRun, error)
	CompleteSyncRun(id string, status RunStatus, errMsg string, rowsInserted, rowsUpdated int64) error
	RecordSyncStep(runID, table, status string, rowsInserted int64, message string) error
}
