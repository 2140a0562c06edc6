// Package state persists cube definitions, ETL configs, sync watermarks,
// and sync run history in a local SQLite database.
package state

import (
	"time"

	"github.com/starmill-data/starmill/internal/cube"
	"github.com/starmill-data/starmill/internal/etl"
)

// Store is the persistence interface for cube metadata and sync state.
type Store interface {
	// Open opens the store at the given path (":memory:" for in-memory).
	Open(path string) error
	// Close closes the store.
	Close() error
	// InitSchema creates the tables if they do not exist.
	InitSchema() error

	// Cube definitions, keyed by cube name.
	SaveCube(c *cube.Cube) error
	GetCube(name string) (*cube.Cube, error)
	ListCubes() ([]*cube.Cube, error)
	DeleteCube(name string) error

	// ETL configs, keyed by cube name.
	SaveETLConfig(cfg *etl.Config) error
	GetETLConfig(cubeName string) (*etl.Config, error)
	ListETLConfigs() ([]*etl.Config, error)
	DeleteETLConfig(cubeName string) error
	UpdateLastSync(cubeName string, t time.Time) error

	// Sync run history.
	CreateSyncRun(cubeName string, mode etl.SyncMode) (*etl.SyncRun, error)
	CompleteSyncRun(id string, status etl.RunStatus, errMsg string, rowsInserted, rowsUpdated int64) error
	RecordSyncStep(runID, table, status string, rowsInserted int64, message string) error
	GetSyncRun(id string) (*etl.SyncRun, error)
	GetSyncStepsForRun(runID string) ([]etl.SyncStep, error)
	GetLatestSyncRun(cubeName string) (*etl.SyncRun, error)
}

// The SQLite store satisfies both the full interface and the engine's
// narrower view of it.
var (
	_ Store     = (*SQLiteStore)(nil)
	_ etl.Store = (*SQLiteStore)(nil)
)
