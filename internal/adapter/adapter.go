// Package adapter provides the database adapter interface and the concrete
// warehouse adapters (DuckDB, PostgreSQL) the provisioner and sync engine
// run against.
package adapter

import (
	"context"
	"database/sql"
)

// Config holds the configuration for connecting to a warehouse database.
type Config struct {
	// Type selects the registered adapter ("duckdb", "postgres").
	Type string

	// Path is the file path for file-based databases. ":memory:" gives an
	// in-memory database.
	Path string

	// Host and Port locate network-based databases.
	Host string
	Port int

	// Database is the database name.
	Database string

	// Username and Password authenticate the connection.
	Username string
	Password string

	// Schema is the default warehouse schema.
	Schema string

	// Options carries additional driver-specific options.
	Options map[string]string
}

// Rows wraps sql.Rows to keep callers off the driver package.
type Rows struct {
	*sql.Rows
}

// Tx is a database transaction. Exec reports rows affected so loaders can
// account for inserted rows per statement.
type Tx interface {
	Exec(ctx context.Context, sql string) (int64, error)
	Query(ctx context.Context, sql string) (*Rows, error)
	Commit() error
	Rollback() error
}

// Adapter is the interface all warehouse adapters implement.
type Adapter interface {
	// Connect establishes a connection using the provided config.
	Connect(ctx context.Context, cfg Config) error

	// Close closes the connection and releases resources.
	Close() error

	// Exec runs a statement that returns no rows.
	Exec(ctx context.Context, sql string) error

	// Query runs a statement that returns rows.
	Query(ctx context.Context, sql string) (*Rows, error)

	// Begin starts a transaction.
	Begin(ctx context.Context) (Tx, error)

	// DialectName reports the SQL dialect ("duckdb", "postgres").
	DialectName() string
}
