package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starmill-data/starmill/internal/etl"
)

// SaveETLConfig inserts or replaces an ETL config keyed by cube name. The
// last-sync watermark is held in its own column so it survives config
// updates and is only advanced by UpdateLastSync.
func (s *SQLiteStore) SaveETLConfig(cfg *etl.Config) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	doc, err := marshalDoc(cfg)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(
		`INSERT INTO etl_configs (cube_name, definition, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(cube_name) DO UPDATE SET definition = excluded.definition, updated_at = excluded.updated_at`,
		cfg.CubeName, doc, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save etl config %q: %w", cfg.CubeName, err)
	}
	return nil
}

// GetETLConfig retrieves an ETL config by cube name, with the stored
// watermark applied.
func (s *SQLiteStore) GetETLConfig(cubeName string) (*etl.Config, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	var doc string
	var lastSync sql.NullTime
	err := s.db.QueryRow(
		`SELECT definition, last_sync FROM etl_configs WHERE cube_name = ?`, cubeName,
	).Scan(&doc, &lastSync)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("etl config not found: %s", cubeName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get etl config %q: %w", cubeName, err)
	}

	cfg, err := decodeETLConfig(doc, lastSync)
	if err != nil {
		return nil, fmt.Errorf("failed to decode etl config %q: %w", cubeName, err)
	}
	return cfg, nil
}

// ListETLConfigs returns all stored ETL configs ordered by cube name.
func (s *SQLiteStore) ListETLConfigs() ([]*etl.Config, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(`SELECT definition, last_sync FROM etl_configs ORDER BY cube_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list etl configs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var configs []*etl.Config
	for rows.Next() {
		var doc string
		var lastSync sql.NullTime
		if err := rows.Scan(&doc, &lastSync); err != nil {
			return nil, fmt.Errorf("failed to scan etl config: %w", err)
		}
		cfg, err := decodeETLConfig(doc, lastSync)
		if err != nil {
			return nil, fmt.Errorf("failed to decode etl config: %w", err)
		}
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating etl configs: %w", err)
	}
	return configs, nil
}

// DeleteETLConfig removes an ETL config.
func (s *SQLiteStore) DeleteETLConfig(cubeName string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	res, err := s.db.Exec(`DELETE FROM etl_configs WHERE cube_name = ?`, cubeName)
	if err != nil {
		return fmt.Errorf("failed to delete etl config %q: %w", cubeName, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("etl config not found: %s", cubeName)
	}
	return nil
}

// UpdateLastSync advances the sync watermark for a cube.
func (s *SQLiteStore) UpdateLastSync(cubeName string, t time.Time) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	res, err := s.db.Exec(
		`UPDATE etl_configs SET last_sync = ?, updated_at = ? WHERE cube_name = ?`,
		t.UTC(), time.Now().UTC(), cubeName,
	)
	if err != nil {
		return fmt.Errorf("failed to update last sync for %q: %w", cubeName, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("etl config not found: %s", cubeName)
	}
	return nil
}

func decodeETLConfig(doc string, lastSync sql.NullTime) (*etl.Config, error) {
	var cfg etl.Config
	if err := json.Unmarshal([]byte(doc), &cfg); err != nil {
		return nil, err
	}
	if lastSync.Valid {
		t := lastSync.Time
		cfg.LastSync = &t
	} else {
		cfg.LastSync = nil
	}
	return &cfg, nil
}
