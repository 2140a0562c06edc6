package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starmill-data/starmill/internal/cube"
)

// SaveCube inserts or replaces a cube definition keyed by name.
func (s *SQLiteStore) SaveCube(c *cube.Cube) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	doc, err := marshalDoc(c)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(
		`INSERT INTO cubes (name, definition, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET definition = excluded.definition, updated_at = excluded.updated_at`,
		c.Name, doc, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save cube %q: %w", c.Name, err)
	}
	return nil
}

// GetCube retrieves a cube definition by name.
func (s *SQLiteStore) GetCube(name string) (*cube.Cube, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	var doc string
	err := s.db.QueryRow(`SELECT definition FROM cubes WHERE name = ?`, name).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cube not found: %s", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cube %q: %w", name, err)
	}

	var c cube.Cube
	if err := json.Unmarshal([]byte(doc), &c); err != nil {
		return nil, fmt.Errorf("failed to decode cube %q: %w", name, err)
	}
	return &c, nil
}

// ListCubes returns all stored cubes ordered by name.
func (s *SQLiteStore) ListCubes() ([]*cube.Cube, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(`SELECT definition FROM cubes ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cubes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var cubes []*cube.Cube
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan cube: %w", err)
		}
		var c cube.Cube
		if err := json.Unmarshal([]byte(doc), &c); err != nil {
			return nil, fmt.Errorf("failed to decode cube: %w", err)
		}
		cubes = append(cubes, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cubes: %w", err)
	}
	return cubes, nil
}

// DeleteCube removes a cube definition.
func (s *SQLiteStore) DeleteCube(name string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	res, err := s.db.Exec(`DELETE FROM cubes WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete cube %q: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("cube not found: %s", name)
	}
	return nil
}
