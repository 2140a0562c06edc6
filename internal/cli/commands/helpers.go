// Package commands implements the starmill subcommands.
package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/starmill-data/starmill/internal/adapter"
	"github.com/starmill-data/starmill/internal/cli/config"
	"github.com/starmill-data/starmill/internal/state"
)

// requireConfig returns the loaded CLI configuration.
func requireConfig() (*config.Config, error) {
	cfg := config.GetCurrentConfig()
	if cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return cfg, nil
}

// openStore opens the state store, creating its directory if needed.
func openStore(ctx context.Context, cfg *config.Config) (*state.SQLiteStore, error) {
	dir := filepath.Dir(cfg.StatePath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	s := state.NewSQLiteStore(config.GetLogger(ctx))
	if err := s.Open(cfg.StatePath); err != nil {
		return nil, err
	}
	if err := s.InitSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// connectWarehouse creates and connects the configured warehouse adapter.
func connectWarehouse(ctx context.Context, cfg *config.Config) (adapter.Adapter, error) {
	acfg := cfg.AdapterConfig()
	db, err := adapter.New(acfg, config.GetLogger(ctx))
	if err != nil {
		return nil, err
	}
	if err := db.Connect(ctx, acfg); err != nil {
		return nil, err
	}
	return db, nil
}
