package database

import (
	"fmt"
	"os"
	"path/filepath"

	"calbot-go/internal/calbot"
	"calbot-go/internal/config"
)

// NewStoreFromConfig creates a Store implementation based on the database config type.
// File-backed stores must already be migrated; in-memory stores are migrated on open.
func NewStoreFromConfig(cfg config.DatabaseConfig) (calbot.Store, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		store, err := NewSQLiteStore(filepath.Join(cfg.DataDir, "calbot.db"))
		if err != nil {
			return nil, err
		}
		if err := store.CheckMigrations(); err != nil {
			store.Close()
			return nil, fmt.Errorf("database not ready (run 'calbot migrate'): %w", err)
		}
		return store, nil
	case "memory":
		store, err := NewSQLiteStore(":memory:")
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(); err != nil {
			store.Close()
			return nil, fmt.Errorf("migrating in-memory database: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}

// MigrateFromConfig opens the configured database and brings its schema up to
// the latest version, creating the database file on first run.
func MigrateFromConfig(cfg config.DatabaseConfig) error {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
		store, err := NewSQLiteStore(filepath.Join(cfg.DataDir, "calbot.db"))
		if err != nil {
			return err
		}
		defer store.Close()
		return store.Migrate()
	case "memory":
		// Nothing persistent to migrate.
		return nil
	default:
		return fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
