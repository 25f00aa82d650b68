package database

import (
	"testing"

	"calbot-go/internal/config"
)

func TestNewStoreFromConfig(t *testing.T) {
	t.Run("memory store is migrated on open", func(t *testing.T) {
		cfg := config.DatabaseConfig{Type: "memory"}
		got, err := NewStoreFromConfig(cfg)

		if err != nil {
			t.Errorf("NewStoreFromConfig() unexpected error: %v", err)
			return
		}

		if got == nil {
			t.Error("NewStoreFromConfig() returned nil")
		}

		if got != nil {
			got.Close()
		}
	})

	t.Run("sqlite store requires migration first", func(t *testing.T) {
		cfg := config.DatabaseConfig{
			Type:    "sqlite",
			DataDir: t.TempDir(),
		}

		// Fresh file has no schema version yet
		got, err := NewStoreFromConfig(cfg)
		if err == nil {
			t.Error("NewStoreFromConfig() expected error for unmigrated database, got nil")
			got.Close()
		}

		if err := MigrateFromConfig(cfg); err != nil {
			t.Fatalf("MigrateFromConfig() error = %v", err)
		}

		got, err = NewStoreFromConfig(cfg)
		if err != nil {
			t.Fatalf("NewStoreFromConfig() after migrate error = %v", err)
		}
		got.Close()
	})

	t.Run("sqlite store without data_dir", func(t *testing.T) {
		cfg := config.DatabaseConfig{Type: "sqlite"}
		got, err := NewStoreFromConfig(cfg)

		if err == nil {
			t.Error("NewStoreFromConfig() expected error for missing data_dir, got nil")
		}

		if got != nil {
			t.Error("NewStoreFromConfig() should return nil on error")
			got.Close()
		}
	})

	t.Run("unknown store type", func(t *testing.T) {
		cfg := config.DatabaseConfig{Type: "unknown"}
		got, err := NewStoreFromConfig(cfg)

		if err == nil {
			t.Error("NewStoreFromConfig() expected error for unknown type, got nil")
		}

		if got != nil {
			t.Error("NewStoreFromConfig() should return nil on error")
			got.Close()
		}
	})
}

func TestMigrateFromConfig(t *testing.T) {
	t.Run("creates the data directory", func(t *testing.T) {
		cfg := config.DatabaseConfig{
			Type:    "sqlite",
			DataDir: t.TempDir() + "/nested/data",
		}

		if err := MigrateFromConfig(cfg); err != nil {
			t.Fatalf("MigrateFromConfig() error = %v", err)
		}

		got, err := NewStoreFromConfig(cfg)
		if err != nil {
			t.Fatalf("NewStoreFromConfig() after migrate error = %v", err)
		}
		got.Close()
	})

	t.Run("is idempotent", func(t *testing.T) {
		cfg := config.DatabaseConfig{
			Type:    "sqlite",
			DataDir: t.TempDir(),
		}

		if err := MigrateFromConfig(cfg); err != nil {
			t.Fatalf("first MigrateFromConfig() error = %v", err)
		}
		if err := MigrateFromConfig(cfg); err != nil {
			t.Errorf("second MigrateFromConfig() error = %v", err)
		}
	})
}
