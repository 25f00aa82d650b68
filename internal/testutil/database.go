package testutil

import (
	"testing"

	"calbot-go/internal/calbot"
	"calbot-go/internal/database"
	"calbot-go/internal/database/migrations"
)

// NewTestStore creates a new in-memory SQLite store with migrations applied.
// The store is automatically closed when the test completes.
func NewTestStore(t *testing.T) calbot.Store {
	t.Helper()

	db, err := database.OpenConnection(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	if err := migrations.MigrateUp(db.DB); err != nil {
		db.Close()
		t.Fatalf("failed to migrate: %v", err)
	}

	store := database.NewSQLiteStoreFromDB(db)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}
