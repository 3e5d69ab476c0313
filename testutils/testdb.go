package testutils

import (
	"path/filepath"
	"testing"

	"marginalia-reader/marginalia/config"
	"marginalia-reader/marginalia/database"
)

// SetupTestDB opens a fresh migrated store in the test's temp directory.
// Every test gets its own store, so cascade and constraint behavior is
// exercised against real sqlite.
func SetupTestDB(t *testing.T) *database.Database {
	t.Helper()

	cfg := config.Config{
		DBPath:         filepath.Join(t.TempDir(), "marginalia-test.db"),
		DBMaxIdleConns: 1,
		DBMaxOpenConns: 1,
	}

	db, err := database.Setup(cfg)
	if err != nil {
		t.Fatalf("failed to set up test database: %v", err)
	}
	t.Cleanup(db.Close)

	return db
}
