package database_test

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"marginalia-reader/marginalia/config"
	"marginalia-reader/marginalia/database"
)

func openStore(t *testing.T, path string) *database.Database {
	t.Helper()
	db, err := database.Setup(config.Config{
		DBPath:         path,
		DBMaxIdleConns: 1,
		DBMaxOpenConns: 1,
	})
	require.NoError(t, err)
	return db
}

func TestRunMigrations_FreshStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh.db")
	db := openStore(t, path)
	defer db.Close()

	version, err := database.SchemaVersion(db.DB)
	require.NoError(t, err)
	assert.Equal(t, database.LatestSchemaVersion, version)

	// The rebuilt connections table is keyed by card ids from the start.
	var count int
	err = db.DB.Raw("SELECT COUNT(*) FROM pragma_table_info('note_connections') WHERE name = 'from_card_id'").Scan(&count).Error
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRunMigrations_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.db")

	db := openStore(t, path)
	db.Close()

	// Reopening reruns the migration path; at the latest version it is a no-op.
	db = openStore(t, path)
	defer db.Close()

	version, err := database.SchemaVersion(db.DB)
	require.NoError(t, err)
	assert.Equal(t, database.LatestSchemaVersion, version)

	var applied int
	err = db.DB.Raw("SELECT COUNT(*) FROM schema_migrations").Scan(&applied).Error
	require.NoError(t, err)
	assert.Equal(t, database.LatestSchemaVersion, applied)
}

// buildLegacyStore creates the shape a store has after migrations 1-3: card
// table present, note_connections still keyed by annotation ids.
func buildLegacyStore(t *testing.T, path string) {
	t.Helper()

	dsn := fmt.Sprintf("%s?_foreign_keys=on", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	stmts := []string{
		`CREATE TABLE schema_migrations (version INTEGER PRIMARY KEY, applied_at DATETIME DEFAULT CURRENT_TIMESTAMP)`,
		`INSERT INTO schema_migrations (version) VALUES (1), (2), (3)`,
		`CREATE TABLE books (
			id TEXT PRIMARY KEY, title TEXT NOT NULL, cover_path TEXT,
			file_path TEXT NOT NULL UNIQUE, author TEXT, description TEXT,
			topic TEXT, reading_progress TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE annotations (
			id TEXT PRIMARY KEY, book_id TEXT NOT NULL,
			cfi_range TEXT NOT NULL, text TEXT NOT NULL,
			note TEXT NOT NULL DEFAULT '', title TEXT NOT NULL DEFAULT '',
			color_rgba TEXT, color_category TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (book_id) REFERENCES books(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE note_connections (
			id TEXT PRIMARY KEY, book_id TEXT NOT NULL,
			from_annotation_id TEXT NOT NULL, to_annotation_id TEXT NOT NULL,
			description TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE cards (
			id TEXT PRIMARY KEY, annotation_id TEXT NOT NULL,
			position_x REAL, position_y REAL, width REAL, height REAL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (annotation_id) REFERENCES annotations(id) ON DELETE CASCADE
		)`,
		`INSERT INTO books (id, title, file_path) VALUES ('book1', 'Walden', '/library/walden.epub')`,
		`INSERT INTO annotations (id, book_id, cfi_range, text) VALUES
			('ann1', 'book1', 'epubcfi(/6/4!/4/2)', 'first'),
			('ann2', 'book1', 'epubcfi(/6/4!/4/8)', 'second')`,
		`INSERT INTO cards (id, annotation_id, position_x, position_y, width, height)
			VALUES ('card1', 'ann1', 10, 20, 200, 120)`,
		`INSERT INTO note_connections (id, book_id, from_annotation_id, to_annotation_id, description)
			VALUES ('conn1', 'book1', 'ann1', 'ann2', 'related ideas')`,
	}
	for _, stmt := range stmts {
		require.NoError(t, db.Exec(stmt).Error)
	}

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
}

func TestMigrateConnectionEndpoints_LegacyRemap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")
	buildLegacyStore(t, path)

	db := openStore(t, path)
	defer db.Close()

	version, err := database.SchemaVersion(db.DB)
	require.NoError(t, err)
	assert.Equal(t, database.LatestSchemaVersion, version)

	// ann2 had no card; the rebuild materialized one so the edge survives.
	var ann2Card string
	err = db.DB.Raw("SELECT id FROM cards WHERE annotation_id = 'ann2'").Scan(&ann2Card).Error
	require.NoError(t, err)
	require.NotEmpty(t, ann2Card)

	type endpoint struct {
		FromCardID  string
		ToCardID    string
		Direction   string
		Description string
	}
	var conn endpoint
	err = db.DB.Raw("SELECT from_card_id, to_card_id, direction, description FROM note_connections WHERE id = 'conn1'").Scan(&conn).Error
	require.NoError(t, err)
	assert.Equal(t, "card1", conn.FromCardID)
	assert.Equal(t, ann2Card, conn.ToCardID)
	assert.Equal(t, "none", conn.Direction)
	assert.Equal(t, "related ideas", conn.Description)

	// The legacy columns are gone along with the old table.
	var legacy int
	err = db.DB.Raw("SELECT COUNT(*) FROM pragma_table_info('note_connections') WHERE name = 'from_annotation_id'").Scan(&legacy).Error
	require.NoError(t, err)
	assert.Equal(t, 0, legacy)
}

func TestMigrateConnectionEndpoints_DuplicateEdgesRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unique.db")
	db := openStore(t, path)
	defer db.Close()

	require.NoError(t, db.Execute("INSERT INTO books (id, title, file_path) VALUES ('b', 't', '/b.epub')"))
	require.NoError(t, db.Execute("INSERT INTO annotations (id, book_id, cfi_range, text) VALUES ('a1', 'b', 'cfi', 'x'), ('a2', 'b', 'cfi2', 'y')"))
	require.NoError(t, db.Execute("INSERT INTO cards (id, annotation_id) VALUES ('c1', 'a1'), ('c2', 'a2')"))
	require.NoError(t, db.Execute("INSERT INTO note_connections (id, book_id, from_card_id, to_card_id) VALUES ('e1', 'b', 'c1', 'c2')"))

	err := db.Execute("INSERT INTO note_connections (id, book_id, from_card_id, to_card_id) VALUES ('e2', 'b', 'c1', 'c2')")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UNIQUE constraint failed")
}
