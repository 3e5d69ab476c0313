package database

import (
	"fmt"
	"log"

	"marginalia-reader/marginalia/models"

	"gorm.io/gorm"
)

// A migration is applied once, inside its own transaction, and recorded in
// schema_migrations within that same transaction. Migrations are additive and
// non-destructive: existing tables and columns are skipped, missing ones are
// added with safe defaults.
type migration struct {
	version int
	name    string
	run     func(tx *gorm.DB) error
}

var migrations = []migration{
	{1, "base schema", migrateBaseSchema},
	{2, "book and annotation metadata columns", migrateMetadataColumns},
	{3, "cards table", migrateCardsTable},
	{4, "connection endpoints to cards", migrateConnectionEndpoints},
	{5, "events table", migrateEventsTable},
}

// LatestSchemaVersion is the version a fully migrated store reports.
var LatestSchemaVersion = migrations[len(migrations)-1].version

// RunMigrations brings the store schema up to the current version.
func RunMigrations(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`).Error; err != nil {
		return fmt.Errorf("initializing migration table: %w", err)
	}

	var current int
	if err := db.Raw("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current).Error; err != nil {
		return fmt.Errorf("reading current schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		log.Printf("Applying migration %d: %s", m.version, m.name)
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := m.run(tx); err != nil {
				return err
			}
			return tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version).Error
		})
		if err != nil {
			log.Printf("Migration %d (%s) failed: %v", m.version, m.name, err)
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
	}

	return nil
}

// SchemaVersion returns the highest applied migration version.
func SchemaVersion(db *gorm.DB) (int, error) {
	var version int
	err := db.Raw("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version).Error
	return version, err
}

func columnExists(tx *gorm.DB, table, column string) (bool, error) {
	var count int
	err := tx.Raw("SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", table, column).Scan(&count).Error
	return count > 0, err
}

func ensureColumn(tx *gorm.DB, table, column, ddl string) error {
	exists, err := columnExists(tx, table, column)
	if err != nil {
		return err
	}
	if exists {
		log.Printf("Column %s.%s already exists, skipping", table, column)
		return nil
	}
	return tx.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, ddl)).Error
}

// migrateBaseSchema creates the original tables. note_connections starts out
// with annotation-id endpoints, the shape older stores carry; migration 4
// rebuilds it around card ids.
func migrateBaseSchema(tx *gorm.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS books (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			cover_path TEXT,
			file_path TEXT NOT NULL UNIQUE,
			author TEXT,
			description TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS annotations (
			id TEXT PRIMARY KEY,
			book_id TEXT NOT NULL,
			cfi_range TEXT NOT NULL,
			text TEXT NOT NULL,
			note TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (book_id) REFERENCES books(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS note_connections (
			id TEXT PRIMARY KEY,
			book_id TEXT NOT NULL,
			from_annotation_id TEXT NOT NULL,
			to_annotation_id TEXT NOT NULL,
			description TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (book_id) REFERENCES books(id) ON DELETE CASCADE,
			FOREIGN KEY (from_annotation_id) REFERENCES annotations(id) ON DELETE CASCADE,
			FOREIGN KEY (to_annotation_id) REFERENCES annotations(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_books_file_path ON books(file_path)`,
		`CREATE INDEX IF NOT EXISTS idx_annotations_book_id ON annotations(book_id)`,
		`CREATE INDEX IF NOT EXISTS idx_note_connections_book_id ON note_connections(book_id)`,
	}
	for _, stmt := range stmts {
		if err := tx.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

// migrateMetadataColumns adds the columns later revisions introduced.
func migrateMetadataColumns(tx *gorm.DB) error {
	type columnAdd struct {
		table, column, ddl string
	}
	adds := []columnAdd{
		{"books", "topic", "TEXT"},
		{"books", "reading_progress", "TEXT"},
		{"annotations", "title", "TEXT NOT NULL DEFAULT ''"},
		{"annotations", "color_rgba", "TEXT"},
		{"annotations", "color_category", "TEXT"},
	}
	for _, a := range adds {
		if err := ensureColumn(tx, a.table, a.column, a.ddl); err != nil {
			return err
		}
	}
	return nil
}

func migrateCardsTable(tx *gorm.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cards (
			id TEXT PRIMARY KEY,
			annotation_id TEXT NOT NULL,
			position_x REAL,
			position_y REAL,
			width REAL,
			height REAL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (annotation_id) REFERENCES annotations(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cards_annotation_id ON cards(annotation_id)`,
	}
	for _, stmt := range stmts {
		if err := tx.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

// migrateEventsTable adds the outbox for entity mutation events. Rows land
// here in the same transaction as the mutation they describe.
func migrateEventsTable(tx *gorm.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			event TEXT NOT NULL,
			version INTEGER NOT NULL,
			entity TEXT NOT NULL,
			operation TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			data TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			dispatched BOOLEAN NOT NULL DEFAULT 0,
			dispatched_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_dispatched ON events(dispatched)`,
	}
	for _, stmt := range stmts {
		if err := tx.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

// migrateConnectionEndpoints rebuilds note_connections so its endpoints
// reference cards instead of annotations. ALTER cannot retype a column's
// meaning, so: materialize cards for annotations that only connections
// reference, create the new table, copy rows mapping annotation ids to card
// ids, drop the old table and rename. The surrounding transaction makes a
// crash mid-rebuild leave the old table intact.
func migrateConnectionEndpoints(tx *gorm.DB) error {
	migrated, err := columnExists(tx, "note_connections", "from_card_id")
	if err != nil {
		return err
	}
	if migrated {
		log.Println("note_connections already keyed by card ids, skipping rebuild")
		return nil
	}

	var orphaned []string
	if err := tx.Raw(`
		SELECT a.id FROM annotations a
		WHERE a.id IN (
			SELECT from_annotation_id FROM note_connections
			UNION
			SELECT to_annotation_id FROM note_connections
		)
		AND NOT EXISTS (SELECT 1 FROM cards c WHERE c.annotation_id = a.id)
	`).Scan(&orphaned).Error; err != nil {
		return err
	}
	for _, annotationID := range orphaned {
		if err := tx.Exec(`
			INSERT INTO cards (id, annotation_id, position_x, position_y, width, height)
			VALUES (?, ?, 0, 0, ?, ?)
		`, models.NewID(), annotationID, models.DefaultCardWidth, models.DefaultCardHeight).Error; err != nil {
			return err
		}
	}
	if len(orphaned) > 0 {
		log.Printf("Materialized %d cards for connection endpoints without one", len(orphaned))
	}

	stmts := []string{
		`CREATE TABLE note_connections_new (
			id TEXT PRIMARY KEY,
			book_id TEXT NOT NULL,
			from_card_id TEXT NOT NULL,
			to_card_id TEXT NOT NULL,
			direction TEXT NOT NULL DEFAULT 'none',
			description TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (book_id) REFERENCES books(id) ON DELETE CASCADE,
			FOREIGN KEY (from_card_id) REFERENCES cards(id) ON DELETE CASCADE,
			FOREIGN KEY (to_card_id) REFERENCES cards(id) ON DELETE CASCADE
		)`,
		`INSERT INTO note_connections_new (id, book_id, from_card_id, to_card_id, direction, description, created_at, updated_at)
			SELECT nc.id, nc.book_id, cf.id, ct.id, 'none', nc.description, nc.created_at, nc.updated_at
			FROM note_connections nc
			JOIN cards cf ON cf.annotation_id = nc.from_annotation_id
			JOIN cards ct ON ct.annotation_id = nc.to_annotation_id`,
		`DROP TABLE note_connections`,
		`ALTER TABLE note_connections_new RENAME TO note_connections`,
		`CREATE INDEX IF NOT EXISTS idx_note_connections_book_id ON note_connections(book_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_note_connections_endpoints ON note_connections(book_id, from_card_id, to_card_id)`,
	}
	for _, stmt := range stmts {
		if err := tx.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
