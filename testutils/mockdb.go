package testutils

import (
	"database/sql"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"marginalia-reader/marginalia/database"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// SetupMockDB sets up a mock database connection for statement-shape tests.
// The reported sqlite version predates RETURNING support so inserts stay
// plain Exec statements.
func SetupMockDB() (*database.Database, sqlmock.Sqlmock, func()) {
	var db *sql.DB
	var mock sqlmock.Sqlmock
	var err error

	db, mock, err = sqlmock.New()
	if err != nil {
		panic(err)
	}

	mock.ExpectQuery(`select sqlite_version\(\)`).
		WillReturnRows(sqlmock.NewRows([]string{"sqlite_version()"}).AddRow("3.25.0"))

	dialector := sqlite.Dialector{
		DriverName: "sqlite3",
		DSN:        "sqlmock_db_0",
		Conn:       db,
	}

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		panic(err)
	}

	mockDB := &database.Database{
		DB: gormDB,
	}

	close := func() {
		db.Close()
	}

	return mockDB, mock, close
}
