package shared

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// NewDatabase opens a connection to a SQLite database at the specified path.
// The path can be ":memory:" for an in-memory database.
// Foreign keys are enforced on every pooled connection.
// Returns an open database connection or an error if connection fails.
func NewDatabase(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", foreignKeysDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

func foreignKeysDSN(path string) string {
	if strings.Contains(path, "_foreign_keys=") || strings.Contains(path, "_fk=") {
		return path
	}
	if strings.Contains(path, "?") {
		return path + "&_foreign_keys=1"
	}
	return path + "?_foreign_keys=1"
}

// ConfigureDatabase sets connection pool settings for the database.
//
// An in-memory database lives per connection, so callers using ":memory:" should keep maxOpenConns at 1.
func ConfigureDatabase(db *sql.DB, maxOpenConns, maxIdleConns int) {
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	if maxIdleConns > 0 {
		db.SetMaxIdleConns(maxIdleConns)
	}
}

// OpenGraphDatabase opens the database, applies pool settings and runs pending migrations.
func OpenGraphDatabase(cfg DatabaseConfig) (*sql.DB, error) {
	db, err := NewDatabase(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGraphUnavailable, err)
	}

	ConfigureDatabase(db, cfg.MaxOpenConns, cfg.MaxIdleConns)

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrGraphUnavailable, err)
	}

	return db, nil
}
