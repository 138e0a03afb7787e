// Package store is the SQLite row layer behind users, shares, and the
// append-only audit logs. It exposes typed records and point queries
// only; callers never see raw rows.
package store

import (
	"database/sql"
	"fmt"

	"gracedisk/internal/store/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Store wraps a SQLite database. database/sql pools short-lived
// connections per operation; no transaction spans requests.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and migrates the
// schema to the latest version. path may be ":memory:" in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection: SQLite serializes writers anyway, and a pool would
	// hand every :memory: connection its own empty database.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if err := migrations.Up(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
