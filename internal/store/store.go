package store

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is stored in PRAGMA user_version.
//
//	0 - runs and events tables
//	1 - events(kind, outcome) index for blocked-decision queries
const schemaVersion = 1

// pragmas are applied to every connection opened by OpenDB.
var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA foreign_keys = ON",
}

// Store is the append-only provenance archive. Runs are written once and
// never updated.
type Store struct {
	db *sql.DB
}

// Open opens the archive at path, creating the file and schema if needed.
// Reopening an existing archive migrates it to the current schema.
func Open(path string) (*Store, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// OpenDB opens a SQLite file with the archive's connection settings but
// without creating any tables. The feature store in geoio shares it.
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to %s: %w", path, err)
	}

	// One connection: SQLite allows a single writer and the pragmas are
	// per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	return db, nil
}

// Close releases the database handle. Closing a zero Store is a no-op.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	if version < 1 {
		const outcomeIndex = `CREATE INDEX IF NOT EXISTS idx_events_outcome
			ON events(kind, outcome, run_id, seq)`
		if _, err := db.Exec(outcomeIndex); err != nil {
			return fmt.Errorf("add outcome index: %w", err)
		}
	}

	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion))
	return err
}

// pragma reads a single PRAGMA value.
func (s *Store) pragma(name string) (string, error) {
	var value string
	err := s.db.QueryRow("PRAGMA " + name).Scan(&value)
	return value, err
}
