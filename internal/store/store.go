package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added UNIQUE index on meta(mtype, name)
const currentSchemaVersion = 1

// DB is the single SQLite connection behind an experiment store.
//
// Writes are buffered: a long-lived transaction is held open and committed
// either explicitly (Commit), on a configurable autocommit interval, or at
// Close. This keeps the append path free of per-call durability flushes,
// which is what the log ingestion latency contract depends on.
//
// One DB means one writer. Concurrent external readers are served by WAL
// mode; concurrent writers to the same file are out of scope.
type DB struct {
	db *sql.DB
	tx *sql.Tx // open write transaction; nil when read-only

	readOnly   bool
	autocommit time.Duration
	lastCommit time.Time
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and the schema, and begins the buffered write
// transaction. This function is idempotent - safe to call on an existing
// store file.
//
// autocommit <= 0 disables time-based commits; the caller then controls
// durability through Commit and Close.
func Open(path string, autocommit time.Duration) (*DB, error) {
	return open(path, autocommit, false)
}

// OpenReadOnly opens an existing store for inspection only. No write
// transaction is held and no rows are ever written, so it is safe to point
// at a store owned by a live writer (WAL readers don't block the writer).
func OpenReadOnly(path string) (*DB, error) {
	return open(path, 0, true)
}

func open(path string, autocommit time.Duration, readOnly bool) (*DB, error) {
	dsn := path
	if readOnly {
		dsn = "file:" + path + "?mode=ro"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// SQLite supports one writer at a time; a single pooled connection also
	// keeps the buffered transaction and all queries on the same handle.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db, readOnly); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	if !readOnly {
		if err := applySchema(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}

	d := &DB{
		db:         db,
		readOnly:   readOnly,
		autocommit: autocommit,
		lastCommit: time.Now(),
	}

	if !readOnly {
		if err := d.begin(); err != nil {
			db.Close()
			return nil, err
		}
	}

	return d, nil
}

// Close commits any buffered writes and releases the connection.
func (d *DB) Close() error {
	if d.db == nil {
		return nil
	}
	if d.tx != nil {
		if err := d.tx.Commit(); err != nil {
			d.db.Close()
			d.db = nil
			return fmt.Errorf("commit on close: %w", err)
		}
		d.tx = nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}

// applyPragmas sets required SQLite configuration.
// synchronous=OFF trades crash durability of the tail of the log for append
// throughput; a torn tail is surfaced as a dirty exit on the next open.
func applyPragmas(db *sql.DB, readOnly bool) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA cache_size = -64000",
	}
	if !readOnly {
		pragmas = append(pragmas, "PRAGMA synchronous = OFF")
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables and views if they don't exist.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version < currentSchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}

	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing. Must go through the buffered transaction: the pool has
// a single connection and the transaction holds it.
func (d *DB) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := d.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
