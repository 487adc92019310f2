package store

import (
	"database/sql"
	"fmt"
	"time"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

func (d *DB) q() queryer {
	if d.tx != nil {
		return d.tx
	}
	return d.db
}

// begin opens a fresh buffered write transaction.
func (d *DB) begin() error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("begin write transaction: %w", err)
	}
	d.tx = tx
	return nil
}

// Exec runs a statement inside the buffered transaction. This is also the
// raw pass-through for caller-defined auxiliary tables keyed on log ids.
func (d *DB) Exec(query string, args ...any) (sql.Result, error) {
	if d.readOnly {
		return nil, fmt.Errorf("exec on read-only store")
	}
	return d.q().Exec(query, args...)
}

// Insert runs an INSERT inside the buffered transaction and returns the new
// row id.
func (d *DB) Insert(query string, args ...any) (int64, error) {
	res, err := d.Exec(query, args...)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// Query runs a query. Reads go through the buffered transaction so a writer
// always sees its own uncommitted appends. Callers must close the rows.
func (d *DB) Query(query string, args ...any) (*sql.Rows, error) {
	return d.q().Query(query, args...)
}

// QueryRow runs a query expected to return at most one row.
func (d *DB) QueryRow(query string, args ...any) *sql.Row {
	return d.q().QueryRow(query, args...)
}

// Commit flushes the buffered transaction to disk and opens a new one.
// No-op on a read-only store.
func (d *DB) Commit() error {
	if d.tx == nil {
		return nil
	}
	if err := d.tx.Commit(); err != nil {
		d.tx = nil
		return fmt.Errorf("commit: %w", err)
	}
	d.tx = nil
	d.lastCommit = time.Now()
	return d.begin()
}

// MaybeCommit commits if the autocommit interval has elapsed since the last
// commit. Called from the append path; with autocommit disabled it is a
// cheap no-op.
func (d *DB) MaybeCommit() error {
	if d.autocommit <= 0 || d.tx == nil {
		return nil
	}
	if time.Since(d.lastCommit) < d.autocommit {
		return nil
	}
	return d.Commit()
}

// AddIndices builds the secondary log indices. Intended to run once after
// bulk ingestion; calling earlier is legal but slows subsequent appends.
func (d *DB) AddIndices() error {
	indices := []string{
		"CREATE INDEX IF NOT EXISTS log_stream_time_ix ON log(stream, time)",
		"CREATE INDEX IF NOT EXISTS log_session_time_ix ON log(session, time)",
		"CREATE INDEX IF NOT EXISTS log_tag_ix ON log(tag)",
	}
	for _, stmt := range indices {
		if _, err := d.Exec(stmt); err != nil {
			return fmt.Errorf("add indices: %w", err)
		}
	}
	return nil
}
