// Package stream registers named log streams and owns the append-only
// ingestion path. Every registered stream gets a generated SQL view over
// the log table; every append resolves (stream, current session, corrected
// timestamp) and inserts exactly one row.
//
// The append path is the store's latency contract: one cached id lookup,
// one JSON encode, one INSERT inside the buffered transaction.
package stream

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/quietlab/explog/internal/clock"
	"github.com/quietlab/explog/internal/meta"
	"github.com/quietlab/explog/internal/store"
)

// Record carries the optional fields of one append.
type Record struct {
	Data    any
	Tag     string
	Binary  []byte
	Invalid bool // rows default to valid
}

// Row is one log record read back from the store.
type Row struct {
	ID       int64
	Session  int64
	Valid    bool
	Time     float64
	StreamID int64
	Tag      string
	JSON     []byte
	BinaryID int64 // 0 when the row references no binary
}

// Registry resolves stream names to catalog ids and appends log rows.
type Registry struct {
	db    *store.DB
	reg   *meta.Registry
	clock clock.Clock

	cue     *cue.Context
	ids     map[string]int64     // stream name → meta id
	schemas map[int64]*cue.Value // meta id → compiled payload schema
}

// NewRegistry creates a stream registry and warms the id cache from the
// catalog, recompiling any persisted payload schemas.
func NewRegistry(db *store.DB, reg *meta.Registry, clk clock.Clock) (*Registry, error) {
	r := &Registry{
		db:      db,
		reg:     reg,
		clock:   clk,
		cue:     cuecontext.New(),
		ids:     make(map[string]int64),
		schemas: make(map[int64]*cue.Value),
	}

	entries, err := reg.List(meta.KindStream)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		r.ids[e.Name] = e.ID
		if e.Schema != "" {
			v, err := r.compileSchema(e.Name, e.Schema)
			if err != nil {
				return nil, err
			}
			r.schemas[e.ID] = &v
		}
	}
	return r, nil
}

// Create registers a named stream and its per-stream view.
//
// Re-registering with identical description, data and schema is a no-op
// returning the existing id; conflicting metadata fails with
// ConfigurationError. (The duplicate policy is deliberate: idempotent
// re-registration keeps setup code re-runnable across opens.)
func (r *Registry) Create(name string, attrs meta.Attrs) (int64, error) {
	name = meta.Canonical(name)

	existing, ok, err := r.reg.Lookup(meta.KindStream, name)
	if err != nil {
		return 0, err
	}
	if ok {
		if sameRegistration(existing, attrs) {
			return existing.ID, nil
		}
		return 0, &meta.ConfigurationError{
			Op:      "register stream",
			Message: fmt.Sprintf("%q already registered with different metadata", name),
		}
	}

	var schema *cue.Value
	if attrs.Schema != "" {
		v, err := r.compileSchema(name, attrs.Schema)
		if err != nil {
			return 0, err
		}
		schema = &v
	}

	id, err := r.reg.Create(meta.KindStream, name, attrs)
	if err != nil {
		return 0, err
	}

	r.createView(name, id)

	r.ids[name] = id
	if schema != nil {
		r.schemas[id] = schema
	}
	return id, nil
}

// createView generates the per-stream SQL view. The view is a convenience
// for analysis queries; a name collision with an existing table or view is
// logged and otherwise ignored.
func (r *Registry) createView(name string, id int64) {
	stmt := fmt.Sprintf(
		`CREATE VIEW IF NOT EXISTS %s AS SELECT * FROM log WHERE stream = %d`,
		quoteIdent(name), id,
	)
	if _, err := r.db.Exec(stmt); err != nil {
		slog.Warn("could not create stream view", "stream", name, "error", err)
	}
}

// Append writes one log row for the named stream against the given session
// instance and returns the fresh row id.
//
// An unregistered stream name is a soft failure: a blank STREAM entry is
// auto-created with a warning and the write proceeds - losing experimental
// data over bookkeeping is the worse outcome. Serialization and schema
// violations abort the write with nothing inserted.
func (r *Registry) Append(name string, sessionID int64, rec Record) (int64, error) {
	// The cache is keyed on canonical names; probing with the raw spelling
	// would miss on every call.
	name = meta.Canonical(name)
	id, ok := r.ids[name]
	if !ok {
		var err error
		id, err = r.resolve(name)
		if err != nil {
			return 0, err
		}
	}

	var payload any
	if rec.Data != nil {
		b, err := json.Marshal(rec.Data)
		if err != nil {
			return 0, &SerializationError{Stream: name, Err: err}
		}
		payload = string(b)
	}

	if schema := r.schemas[id]; schema != nil {
		if err := validate(r.cue, *schema, name, rec.Data); err != nil {
			return 0, err
		}
	}

	var binaryID any
	if rec.Binary != nil {
		bid, err := r.db.Insert(`INSERT INTO binary (bytes) VALUES (?)`, rec.Binary)
		if err != nil {
			return 0, fmt.Errorf("append to %q: store binary: %w", name, err)
		}
		binaryID = bid
	}

	rowID, err := r.db.Insert(
		`INSERT INTO log (session, valid, time, stream, tag, json, binary)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID, !rec.Invalid, meta.TimeSeconds(r.clock.Now()),
		id, rec.Tag, payload, binaryID,
	)
	if err != nil {
		return 0, fmt.Errorf("append to %q: %w", name, err)
	}

	if err := r.db.MaybeCommit(); err != nil {
		return 0, err
	}
	return rowID, nil
}

// resolve finds or auto-creates the stream's catalog entry and caches its
// id for later appends. name is already canonical.
func (r *Registry) resolve(name string) (int64, error) {
	entry, ok, err := r.reg.Lookup(meta.KindStream, name)
	if err != nil {
		return 0, err
	}
	if !ok {
		slog.Warn("stream not registered; auto-creating a blank entry", "stream", name)
		id, err := r.reg.Ensure(meta.KindStream, name, meta.Attrs{})
		if err != nil {
			return 0, err
		}
		r.createView(name, id)
		r.ids[name] = id
		return id, nil
	}
	r.ids[name] = entry.ID
	return entry.ID, nil
}

// SetValid flips the valid flag on an existing log row. The only mutation
// log rows ever see.
func (r *Registry) SetValid(rowID int64, valid bool) error {
	if _, err := r.db.Exec(`UPDATE log SET valid = ? WHERE id = ?`, valid, rowID); err != nil {
		return fmt.Errorf("set valid on log %d: %w", rowID, err)
	}
	return nil
}

// Get reads one log row back by id.
func (r *Registry) Get(rowID int64) (Row, error) {
	var row Row
	var payload, tag sql.NullString
	var binary sql.NullInt64
	err := r.db.QueryRow(
		`SELECT id, session, valid, time, stream, tag, json, binary FROM log WHERE id = ?`,
		rowID,
	).Scan(&row.ID, &row.Session, &row.Valid, &row.Time, &row.StreamID, &tag, &payload, &binary)
	if err != nil {
		return Row{}, fmt.Errorf("read log %d: %w", rowID, err)
	}
	row.Tag = tag.String
	if payload.Valid {
		row.JSON = []byte(payload.String)
	}
	row.BinaryID = binary.Int64
	return row, nil
}

// Binary reads a stored blob back by id.
func (r *Registry) Binary(id int64) ([]byte, error) {
	var b []byte
	if err := r.db.QueryRow(`SELECT bytes FROM binary WHERE id = ?`, id).Scan(&b); err != nil {
		return nil, fmt.Errorf("read binary %d: %w", id, err)
	}
	return b, nil
}

// sameRegistration reports whether a re-registration carries the same
// metadata as the existing entry.
func sameRegistration(existing meta.Entry, attrs meta.Attrs) bool {
	if existing.Type != attrs.Type ||
		existing.Description != attrs.Description ||
		existing.Schema != attrs.Schema {
		return false
	}
	if attrs.Data == nil {
		return len(existing.JSON) == 0
	}
	b, err := json.Marshal(attrs.Data)
	if err != nil {
		return false
	}
	return bytes.Equal(b, existing.JSON)
}

// quoteIdent quotes a stream name for use as a view identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
