// Package meta is the catalog of named things in an experiment store:
// streams, session templates, users, equipment, the dataset singleton and
// path entries, all kind-tagged rows in one table. It also owns the
// dataset-wide key/value document and the bootstrap stage machine.
package meta

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/quietlab/explog/internal/store"
)

// Kind tags a catalog entry.
type Kind string

const (
	KindStream    Kind = "STREAM"
	KindSession   Kind = "SESSION" // session template
	KindUser      Kind = "USER"
	KindEquipment Kind = "EQUIPMENT"
	KindDataset   Kind = "DATASET"
	KindPath      Kind = "PATH" // internal: canonical session addresses
)

// Entry is one catalog row. Entries are immutable after creation; the only
// exception is the DATASET singleton's JSON document, mutated field by
// field through the Doc facade.
type Entry struct {
	ID          int64
	Kind        Kind
	Name        string
	Type        string
	Description string
	Schema      string // CUE payload schema source (streams only)
	JSON        []byte
}

// Attrs carries the optional fields of a new entry.
type Attrs struct {
	Type        string
	Description string
	Schema      string
	Data        any
}

// Canonical normalizes a name for use as a catalog or path key.
// Names arriving from different input methods can differ in Unicode
// composition while looking identical; NFC keeps them one key.
func Canonical(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// Registry mediates access to the catalog.
type Registry struct {
	db *store.DB

	// AllowLateTemplates permits SESSION-template creation after the store
	// has left the init stage.
	AllowLateTemplates bool
}

// NewRegistry creates a registry over an open store.
func NewRegistry(db *store.DB) *Registry {
	return &Registry{db: db}
}

// Create registers a new catalog entry and returns its id.
//
// Duplicate names within a kind fail with ConfigurationError. SESSION
// templates may only be created while the store is in the init stage,
// unless AllowLateTemplates is set; STREAM and USER entries stay creatable
// at any stage so data capture is never blocked on bookkeeping.
func (r *Registry) Create(kind Kind, name string, attrs Attrs) (int64, error) {
	name = Canonical(name)
	if name == "" {
		return 0, &ConfigurationError{Op: "create", Message: "empty name"}
	}

	if kind == KindSession && !r.AllowLateTemplates {
		stage, err := r.Stage()
		if err != nil {
			return 0, err
		}
		if stage > StageInit {
			return 0, &ConfigurationError{
				Op:      "create",
				Message: fmt.Sprintf("session template %q: store already at stage %s", name, stage),
			}
		}
	}

	if existing, ok, err := r.Lookup(kind, name); err != nil {
		return 0, err
	} else if ok {
		return 0, &ConfigurationError{
			Op:      "create",
			Message: fmt.Sprintf("%s %q already registered (id %d)", kind, name, existing.ID),
		}
	}

	return r.insert(kind, name, attrs)
}

// insert appends a catalog row without duplicate or stage checks.
func (r *Registry) insert(kind Kind, name string, attrs Attrs) (int64, error) {
	data, err := marshalData(attrs.Data)
	if err != nil {
		return 0, fmt.Errorf("create %s %q: %w", kind, name, err)
	}
	id, err := r.db.Insert(
		`INSERT INTO meta (mtype, name, type, description, schema, json) VALUES (?, ?, ?, ?, ?, ?)`,
		string(kind), name, attrs.Type, attrs.Description, attrs.Schema, data,
	)
	if err != nil {
		return 0, fmt.Errorf("create %s %q: %w", kind, name, err)
	}
	return id, nil
}

// Ensure returns the id of the (kind, name) entry, inserting it if absent.
// Bypasses stage gating; used for PATH entries and stream auto-registration,
// which must never be blocked.
func (r *Registry) Ensure(kind Kind, name string, attrs Attrs) (int64, error) {
	name = Canonical(name)
	if existing, ok, err := r.Lookup(kind, name); err != nil {
		return 0, err
	} else if ok {
		return existing.ID, nil
	}
	return r.insert(kind, name, attrs)
}

// Lookup resolves an entry by kind and name. A missing entry is not an
// error; ok reports whether it exists.
func (r *Registry) Lookup(kind Kind, name string) (Entry, bool, error) {
	name = Canonical(name)
	e := Entry{Kind: kind, Name: name}
	var data sql.NullString
	err := r.db.QueryRow(
		`SELECT id, type, description, schema, json FROM meta WHERE mtype = ? AND name = ?`,
		string(kind), name,
	).Scan(&e.ID, &e.Type, &e.Description, &e.Schema, &data)
	if err == sql.ErrNoRows {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("lookup %s %q: %w", kind, name, err)
	}
	if data.Valid {
		e.JSON = []byte(data.String)
	}
	return e, true, nil
}

// List returns all entries of a kind, ordered by name.
func (r *Registry) List(kind Kind) ([]Entry, error) {
	rows, err := r.db.Query(
		`SELECT id, name, type, description, schema, json FROM meta WHERE mtype = ? ORDER BY name`,
		string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e := Entry{Kind: kind}
		var data sql.NullString
		if err := rows.Scan(&e.ID, &e.Name, &e.Type, &e.Description, &e.Schema, &data); err != nil {
			return nil, fmt.Errorf("list %s: %w", kind, err)
		}
		if data.Valid {
			e.JSON = []byte(data.String)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// marshalData serializes an optional JSON payload column. A nil payload
// stays NULL rather than becoming the string "null".
func marshalData(data any) (any, error) {
	if data == nil {
		return nil, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal data: %w", err)
	}
	return string(b), nil
}
