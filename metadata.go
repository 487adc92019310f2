package explog

import "github.com/quietlab/explog/internal/meta"

// CreateOption configures a Create call.
type CreateOption func(*meta.Attrs)

// WithType sets the entry's type tag.
func WithType(t string) CreateOption {
	return func(a *meta.Attrs) { a.Type = t }
}

// WithDescription sets the entry's description.
func WithDescription(d string) CreateOption {
	return func(a *meta.Attrs) { a.Description = d }
}

// WithData stores a JSON payload on the entry.
func WithData(data any) CreateOption {
	return func(a *meta.Attrs) { a.Data = data }
}

// WithSchema declares a CUE schema for a stream's payloads; every Record
// call on the stream is validated against it. Only meaningful for Stream
// entries.
func WithSchema(src string) CreateOption {
	return func(a *meta.Attrs) { a.Schema = src }
}

// Create registers a named metadata entry and returns its id.
//
// Duplicate names within a kind fail with ConfigurationError, with one
// exception: re-registering a Stream with identical metadata is a no-op
// returning the existing id, so setup code can run on every open. SESSION
// templates are only creatable while the store is at the init stage
// (unless opened WithLateTemplates); Stream and User entries are always
// creatable.
func (l *Log) Create(kind Kind, name string, opts ...CreateOption) (int64, error) {
	var attrs meta.Attrs
	for _, opt := range opts {
		opt(&attrs)
	}
	if kind == Stream {
		return l.streams.Create(name, attrs)
	}
	return l.reg.Create(kind, name, attrs)
}

// Bind associates the named metadata entry with the active leaf session
// from now onward. Instances entered below the leaf while it remains on
// the stack inherit the binding; fresh instances of the same named
// condition do not.
func (l *Log) Bind(kind Kind, name string) error {
	return l.BindTo(kind, name, l.stack.Current().ID)
}

// BindTo associates the named metadata entry with an explicit session
// instance. The entry must be registered. Re-binding the same pair
// appends a new time-stamped row; history is never overwritten.
func (l *Log) BindTo(kind Kind, name string, sessionID int64) error {
	entry, ok, err := l.reg.Lookup(kind, name)
	if err != nil {
		return err
	}
	if !ok {
		return &meta.ConfigurationError{
			Op:      "bind",
			Message: string(kind) + " " + name + " not registered",
		}
	}
	return l.binds.Bind(entry.ID, sessionID)
}

// Bindings resolves the metadata bound to the active stack, root to leaf,
// as a union of (kind, name) pairs.
func (l *Log) Bindings() ([]Ref, error) {
	return l.binds.Active(l.stack.OpenIDs())
}

// Get returns the dataset document value stored under field; ok is false
// when the field is absent (absence is not an error).
func (l *Log) Get(field string) (any, bool) {
	return l.doc.Get(field)
}

// Set stores a JSON-encodable value under field in the dataset document.
func (l *Log) Set(field string, value any) error {
	return l.doc.Set(field, value)
}

// Keys returns the dataset document's field names, sorted.
func (l *Log) Keys() []string {
	return l.doc.Keys()
}

// Stage returns the store's current bootstrap stage.
func (l *Log) Stage() (Stage, error) {
	return l.reg.Stage()
}

// AdvanceStage moves the store to a later stage. Transitions are
// monotonic; moving backwards fails with ConfigurationError, setting the
// current stage again is a no-op.
func (l *Log) AdvanceStage(to Stage) error {
	return l.reg.AdvanceStage(to, l.clock.Now())
}
