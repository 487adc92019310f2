package explog

import "github.com/quietlab/explog/internal/stream"

// RecordOption configures a single Record call.
type RecordOption func(*stream.Record)

// WithTag attaches a short text tag to the row.
func WithTag(tag string) RecordOption {
	return func(r *stream.Record) { r.Tag = tag }
}

// WithBinary stores an opaque blob alongside the row and references it
// from the row. Each blob belongs to exactly one record.
func WithBinary(b []byte) RecordOption {
	return func(r *stream.Record) { r.Binary = b }
}

// Invalid marks the row invalid at write time (e.g. a sensor reading known
// to be garbage that is still worth keeping).
func Invalid() RecordOption {
	return func(r *stream.Record) { r.Invalid = true }
}

// Record appends one timestamped JSON observation to the named stream,
// tied to the active leaf session, and returns the fresh row id. The id is
// monotonically increasing and never reused, so callers can use it as a
// foreign key in auxiliary tables maintained through Execute.
//
// An unregistered stream name is auto-registered with a warning; the write
// still succeeds. A payload that cannot be serialized fails with
// SerializationError, one that violates the stream's declared schema with
// SchemaError - in both cases nothing is written.
func (l *Log) Record(streamName string, data any, opts ...RecordOption) (int64, error) {
	rec := stream.Record{Data: data}
	for _, opt := range opts {
		opt(&rec)
	}
	return l.streams.Append(streamName, l.stack.Current().ID, rec)
}

// SetRowValid flips the valid flag on an existing log row - the only
// mutation log rows ever see.
func (l *Log) SetRowValid(id int64, valid bool) error {
	return l.streams.SetValid(id, valid)
}

// ReadRow reads one log row back by id.
func (l *Log) ReadRow(id int64) (Row, error) {
	return l.streams.Get(id)
}

// ReadBinary reads a stored blob back by id.
func (l *Log) ReadBinary(id int64) ([]byte, error) {
	return l.streams.Binary(id)
}
