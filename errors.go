package explog

import (
	"github.com/quietlab/explog/internal/meta"
	"github.com/quietlab/explog/internal/session"
	"github.com/quietlab/explog/internal/stream"
)

// The error taxonomy, re-exported from the packages that raise them.
//
// Soft failures (an unregistered stream on the append path) are absorbed
// with a warning rather than surfaced - losing experimental data over
// bookkeeping is the worse outcome. Everything else aborts the offending
// call and leaves prior rows intact; recovery policy belongs to the
// embedding application.
type (
	// ConfigurationError: stage-order violations, duplicate or late
	// template registration, binding an unregistered name.
	ConfigurationError = meta.ConfigurationError

	// AddressingError: leaving past the root, malformed cd paths, illegal
	// name components.
	AddressingError = session.AddressingError

	// SerializationError: a log payload not representable as JSON.
	SerializationError = stream.SerializationError

	// SchemaError: a log payload violating the stream's declared schema.
	SchemaError = stream.SchemaError
)

// IsConfiguration returns true if the error is a ConfigurationError.
func IsConfiguration(err error) bool { return meta.IsConfiguration(err) }

// IsAddressing returns true if the error is an AddressingError.
func IsAddressing(err error) bool { return session.IsAddressing(err) }

// IsSerialization returns true if the error is a SerializationError.
func IsSerialization(err error) bool { return stream.IsSerialization(err) }

// IsSchema returns true if the error is a SchemaError.
func IsSchema(err error) bool { return stream.IsSchema(err) }
