package stream

import (
	"errors"
	"fmt"
)

// SerializationError reports a log payload that could not be represented
// as JSON. The offending write does not occur.
type SerializationError struct {
	// Stream is the target stream name.
	Stream string

	// Err is the underlying encoding error.
	Err error
}

// Error implements the error interface.
func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialize payload for stream %q: %v", e.Stream, e.Err)
}

// Unwrap returns the underlying encoding error.
func (e *SerializationError) Unwrap() error { return e.Err }

// IsSerialization returns true if the error is a SerializationError.
// Uses errors.As to handle wrapped errors.
func IsSerialization(err error) bool {
	var se *SerializationError
	return errors.As(err, &se)
}

// SchemaError reports a payload that serialized fine but does not satisfy
// the stream's declared CUE schema. The offending write does not occur.
type SchemaError struct {
	// Stream is the target stream name.
	Stream string

	// Err is the CUE validation error.
	Err error
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	return fmt.Sprintf("payload for stream %q violates schema: %v", e.Stream, e.Err)
}

// Unwrap returns the CUE validation error.
func (e *SchemaError) Unwrap() error { return e.Err }

// IsSchema returns true if the error is a SchemaError.
// Uses errors.As to handle wrapped errors.
func IsSchema(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}
