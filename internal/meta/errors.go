package meta

import (
	"errors"
	"fmt"
)

// ConfigurationError reports a violation of the store's setup rules:
// duplicate template registration, stage regression, late SESSION-template
// creation, or binding an unregistered name.
type ConfigurationError struct {
	// Op identifies the failing operation, e.g. "create" or "set stage".
	Op string

	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// IsConfiguration returns true if the error is a ConfigurationError.
// Uses errors.As to handle wrapped errors.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
