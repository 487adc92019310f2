package session

import (
	"errors"
	"fmt"
)

// AddressingError reports an invalid operation against the session tree:
// leaving past the root, a malformed cd path, or an illegal name component.
type AddressingError struct {
	// Op identifies the failing operation, e.g. "leave" or "cd".
	Op string

	// Path is the offending address, when one exists.
	Path string

	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (e *AddressingError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %q: %s", e.Op, e.Path, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// IsAddressing returns true if the error is an AddressingError.
// Uses errors.As to handle wrapped errors.
func IsAddressing(err error) bool {
	var ae *AddressingError
	return errors.As(err, &ae)
}
