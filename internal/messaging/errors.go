package messaging

import (
	"fmt"
	"sort"
	"strings"
)

const (
	msgRequired  = "is required"
	msgInvalidID = "must be a valid id"
)

// ValidationError reports rejected input, keyed by field name.
type ValidationError struct {
	FieldErrors map[string]string
}

// MissingOnly reports whether every rejected field was simply absent.
func (e *ValidationError) MissingOnly() bool {
	for _, msg := range e.FieldErrors {
		if msg != msgRequired {
			return false
		}
	}
	return len(e.FieldErrors) > 0
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.FieldErrors))
	for field := range e.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+e.FieldErrors[field])
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// StorageError wraps any failure of the underlying message repository.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
