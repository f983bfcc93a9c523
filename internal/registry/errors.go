package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Domain errors for the registry package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, registry.ErrPinMismatch) {
//	    // handle authorization rejection
//	}
var (
	// ErrRecordNotFound is returned when a device has no registered record.
	ErrRecordNotFound = errors.New("registry: record not found")

	// ErrPinMismatch is returned when a report's pin does not match the
	// stored pin of the device's latest version. This is a defined negative
	// outcome, not a system fault; nothing is written.
	ErrPinMismatch = errors.New("registry: pin mismatch")

	// ErrVersionConflict is returned when a conditional write loses a race:
	// the latest version observed at lookup time was superseded before the
	// write committed.
	ErrVersionConflict = errors.New("registry: version conflict")

	// ErrCountTooLarge is returned when the count parameter exceeds the
	// configured ceiling.
	ErrCountTooLarge = errors.New("registry: count parameter too large")
)

// FieldErrors accumulates per-field validation violations. All violations
// are collected before the error is returned, so a caller sees every
// missing field at once.
type FieldErrors map[string][]string

// Add appends a violation message for a field.
func (e FieldErrors) Add(field, message string) {
	e[field] = append(e[field], message)
}

// Error implements the error interface.
func (e FieldErrors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var b strings.Builder
	b.WriteString("registry: invalid report: ")
	for i, f := range fields {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(f)
		b.WriteString(": ")
		b.WriteString(strings.Join(e[f], ", "))
	}
	return b.String()
}

// StorageError wraps a failure of the backing store. Lookup and write
// failures both surface as StorageError; the underlying cause is available
// via errors.Unwrap / errors.Is.
type StorageError struct {
	// Op identifies the failing store operation: "lookup", "insert" or "update".
	Op string

	Err error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("registry: storage %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *StorageError) Unwrap() error {
	return e.Err
}
