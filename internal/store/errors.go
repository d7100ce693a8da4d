package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrAlreadyExists is returned by Create when the path is taken.
	ErrAlreadyExists = errors.New("document already exists")

	// ErrConflict is returned by a backend commit when a document read by
	// the transaction changed before the commit.
	ErrConflict = errors.New("transaction conflict")

	// ErrInvalidPath is returned for malformed document or collection paths.
	ErrInvalidPath = errors.New("invalid path")

	// ErrFieldType is returned when a field operation meets a value of the
	// wrong type, e.g. incrementing a string.
	ErrFieldType = errors.New("field has wrong type")

	// ErrNotRead is returned when a transaction writes a document it has
	// not read first.
	ErrNotRead = errors.New("document written before it was read in transaction")
)

// AbortedError is returned by RunTransaction when every attempt lost a
// commit race.
type AbortedError struct {
	Attempts int
	Err      error
}

func (e *AbortedError) Error() string {
	return fmt.Sprintf("transaction aborted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *AbortedError) Unwrap() error {
	return e.Err
}
