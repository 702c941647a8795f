package store

import (
	"github.com/pkg/errors"
)

var (
	// ErrConnection is returned when the backing store is unreachable or misconfigured.
	ErrConnection = errors.New("storage connection failed")
	// ErrNotFound is returned when a container or an object does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStorageWrite is returned when the bytes of an object could not be written.
	ErrStorageWrite = errors.New("storage write failed")
)

type kindError struct {
	kind  error
	cause error
}

func wrapKind(kind, cause error, message string) error {
	return &kindError{
		kind:  kind,
		cause: errors.Wrap(cause, message),
	}
}

func (e *kindError) Error() string {
	return e.kind.Error() + ": " + e.cause.Error()
}

func (e *kindError) Is(target error) bool {
	return target == e.kind
}

func (e *kindError) Unwrap() error {
	return e.cause
}

// ConnectionError flags cause as an ErrConnection.
func ConnectionError(cause error, message string) error {
	return wrapKind(ErrConnection, cause, message)
}

// WriteError flags cause as an ErrStorageWrite.
func WriteError(cause error, message string) error {
	return wrapKind(ErrStorageWrite, cause, message)
}

// NotFound returns an ErrNotFound describing the missing entity.
func NotFound(format string, args ...interface{}) error {
	return errors.Wrapf(ErrNotFound, format, args...)
}
