package service

import (
	"io"
	"mime/multipart"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidRequest is returned when the request body is malformed.
var ErrInvalidRequest = errors.New("invalid request")

type requestError struct {
	cause error
}

// InvalidRequest flags cause as an ErrInvalidRequest.
func InvalidRequest(cause error, message string) error {
	return &requestError{cause: errors.Wrap(cause, message)}
}

func (e *requestError) Error() string {
	return ErrInvalidRequest.Error() + ": " + e.cause.Error()
}

func (e *requestError) Is(target error) bool {
	return target == ErrInvalidRequest
}

func (e *requestError) Unwrap() error {
	return e.cause
}

// ValidateContainer rejects container names that cannot be used as a single path segment.
func ValidateContainer(name string) error {
	switch {
	case name == "", name == ".", name == "..":
	case strings.ContainsAny(name, `/\`):
	default:
		return nil
	}
	return InvalidRequest(errors.Errorf("container %q", name), "invalid container name")
}

// recorder keeps the error returned by the underlying reader.
// It tells apart a malformed request body from a storage failure.
type recorder struct {
	r   io.Reader
	err error
}

func (r *recorder) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if err != nil && err != io.EOF {
		r.err = err
	}
	return n, err
}

// nextFilePart returns the next part of mr carrying a file.
// Form fields are skipped.
func nextFilePart(mr *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, InvalidRequest(err, "could not read multipart body")
		}

		if part.FileName() == "" {
			part.Close()
			continue
		}
		return part, nil
	}
}
