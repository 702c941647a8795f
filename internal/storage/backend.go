package storage

import (
	"io"
	"time"
)

type (
	// Backend is the interface that wraps the basic blob operations.
	// Blobs are addressed by the container they belong to and the object identifier.
	Backend interface {
		// Name returns the name of the backend implementation.
		Name() string

		// Reader returns a ReadCloser of the blob.
		Reader(container, id string) (io.ReadCloser, error)
		// Writer returns a WriteCloser of the blob.
		Writer(container, id string) (io.WriteCloser, error)

		// Blobs lists all the stored blobs.
		Blobs() ([]Blob, error)

		// Remove deletes the given blob.
		Remove(container, id string) error
		// RemoveAll deletes the container and all its blobs.
		RemoveAll(container string) error
		// Cleanup cleans useless artifacts in storage.
		Cleanup() error
	}

	// A Blob describes a stored blob.
	Blob struct {
		Container  string
		ID         string
		Size       int64
		ModifiedAt time.Time
	}
)
