package store

import (
	"context"
	"io"
	"time"

	"github.com/mdouchement/depot/internal/model"
)

type (
	// A Store is a handle on the backing storage engine.
	// It owns the bytes and the metadata of every object.
	Store interface {
		// Name returns the name of the engine.
		Name() string

		// Containers returns the distinct container names.
		Containers(ctx context.Context) ([]string, error)
		// DeleteContainer deletes all the objects of the container.
		// It is not atomic: a failure leaves the container partially deleted.
		DeleteContainer(ctx context.Context, container string) error

		// Objects returns all the objects of the container.
		Objects(ctx context.Context, container string) ([]*model.Object, error)
		// ObjectsByCorrelation returns the objects sharing the given correlation identifier.
		ObjectsByCorrelation(ctx context.Context, container, correlationID string) ([]*model.Object, error)
		// Object returns the object matching the container and the identifier.
		Object(ctx context.Context, container, id string) (*model.Object, error)
		// ObjectByFilename returns the first object of the container having the given filename.
		ObjectByFilename(ctx context.Context, container, filename string) (*model.Object, error)

		// Put writes the content of r as the given object.
		// The object's Size, Checksum and timestamps are updated on success.
		Put(ctx context.Context, object *model.Object, r io.Reader) error
		// Get returns a reader over the bytes of the object.
		Get(ctx context.Context, object *model.Object) (io.ReadCloser, error)
		// Delete deletes the object. Deleting a missing object is not an error.
		Delete(ctx context.Context, container, id string) error

		// Close releases the underlying resources.
		Close() error
	}

	// A Sweeper is implemented by engines that can leave orphaned bytes behind.
	Sweeper interface {
		// Sweep removes the blobs without metadata older than grace.
		Sweep(ctx context.Context, grace time.Duration) (int, error)
	}
)
