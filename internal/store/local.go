package store

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mdouchement/depot/internal/database"
	"github.com/mdouchement/depot/internal/model"
	"github.com/mdouchement/depot/internal/storage"
	"github.com/pkg/errors"
)

const (
	localDatabase  = "depot.db"
	localWorkspace = "blobs"
)

type local struct {
	db      database.Client
	storage storage.Backend
}

// LocalPaths returns the database file and the blob workspace used by a local engine rooted in dir.
func LocalPaths(dir string) (dbpath, workspace string) {
	return filepath.Join(dir, localDatabase), filepath.Join(dir, localWorkspace)
}

// OpenLocal opens the local engine rooted in dir.
// Metadata are stored in a Storm database and bytes on the file system.
func OpenLocal(dir string) (Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, ConnectionError(err, "could not create local storage directory")
	}

	dbpath, workspace := LocalPaths(dir)

	db, err := database.StormOpen(dbpath)
	if err != nil {
		return nil, ConnectionError(err, "could not open local database")
	}

	return NewLocal(db, storage.NewFileSystem(workspace)), nil
}

// NewLocal returns a Store backed by the given database and blob backend.
func NewLocal(db database.Client, backend storage.Backend) Store {
	return &local{
		db:      db,
		storage: backend,
	}
}

func (s *local) Name() string {
	return "local/" + s.storage.Name()
}

func (s *local) Containers(_ context.Context) ([]string, error) {
	return s.db.ListContainers()
}

func (s *local) DeleteContainer(ctx context.Context, container string) error {
	objects, err := s.db.FindObjectsByContainer(container)
	if err != nil {
		return err
	}
	if len(objects) == 0 {
		return nil
	}

	for _, object := range objects {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := s.destroy(object); err != nil {
			return errors.Wrapf(err, "could not delete container %s", container)
		}
	}

	err = s.storage.RemoveAll(container)
	return errors.Wrap(err, "could not delete container workspace")
}

func (s *local) Objects(_ context.Context, container string) ([]*model.Object, error) {
	return s.db.FindObjectsByContainer(container)
}

func (s *local) ObjectsByCorrelation(_ context.Context, container, correlationID string) ([]*model.Object, error) {
	return s.db.FindObjectsByCorrelationID(container, correlationID)
}

func (s *local) Object(_ context.Context, container, id string) (*model.Object, error) {
	object, err := s.db.FindObject(container, id)
	if s.db.IsNotFound(err) {
		return nil, NotFound("object %s/%s", container, id)
	}
	if err != nil {
		return nil, err
	}
	return object, nil
}

func (s *local) ObjectByFilename(_ context.Context, container, filename string) (*model.Object, error) {
	object, err := s.db.FindObjectByFilename(container, filename)
	if s.db.IsNotFound(err) {
		return nil, NotFound("object %s/%s", container, filename)
	}
	if err != nil {
		return nil, err
	}
	return object, nil
}

func (s *local) Put(ctx context.Context, object *model.Object, r io.Reader) error {
	wc, err := s.storage.Writer(object.Container, object.ID)
	if err != nil {
		return WriteError(err, "could not open blob")
	}

	h := md5.New()
	w := io.MultiWriter(h, wc)

	n, err := io.Copy(w, &contextReader{ctx: ctx, r: r})
	if err != nil {
		wc.Close()
		s.storage.Remove(object.Container, object.ID)
		return WriteError(err, "could not write blob")
	}

	if err = wc.Close(); err != nil {
		s.storage.Remove(object.Container, object.ID)
		return WriteError(err, "could not commit blob")
	}

	object.Size = n
	object.Checksum = hex.EncodeToString(h.Sum(nil))

	if err = s.db.Save(object); err != nil {
		s.storage.Remove(object.Container, object.ID)
		return WriteError(err, "could not save object")
	}
	return nil
}

func (s *local) Get(_ context.Context, object *model.Object) (io.ReadCloser, error) {
	rc, err := s.storage.Reader(object.Container, object.ID)
	if os.IsNotExist(errors.Cause(err)) {
		return nil, NotFound("blob %s/%s", object.Container, object.ID)
	}
	return rc, err
}

func (s *local) Delete(_ context.Context, container, id string) error {
	object, err := s.db.FindObject(container, id)
	if s.db.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}

	return s.destroy(object)
}

func (s *local) Sweep(ctx context.Context, grace time.Duration) (int, error) {
	objects, err := s.db.AllObjects()
	if err != nil {
		return 0, errors.Wrap(err, "sweep")
	}

	known := make(map[string]bool, len(objects))
	for _, object := range objects {
		known[object.ID] = true
	}

	blobs, err := s.storage.Blobs()
	if err != nil {
		return 0, errors.Wrap(err, "sweep")
	}

	var n int
	deadline := time.Now().Add(-grace)
	for _, blob := range blobs {
		if err := ctx.Err(); err != nil {
			return n, err
		}

		// Blobs younger than grace may belong to an upload in progress.
		if known[blob.ID] || blob.ModifiedAt.After(deadline) {
			continue
		}

		if err := s.storage.Remove(blob.Container, blob.ID); err != nil {
			return n, errors.Wrap(err, "sweep")
		}
		n++
	}

	return n, errors.Wrap(s.storage.Cleanup(), "sweep")
}

func (s *local) Close() error {
	return s.db.Close()
}

func (s *local) destroy(object *model.Object) error {
	err := s.storage.Remove(object.Container, object.ID)
	if err != nil {
		return errors.Wrap(err, "could not delete blob")
	}

	err = s.db.DeleteObject(object.ID)
	return errors.Wrap(err, "could not delete object")
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *contextReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
