package service

import (
	"context"
	"io"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/mdouchement/depot/internal/model"
	"github.com/mdouchement/depot/internal/store"
	"github.com/mdouchement/depot/internal/xpath"
	"github.com/mdouchement/logger"
	"github.com/pkg/errors"
)

// Resolve finds the object of the container designated by id.
// id is either an object identifier or a filename.
func Resolve(ctx context.Context, s store.Store, container, id string) (*model.Object, error) {
	if model.IsID(id) {
		return s.Object(ctx, container, id)
	}
	return s.ObjectByFilename(ctx, container, id)
}

//
//-----
//

// An ObjectDownloader streams the bytes of one object.
type ObjectDownloader struct {
	store  store.Store
	object *model.Object
}

// NewObjectDownloader returns a new ObjectDownloader.
func NewObjectDownloader(s store.Store, object *model.Object) *ObjectDownloader {
	return &ObjectDownloader{
		store:  s,
		object: object,
	}
}

func (s *ObjectDownloader) Stream(ctx context.Context) (io.ReadCloser, error) {
	return s.store.Get(ctx, s.object)
}

func (s *ObjectDownloader) ContentType() string {
	if s.object.ContentType == "" {
		return xpath.MIMEOctetStream
	}
	return s.object.ContentType
}

func (s *ObjectDownloader) Size() int64 {
	return s.object.Size
}

func (s *ObjectDownloader) Checksum() string {
	return s.object.Checksum
}

//
//-----
//

// An ArchiveDownloader streams all the objects of a container as a zip archive.
type ArchiveDownloader struct {
	logger    logger.Logger
	store     store.Store
	container string
	objects   []*model.Object
}

// NewArchiveDownloader returns a new ArchiveDownloader.
// It fails with store.ErrNotFound when the container holds no object.
func NewArchiveDownloader(ctx context.Context, log logger.Logger, s store.Store, container string) (*ArchiveDownloader, error) {
	objects, err := s.Objects(ctx, container)
	if err != nil {
		return nil, err
	}
	if len(objects) == 0 {
		return nil, store.NotFound("container %s", container)
	}

	return &ArchiveDownloader{
		logger:    log,
		store:     s,
		container: container,
		objects:   objects,
	}, nil
}

// Filename returns the name of the archive.
func (s *ArchiveDownloader) Filename(name string) string {
	if name == "" {
		name = "file"
	}
	return name + ".zip"
}

// Stream writes the archive to w.
// Objects are appended one after the other, each one fully drained before the next is opened.
func (s *ArchiveDownloader) Stream(ctx context.Context, w io.Writer) error {
	zw := zip.NewWriter(w)

	for _, object := range s.objects {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := s.append(ctx, zw, object); err != nil {
			return errors.Wrapf(err, "could not append %s", object.ID)
		}
	}

	return errors.Wrap(zw.Close(), "could not finalize archive")
}

func (s *ArchiveDownloader) append(ctx context.Context, zw *zip.Writer, object *model.Object) error {
	rc, err := s.store.Get(ctx, object)
	if err != nil {
		return err
	}
	defer rc.Close()

	header := &zip.FileHeader{
		Name:   object.Filename,
		Method: zip.Deflate,
	}
	if header.Name == "" {
		header.Name = object.ID
	}
	if object.CreatedAt != nil {
		header.Modified = *object.CreatedAt
	}
	if compressed(object.ContentType) {
		header.Method = zip.Store
	}

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}

	n, err := io.Copy(w, rc)
	s.logger.Debugf("Zipped %s/%s (%d bytes)", s.container, object.Filename, n)
	return err
}

// compressed reports whether deflating content of this type is pointless.
func compressed(contentType string) bool {
	mt := xpath.MediaType(contentType)

	switch {
	case strings.HasPrefix(mt, "image/") && mt != "image/svg+xml" && mt != "image/bmp":
		return true
	case strings.HasPrefix(mt, "video/"), strings.HasPrefix(mt, "audio/"):
		return true
	}

	switch mt {
	case "application/zip", "application/gzip", "application/x-7z-compressed", "application/x-bzip2":
		return true
	}
	return false
}
