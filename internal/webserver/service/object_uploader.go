package service

import (
	"context"
	"io"
	"mime/multipart"

	"github.com/mdouchement/depot/internal/model"
	"github.com/mdouchement/depot/internal/store"
	"github.com/mdouchement/logger"
)

// An ObjectUploader stores every file of a multipart body as an independent object.
type ObjectUploader struct {
	logger logger.Logger
	store  store.Store
}

// NewObjectUploader returns a new ObjectUploader.
func NewObjectUploader(log logger.Logger, s store.Store) *ObjectUploader {
	return &ObjectUploader{
		logger: log,
		store:  s,
	}
}

// Upload performs the upload of all the file parts of mr into container.
func (s *ObjectUploader) Upload(ctx context.Context, container string, mr *multipart.Reader) ([]*model.Object, error) {
	objects := make([]*model.Object, 0)

	for {
		part, err := nextFilePart(mr)
		if err == io.EOF {
			return objects, nil
		}
		if err != nil {
			return nil, err
		}

		object := model.NewObject(container, part.FileName())
		src := &recorder{r: part}

		err = s.store.Put(ctx, object, src)
		part.Close()
		if err != nil {
			if src.err != nil {
				return nil, InvalidRequest(src.err, "could not read "+object.Filename)
			}
			return nil, err
		}

		s.logger.Debugf("Stored %s/%s (%s, %d bytes)", container, object.ID, object.Filename, object.Size)
		objects = append(objects, object)
	}
}
