package service

import (
	"context"
	"io"
	"mime/multipart"

	"github.com/mdouchement/depot/internal/archive"
	"github.com/mdouchement/depot/internal/model"
	"github.com/mdouchement/depot/internal/pipeline"
	"github.com/mdouchement/depot/internal/store"
	"github.com/mdouchement/depot/internal/xpath"
	"github.com/mdouchement/logger"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

var errEntryAborted = errors.New("entry write aborted")

// An ArchiveUploader stores every file of an uploaded zip archive as an independent object.
// All the objects of one upload share a correlation identifier.
type ArchiveUploader struct {
	logger logger.Logger
	store  store.Store

	// MaxImageEdge bounds the longest edge of the stored images, zero disables resizing.
	MaxImageEdge int
	// Concurrency bounds the number of entries written at the same time, zero means unbounded.
	Concurrency int
}

// NewArchiveUploader returns a new ArchiveUploader.
func NewArchiveUploader(log logger.Logger, s store.Store) *ArchiveUploader {
	return &ArchiveUploader{
		logger:       log.WithPrefix("[archive]"),
		store:        s,
		MaxImageEdge: pipeline.MaxImageEdge,
	}
}

// Upload decodes the first file part of mr as a zip stream and stores its entries into container.
//
// Entries are decompressed sequentially while the writes of the previous entries complete.
// The first failing write fails the whole upload; entries already committed are kept.
func (s *ArchiveUploader) Upload(ctx context.Context, container string, mr *multipart.Reader) ([]*model.Object, error) {
	part, err := nextFilePart(mr)
	if err == io.EOF {
		return nil, InvalidRequest(errors.New("no file part"), "missing archive")
	}
	if err != nil {
		return nil, err
	}
	defer part.Close()

	correlationID := model.NewID()
	zr := archive.NewReader(part)

	g, gctx := errgroup.WithContext(ctx)
	if s.Concurrency > 0 {
		g.SetLimit(s.Concurrency)
	}

	objects := make([]*model.Object, 0)
	var rerr error

	for gctx.Err() == nil {
		header, err := zr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			rerr = InvalidRequest(err, "could not read archive")
			break
		}

		filename := xpath.Base(header.Name)
		if header.IsDir() || filename == "" {
			if _, err = io.Copy(io.Discard, zr); err != nil {
				rerr = InvalidRequest(err, "could not read archive")
				break
			}
			continue
		}

		object := model.NewObject(container, filename)
		object.CorrelationID = correlationID
		objects = append(objects, object)

		stages := s.stages(object)
		pr, pw := io.Pipe()

		g.Go(func() error {
			src := pipeline.Chain(pr, stages...)
			err := s.store.Put(ctx, object, src)
			src.Close()
			pr.CloseWithError(errEntryAborted) // Releases the archive reader if Put stopped early.

			return errors.Wrap(err, header.Name)
		})

		src := &recorder{r: zr}
		_, err = io.Copy(pw, src)
		pw.CloseWithError(err)

		if src.err != nil {
			rerr = InvalidRequest(src.err, "could not read archive")
			break
		}
		if err != nil {
			break // The write task failed, Wait reports why.
		}
	}

	werr := g.Wait()
	if rerr != nil {
		s.logger.Errorf("Archive %s rejected: %s", correlationID, rerr)
		return nil, rerr
	}
	if werr != nil {
		s.logger.Errorf("Archive %s failed: %s", correlationID, werr)
		return nil, werr
	}

	s.logger.Infof("Archive %s: stored %d entries into %s", correlationID, len(objects), container)
	return objects, nil
}

func (s *ArchiveUploader) stages(object *model.Object) []pipeline.Stage {
	if s.MaxImageEdge <= 0 {
		return nil
	}

	format, ok := pipeline.ImageFormat(object.ContentType)
	if !ok {
		return nil
	}
	return []pipeline.Stage{pipeline.Downscale(s.MaxImageEdge, format)}
}
