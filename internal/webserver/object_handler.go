package webserver

import (
	"context"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/mdouchement/depot/internal/model"
	"github.com/mdouchement/depot/internal/store"
	"github.com/mdouchement/depot/internal/webserver/serializer"
	"github.com/mdouchement/depot/internal/webserver/service"
	"github.com/mdouchement/depot/internal/webserver/weberror"
	"github.com/mdouchement/logger"
)

type object struct {
	logger  logger.Logger
	manager *store.Manager

	maxImageEdge       int
	archiveConcurrency int
}

func (h *object) List(c echo.Context) error {
	c.Set("handler_method", "object.List")

	container, err := containerParam(c)
	if err != nil {
		return err
	}

	s, err := connect(c, h.manager)
	if err != nil {
		return err
	}

	objects, err := s.Objects(c.Request().Context(), container)
	if err != nil {
		return weberror.From(err)
	}

	//

	if c.Request().Header.Get("Accept") == "text/plain" {
		return c.String(http.StatusOK, serializer.TextObjects(objects))
	}
	// "application/json"
	return c.JSON(http.StatusOK, serializer.Objects(objects))
}

func (h *object) Show(c echo.Context) error {
	c.Set("handler_method", "object.Show")

	container, err := containerParam(c)
	if err != nil {
		return err
	}

	s, err := connect(c, h.manager)
	if err != nil {
		return err
	}

	object, err := s.Object(c.Request().Context(), container, param(c, "id"))
	if err != nil {
		return weberror.From(err)
	}

	return c.JSON(http.StatusOK, serializer.Object(object))
}

func (h *object) Group(c echo.Context) error {
	c.Set("handler_method", "object.Group")

	container, err := containerParam(c)
	if err != nil {
		return err
	}

	s, err := connect(c, h.manager)
	if err != nil {
		return err
	}

	objects, err := s.ObjectsByCorrelation(c.Request().Context(), container, param(c, "correlation"))
	if err != nil {
		return weberror.From(err)
	}

	return c.JSON(http.StatusOK, serializer.Objects(objects))
}

func (h *object) Delete(c echo.Context) error {
	c.Set("handler_method", "object.Delete")

	container, err := containerParam(c)
	if err != nil {
		return err
	}

	s, err := connect(c, h.manager)
	if err != nil {
		return err
	}

	err = s.Delete(c.Request().Context(), container, param(c, "id"))
	if err != nil {
		return weberror.From(err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *object) Upload(c echo.Context) error {
	c.Set("handler_method", "object.Upload")

	container, err := containerParam(c)
	if err != nil {
		return err
	}

	return h.upload(c, func(ctx context.Context, s store.Store, mr *multipart.Reader) ([]*model.Object, error) {
		uploader := service.NewObjectUploader(h.logger, s)
		return uploader.Upload(ctx, container, mr)
	})
}

func (h *object) UploadArchive(c echo.Context) error {
	c.Set("handler_method", "object.UploadArchive")

	container, err := containerParam(c)
	if err != nil {
		return err
	}

	return h.upload(c, func(ctx context.Context, s store.Store, mr *multipart.Reader) ([]*model.Object, error) {
		uploader := service.NewArchiveUploader(h.logger, s)
		if h.maxImageEdge > 0 {
			uploader.MaxImageEdge = h.maxImageEdge
		}
		uploader.Concurrency = h.archiveConcurrency
		return uploader.Upload(ctx, container, mr)
	})
}

func (h *object) Download(c echo.Context) error {
	c.Set("handler_method", "object.Download")

	container, err := containerParam(c)
	if err != nil {
		return err
	}

	s, err := connect(c, h.manager)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	object, err := service.Resolve(ctx, s, container, param(c, "id"))
	if err != nil {
		return weberror.From(err)
	}

	//

	downloader := service.NewObjectDownloader(s, object)

	r, err := downloader.Stream(ctx)
	if err != nil {
		return weberror.From(err)
	}
	defer r.Close()

	c.Response().Header().Set(echo.HeaderContentLength, strconv.FormatInt(downloader.Size(), 10))
	c.Response().Header().Set("Etag", downloader.Checksum())
	return c.Stream(http.StatusOK, downloader.ContentType(), r)
}

func (h *object) upload(c echo.Context, fn func(context.Context, store.Store, *multipart.Reader) ([]*model.Object, error)) error {
	mr, err := c.Request().MultipartReader()
	if err != nil {
		return weberror.New(http.StatusBadRequest, err.Error())
	}

	s, err := connect(c, h.manager)
	if err != nil {
		return err
	}

	objects, err := fn(c.Request().Context(), s, mr)
	if err != nil {
		return weberror.From(err)
	}

	return c.JSON(http.StatusCreated, serializer.Objects(objects))
}

//
// Helpers
//

func connect(c echo.Context, manager *store.Manager) (store.Store, error) {
	s, err := manager.Connect(c.Request().Context())
	if err != nil {
		return nil, weberror.From(err)
	}
	return s, nil
}

// param returns the unescaped path parameter.
func param(c echo.Context, name string) string {
	v := c.Param(name)
	if uv, err := url.PathUnescape(v); err == nil {
		return uv
	}
	return v
}

// containerParam returns the container path parameter, rejecting the names that cannot be stored.
func containerParam(c echo.Context) (string, error) {
	container := param(c, "container")
	if err := service.ValidateContainer(container); err != nil {
		return "", weberror.From(err)
	}
	return container, nil
}
