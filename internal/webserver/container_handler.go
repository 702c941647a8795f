package webserver

import (
	"mime"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mdouchement/depot/internal/store"
	"github.com/mdouchement/depot/internal/webserver/serializer"
	"github.com/mdouchement/depot/internal/webserver/service"
	"github.com/mdouchement/depot/internal/webserver/weberror"
	"github.com/mdouchement/logger"
)

type container struct {
	logger  logger.Logger
	manager *store.Manager
}

func (h *container) List(c echo.Context) error {
	c.Set("handler_method", "container.List")

	s, err := connect(c, h.manager)
	if err != nil {
		return err
	}

	containers, err := s.Containers(c.Request().Context())
	if err != nil {
		return weberror.From(err)
	}

	//

	if c.Request().Header.Get("Accept") == "text/plain" {
		return c.String(http.StatusOK, serializer.TextContainers(containers))
	}
	// "application/json"
	return c.JSON(http.StatusOK, serializer.Containers(containers))
}

func (h *container) Delete(c echo.Context) error {
	c.Set("handler_method", "container.Delete")

	container, err := containerParam(c)
	if err != nil {
		return err
	}

	s, err := connect(c, h.manager)
	if err != nil {
		return err
	}

	err = s.DeleteContainer(c.Request().Context(), container)
	if err != nil {
		return weberror.From(err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *container) Download(c echo.Context) error {
	c.Set("handler_method", "container.Download")

	container, err := containerParam(c)
	if err != nil {
		return err
	}

	s, err := connect(c, h.manager)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	downloader, err := service.NewArchiveDownloader(ctx, h.logger, s, container)
	if err != nil {
		return weberror.From(err)
	}

	//

	disposition := mime.FormatMediaType("attachment", map[string]string{
		"filename": downloader.Filename(c.QueryParam("filename")),
	})

	c.Response().Header().Set(echo.HeaderContentType, "application/zip")
	c.Response().Header().Set(echo.HeaderContentDisposition, disposition)
	c.Response().WriteHeader(http.StatusOK)

	return downloader.Stream(ctx, c.Response())
}
