package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mdouchement/depot/internal/webserver/weberror"
	"github.com/mdouchement/logger"
)

// NewHTTPErrorHandler is a middleware that formats rendered errors.
func NewHTTPErrorHandler(log logger.Logger) func(err error, c echo.Context) {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			// Streaming has started, the status can no longer change.
			log.Errorf("%s %s: %s", c.Request().Method, c.Request().URL.Path, err)
			return
		}

		var err2 error

		switch err := err.(type) {
		case *echo.HTTPError:
			err2 = weberror.New(err.Code, http.StatusText(err.Code))
			err2 = c.JSON(weberror.StatusCode(err2), err2)
		case *weberror.Error:
			err2 = c.JSON(weberror.StatusCode(err), err)
		default:
			err = weberror.From(err)
			err2 = c.JSON(weberror.StatusCode(err), err)
		}

		if weberror.StatusCode(err) >= http.StatusInternalServerError {
			log.Error(err)
		} else {
			log.Debug(err)
		}
		if err2 != nil {
			log.Errorf("HTTPErrorHandler: %s", err2)
		}
	}
}
