package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/mdouchement/logger"
)

// Logger logs every request with the handler that served it.
func Logger(log logger.Logger) echo.MiddlewareFunc {
	log = log.WithPrefix("[webserver]")

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				// Renders the error so the logged status is the final one.
				c.Error(err)
			}

			handler, _ := c.Get("handler_method").(string)
			if handler == "" {
				handler = c.Path()
			}

			log.Infof("%s %s %d %s (%s)",
				c.Request().Method,
				c.Request().URL.RequestURI(),
				c.Response().Status,
				time.Since(start).Round(time.Microsecond),
				handler,
			)
			return nil
		}
	}
}
