package middleware

import (
	"net/http/httputil"

	"github.com/labstack/echo/v4"
	"github.com/mdouchement/logger"
)

// Dumper logs the headers of every request and response. Bodies are never dumped.
func Dumper(log logger.Logger) echo.MiddlewareFunc {
	log = log.WithPrefix("[dump]")

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			payload, err := httputil.DumpRequest(c.Request(), false)
			if err != nil {
				log.Errorf("DumpRequest: %s", err)
			}
			log.Debugf("Request:\n%s", payload)

			err = next(c)

			log.Debugf("Response: %d %v", c.Response().Status, c.Response().Header())
			return err
		}
	}
}
