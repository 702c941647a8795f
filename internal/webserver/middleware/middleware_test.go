package middleware_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/mdouchement/depot/internal/store"
	"github.com/mdouchement/depot/internal/webserver/middleware"
	"github.com/mdouchement/depot/internal/webserver/weberror"
	"github.com/mdouchement/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func engine(t *testing.T) (*echo.Echo, *prometheus.Registry) {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)
	l := logger.WrapLogrus(log)

	registry := prometheus.NewRegistry()

	e := echo.New()
	e.HTTPErrorHandler = middleware.NewHTTPErrorHandler(l)
	e.Use(middleware.Logger(l))
	e.Use(middleware.NewMetrics(registry).Middleware())
	e.Use(middleware.Dumper(l))

	e.GET("/ok", func(c echo.Context) error {
		c.Set("handler_method", "test.OK")
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/missing", func(c echo.Context) error {
		c.Set("handler_method", "test.Missing")
		return store.NotFound("object %s", "x")
	})
	e.GET("/teapot", func(c echo.Context) error {
		return weberror.New(http.StatusTeapot, "short and stout")
	})

	return e, registry
}

func TestErrorRendering(t *testing.T) {
	e, _ := engine(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"message":"object x: not found"`)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/teapot", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Contains(t, rec.Body.String(), "short and stout")

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetrics(t *testing.T) {
	e, registry := engine(t)

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", strings.NewReader("body")))

	expected := `
# HELP depot_response_bytes_total Total volume of response payloads emitted in bytes.
# TYPE depot_response_bytes_total counter
depot_response_bytes_total{code="200",handler="test.OK",method="GET"} 8
`
	assert.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "depot_response_bytes_total"))

	n, err := testutil.GatherAndCount(registry, "depot_request_bytes_total")
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
}
