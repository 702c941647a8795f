package webserver

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mdouchement/depot/internal/store"
	middlewarepkg "github.com/mdouchement/depot/internal/webserver/middleware"
	"github.com/mdouchement/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// A Controller is an Iversion Of Control pattern used to init the server package.
type Controller struct {
	Version string
	Logger  logger.Logger
	Manager *store.Manager
	Debug   bool
	//
	MaxImageEdge       int
	ArchiveConcurrency int
}

// A route binds a method and a path to a handler.
type route struct {
	method  string
	path    string
	handler echo.HandlerFunc
}

// EchoEngine instantiates the wep server.
func EchoEngine(ctrl Controller) *echo.Echo {
	engine := echo.New()
	engine.HideBanner = true
	engine.HidePort = true

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	engine.Use(middleware.Recover())
	engine.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		// Streams keep their Content-Length and are usually already compressed.
		Skipper: func(c echo.Context) bool {
			return strings.Contains(c.Path(), "/download/") || strings.HasSuffix(c.Path(), "/zip")
		},
	}))
	engine.Use(middlewarepkg.Logger(ctrl.Logger))
	engine.Use(middlewarepkg.NewMetrics(registry).Middleware())
	if ctrl.Debug {
		engine.Use(middlewarepkg.Dumper(ctrl.Logger))
	}

	engine.HTTPErrorHandler = middlewarepkg.NewHTTPErrorHandler(ctrl.Logger)

	engine.Pre(middleware.Rewrite(map[string]string{
		"/": "/version",
	}))

	//
	//
	//

	container := container{
		logger:  ctrl.Logger,
		manager: ctrl.Manager,
	}
	object := object{
		logger:             ctrl.Logger,
		manager:            ctrl.Manager,
		maxImageEdge:       ctrl.MaxImageEdge,
		archiveConcurrency: ctrl.ArchiveConcurrency,
	}

	routes := []route{
		// Generic handlers
		{http.MethodGet, "/version", func(c echo.Context) error {
			return c.JSON(http.StatusOK, echo.Map{
				"version": ctrl.Version,
			})
		}},
		{http.MethodGet, "/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{DisableCompression: true}))},

		// Container
		{http.MethodGet, "/containers", container.List},
		{http.MethodDelete, "/containers/:container", container.Delete},
		{http.MethodGet, "/containers/:container/zip", container.Download},

		// Object
		{http.MethodGet, "/containers/:container/files", object.List},
		{http.MethodGet, "/containers/:container/files/:id", object.Show},
		{http.MethodDelete, "/containers/:container/files/:id", object.Delete},
		{http.MethodGet, "/containers/:container/groups/:correlation", object.Group},
		{http.MethodPost, "/containers/:container/upload", object.Upload},
		{http.MethodPost, "/containers/:container/uploadArchive", object.UploadArchive},
		{http.MethodGet, "/containers/:container/download/:id", object.Download},
	}

	for _, r := range routes {
		engine.Add(r.method, r.path, r.handler)
	}

	return engine
}

// PrintRoutes prints the Echo engin exposed routes.
func PrintRoutes(e *echo.Echo) {
	ignored := map[string]bool{
		"":   true,
		".":  true,
		"/*": true,
	}

	routes := e.Routes()
	sort.Slice(routes, func(i int, j int) bool {
		return routes[i].Path < routes[j].Path
	})

	fmt.Println("Routes:")
	for _, route := range routes {
		if ignored[route.Path] {
			continue
		}
		fmt.Printf("%6s %s\n", route.Method, route.Path)
	}
}
