package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "depot"

// Metrics holds the HTTP collectors of one engine.
type Metrics struct {
	requestDurations *prometheus.SummaryVec
	requestBytes     *prometheus.CounterVec
	responseBytes    *prometheus.CounterVec
}

var labelNames = []string{"method", "handler", "code"}

// NewMetrics registers the HTTP collectors into registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestDurations: prometheus.NewSummaryVec(
			prometheus.SummaryOpts{
				Namespace:  namespace,
				Name:       "request_duration_seconds",
				Help:       "Amounts of time depot has spent answering requests in seconds.",
				Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
			},
			labelNames,
		),
		requestBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "request_bytes_total",
				Help:      "Total volume of request payloads received in bytes.",
			},
			labelNames,
		),
		responseBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "response_bytes_total",
				Help:      "Total volume of response payloads emitted in bytes.",
			},
			labelNames,
		),
	}

	registerer.MustRegister(m.requestDurations, m.requestBytes, m.responseBytes)
	return m
}

// Middleware instruments the requests.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			handler, _ := c.Get("handler_method").(string)
			if handler == "" {
				handler = c.Path()
			}
			labels := prometheus.Labels{
				"method":  c.Request().Method,
				"handler": handler,
				"code":    strconv.Itoa(c.Response().Status),
			}

			m.requestDurations.With(labels).Observe(time.Since(start).Seconds())
			if n := c.Request().ContentLength; n > 0 {
				m.requestBytes.With(labels).Add(float64(n))
			}
			m.responseBytes.With(labels).Add(float64(c.Response().Size))
			return nil
		}
	}
}
