package server

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zapinsight_http_request_duration_seconds",
			Help:    "Duration of HTTP requests by route and status.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	messagesIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zapinsight_messages_ingested_total",
			Help: "Webhook messages accepted, by outcome.",
		},
		[]string{"outcome"},
	)
)

// metricsMiddleware records a duration histogram per route. The route
// template (not the raw URI) is used as the path label to keep
// cardinality bounded.
func metricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			path := c.Path()
			if path == "" {
				path = "/not-found"
			}
			status := c.Response().Status
			if err != nil {
				if he, okCast := err.(*echo.HTTPError); okCast {
					status = he.Code
				}
			}

			httpRequestDuration.
				WithLabelValues(c.Request().Method, path, strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}
