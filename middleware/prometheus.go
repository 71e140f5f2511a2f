package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics are labeled by route template, never by raw path.
var (
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Latency of HTTP requests by route.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"method", "route", "code"})

	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"method", "route", "code"})

	requestsInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "http_requests_in_flight",
		Help: "HTTP requests currently being served.",
	}, []string{"method", "route"})

	requestSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_size_bytes",
		Help:    "Declared request body sizes; avatar uploads dominate the top buckets.",
		Buckets: prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "route"})

	responseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_response_size_bytes",
		Help:    "Response body sizes.",
		Buckets: prometheus.ExponentialBuckets(100, 10, 5),
	}, []string{"method", "route", "code"})

	serverErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_server_errors_total",
		Help: "HTTP responses with a 5xx status.",
	}, []string{"method", "route", "code"})
)

var infrastructurePaths = []string{"/health", "/ready", "/metrics", "/readiness", "/liveness"}

// shouldCollectMetrics skips probe and scrape endpoints.
func shouldCollectMetrics(path string) bool {
	for _, skipPath := range infrastructurePaths {
		if strings.HasPrefix(path, skipPath) {
			return false
		}
	}
	return true
}

// routeLabel returns the matched route template so session ids and avatar refs
// do not become label values.
func routeLabel(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unmatched"
}

// PrometheusMiddleware records request metrics for API routes.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !shouldCollectMetrics(c.Request.URL.Path) {
			c.Next()
			return
		}

		start := time.Now()
		method, route := c.Request.Method, routeLabel(c)

		inFlight := requestsInFlight.WithLabelValues(method, route)
		inFlight.Inc()
		defer inFlight.Dec()

		if c.Request.ContentLength > 0 {
			requestSize.WithLabelValues(method, route).Observe(float64(c.Request.ContentLength))
		}

		c.Next()

		status := c.Writer.Status()
		code := strconv.Itoa(status)
		requestDuration.WithLabelValues(method, route, code).Observe(time.Since(start).Seconds())
		requestTotal.WithLabelValues(method, route, code).Inc()
		if size := c.Writer.Size(); size > 0 {
			responseSize.WithLabelValues(method, route, code).Observe(float64(size))
		}
		if status >= http.StatusInternalServerError {
			serverErrors.WithLabelValues(method, route, code).Inc()
		}
	}
}
