package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_size_bytes",
			Help:    "HTTP request size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 6),
		},
		[]string{"method", "path"},
	)

	httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 6),
		},
		[]string{"method", "path"},
	)

	// Package resolution metrics
	PackageLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cosi_package_lookups_total",
			Help: "Total number of package lookups by result",
		},
		[]string{"result"},
	)

	PackagesSupported = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cosi_packages_supported",
			Help: "Number of distribution/version/architecture combinations with a package",
		},
	)

	PackageListsLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cosi_package_lists_loaded",
			Help: "Number of package list files loaded at startup",
		},
	)

	// Template metrics
	TemplateCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cosi_template_cache_hits_total",
			Help: "Total number of template cache hits",
		},
	)

	TemplateCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cosi_template_cache_misses_total",
			Help: "Total number of template cache misses",
		},
	)
)

// Metrics returns a middleware that records Prometheus metrics
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		// Record request size
		if r.ContentLength > 0 {
			httpRequestSize.WithLabelValues(r.Method, normalizePath(r.URL.Path)).Observe(float64(r.ContentLength))
		}

		next.ServeHTTP(ww, r)

		// Record metrics
		duration := time.Since(start).Seconds()
		status := strconv.Itoa(ww.Status())
		path := normalizePath(r.URL.Path)

		httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
		httpResponseSize.WithLabelValues(r.Method, path).Observe(float64(ww.BytesWritten()))
	})
}

// normalizePath normalizes URL paths for metrics labels
// This prevents cardinality explosion from dynamic path segments
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/template/"):
		return "/template/{category}/{name}"
	case path == "/package", path == "/packages", path == "/health",
		path == "/ping", path == "/version", path == "/metrics":
		return path
	default:
		return "other"
	}
}
