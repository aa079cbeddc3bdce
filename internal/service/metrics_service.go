package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP
// surface and the recurrence engine. All observers are safe to call on a
// nil receiver so metrics stay strictly optional wiring.
type MetricsService struct {
	registry          *prometheus.Registry
	handler           http.Handler
	requestDuration   *prometheus.HistogramVec
	requestTotal      *prometheus.CounterVec
	expansionDuration prometheus.Histogram
	expansionSize     prometheus.Histogram
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
}

// NewMetricsService registers the core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	expansionDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "occurrence_expansion_seconds",
		Help:    "Time spent materializing occurrences for an interval query",
		Buckets: prometheus.DefBuckets,
	})

	expansionSize := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "occurrence_expansion_instances",
		Help:    "Occurrences materialized per interval query",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "occurrence_cache_hits_total",
		Help: "Interval queries served from the query cache",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "occurrence_cache_misses_total",
		Help: "Interval queries that fell through to the store",
	})

	registry.MustRegister(requestDuration, requestTotal, expansionDuration, expansionSize, cacheHits, cacheMisses)

	return &MetricsService{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		expansionDuration: expansionDuration,
		expansionSize:     expansionSize,
		cacheHits:         cacheHits,
		cacheMisses:       cacheMisses,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	if s == nil {
		return http.NotFoundHandler()
	}
	return s.handler
}

// ObserveHTTPRequest records one served request.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if s == nil {
		return
	}
	labels := []string{method, path, strconv.Itoa(status)}
	s.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(labels...).Inc()
}

// ObserveExpansion records one interval-query materialization.
func (s *MetricsService) ObserveExpansion(duration time.Duration, instances int) {
	if s == nil {
		return
	}
	s.expansionDuration.Observe(duration.Seconds())
	s.expansionSize.Observe(float64(instances))
}

// RecordCacheHit counts a query served from the cache.
func (s *MetricsService) RecordCacheHit() {
	if s == nil {
		return
	}
	s.cacheHits.Inc()
}

// RecordCacheMiss counts a query that fell through to the store.
func (s *MetricsService) RecordCacheMiss() {
	if s == nil {
		return
	}
	s.cacheMisses.Inc()
}
