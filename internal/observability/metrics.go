// Package observability provides Prometheus metrics, OpenTelemetry tracing,
// and structured logging for codekb.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector holds all Prometheus metrics for codekb.
type MetricsCollector struct {
	// HTTP request metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight *prometheus.GaugeVec
	HTTPErrors           *prometheus.CounterVec

	// Ingestion metrics
	IngestOperations  *prometheus.CounterVec
	IngestDuration    *prometheus.HistogramVec
	IngestedFilesTotal  prometheus.Counter
	IngestedChunksTotal prometheus.Counter
	IngestErrorsTotal *prometheus.CounterVec

	// Chat / LLM metrics
	ChatRequests    *prometheus.CounterVec
	ChatDuration    *prometheus.HistogramVec
	ChatConfidence  *prometheus.CounterVec
	ChatErrorsTotal *prometheus.CounterVec

	// Retrieval metrics
	RetrievalRequests *prometheus.CounterVec
	RetrievalDuration *prometheus.HistogramVec
	RetrievalResults  *prometheus.HistogramVec
	StoreSizeBytes    prometheus.Gauge

	// Rate limiting metrics
	RateLimitRequests  *prometheus.CounterVec
	RateLimitHits      *prometheus.CounterVec
	RateLimitDuration  *prometheus.HistogramVec
	RateLimitRemaining *prometheus.GaugeVec

	// System metrics
	SystemStartTime prometheus.Gauge
	SystemHealth    *prometheus.GaugeVec
}

// NewMetricsCollector creates and registers all Prometheus metrics.
func NewMetricsCollector(namespace string) *MetricsCollector {
	return NewMetricsCollectorWithRegistry(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates metrics with a specific registry (for testing).
func NewMetricsCollectorWithRegistry(namespace string, reg prometheus.Registerer) *MetricsCollector {
	if namespace == "" {
		namespace = "codekb"
	}

	// Helper function to create auto-registered metrics
	autoCounterVec := func(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec {
		return promauto.With(reg).NewCounterVec(opts, labelNames)
	}

	autoHistogramVec := func(opts prometheus.HistogramOpts, labelNames []string) *prometheus.HistogramVec {
		return promauto.With(reg).NewHistogramVec(opts, labelNames)
	}

	autoGaugeVec := func(opts prometheus.GaugeOpts, labelNames []string) *prometheus.GaugeVec {
		return promauto.With(reg).NewGaugeVec(opts, labelNames)
	}

	autoCounter := func(opts prometheus.CounterOpts) prometheus.Counter {
		return promauto.With(reg).NewCounter(opts)
	}

	autoGauge := func(opts prometheus.GaugeOpts) prometheus.Gauge {
		return promauto.With(reg).NewGauge(opts)
	}

	return &MetricsCollector{
		// HTTP request metrics
		HTTPRequestsTotal: autoCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests by route and status",
			},
			[]string{"route", "status"},
		),
		HTTPRequestDuration: autoHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"route"},
		),
		HTTPRequestsInFlight: autoGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP requests currently being handled",
			},
			[]string{"route"},
		),
		HTTPErrors: autoCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_errors_total",
				Help:      "Total number of HTTP errors by route and error type",
			},
			[]string{"route", "error_type"},
		),

		// Ingestion metrics
		IngestOperations: autoCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ingest_operations_total",
				Help:      "Total number of ingestion operations by type and status",
			},
			[]string{"operation", "status"},
		),
		IngestDuration: autoHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ingest_operation_duration_seconds",
				Help:      "Ingestion operation duration in seconds",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"operation"},
		),
		IngestedFilesTotal: autoCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ingested_files_total",
				Help:      "Total number of files ingested",
			},
		),
		IngestedChunksTotal: autoCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ingested_chunks_total",
				Help:      "Total number of chunks ingested",
			},
		),
		IngestErrorsTotal: autoCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ingest_errors_total",
				Help:      "Total number of ingestion errors by type",
			},
			[]string{"error_type"},
		),

		// Chat / LLM metrics
		ChatRequests: autoCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chat_requests_total",
				Help:      "Total number of chat requests by backend and status",
			},
			[]string{"backend", "status"},
		),
		ChatDuration: autoHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "chat_duration_seconds",
				Help:      "Chat answer generation duration in seconds",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"backend"},
		),
		ChatConfidence: autoCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chat_confidence_total",
				Help:      "Total number of chat answers by resulting confidence level",
			},
			[]string{"confidence"},
		),
		ChatErrorsTotal: autoCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chat_errors_total",
				Help:      "Total number of chat errors by backend and type",
			},
			[]string{"backend", "error_type"},
		),

		// Retrieval metrics
		RetrievalRequests: autoCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retrieval_requests_total",
				Help:      "Total number of retrieval requests by strategy and status",
			},
			[]string{"strategy", "status"},
		),
		RetrievalDuration: autoHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "retrieval_duration_seconds",
				Help:      "Retrieval duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"strategy"},
		),
		RetrievalResults: autoHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "retrieval_results_count",
				Help:      "Number of chunks returned by a retrieval request",
				Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
			},
			[]string{"strategy"},
		),
		StoreSizeBytes: autoGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "store_size_bytes",
				Help:      "Total size of the knowledge-base store in bytes",
			},
		),

		// Rate limiting metrics
		RateLimitRequests: autoCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_requests_total",
				Help:      "Total number of rate limit checks by limiter type and result",
			},
			[]string{"limiter_type", "result"},
		),
		RateLimitHits: autoCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_hits_total",
				Help:      "Total number of rate limit hits by limiter type",
			},
			[]string{"limiter_type"},
		),
		RateLimitDuration: autoHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rate_limit_duration_seconds",
				Help:      "Rate limit check duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1},
			},
			[]string{"limiter_type"},
		),
		RateLimitRemaining: autoGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "rate_limit_remaining_requests",
				Help:      "Number of remaining requests for rate limited clients",
			},
			[]string{"limiter_type", "identifier"},
		),

		// System metrics
		SystemStartTime: autoGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "system_start_time_seconds",
				Help:      "Unix timestamp when the system started",
			},
		),
		SystemHealth: autoGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "system_health_status",
				Help:      "System health status (1 = healthy, 0 = unhealthy)",
			},
			[]string{"component"},
		),
	}
}

// RecordHTTPRequest records metrics for an HTTP request.
func (m *MetricsCollector) RecordHTTPRequest(route, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordHTTPError records an HTTP error.
func (m *MetricsCollector) RecordHTTPError(route, errorType string) {
	m.HTTPErrors.WithLabelValues(route, errorType).Inc()
}

// TrackHTTPInFlight tracks in-flight HTTP requests.
func (m *MetricsCollector) TrackHTTPInFlight(route string, delta float64) {
	m.HTTPRequestsInFlight.WithLabelValues(route).Add(delta)
}

// RecordIngestOperation records metrics for an ingestion operation.
func (m *MetricsCollector) RecordIngestOperation(operation, status string, duration time.Duration) {
	m.IngestOperations.WithLabelValues(operation, status).Inc()
	m.IngestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordIngestedFiles increments the ingested files counter.
func (m *MetricsCollector) RecordIngestedFiles(count int) {
	m.IngestedFilesTotal.Add(float64(count))
}

// RecordIngestedChunks increments the ingested chunks counter.
func (m *MetricsCollector) RecordIngestedChunks(count int) {
	m.IngestedChunksTotal.Add(float64(count))
}

// RecordIngestError records an ingestion error.
func (m *MetricsCollector) RecordIngestError(errorType string) {
	m.IngestErrorsTotal.WithLabelValues(errorType).Inc()
}

// RecordChat records metrics for a chat request.
func (m *MetricsCollector) RecordChat(backend, status string, duration time.Duration) {
	m.ChatRequests.WithLabelValues(backend, status).Inc()
	m.ChatDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// RecordChatConfidence records the confidence level of a chat answer.
func (m *MetricsCollector) RecordChatConfidence(confidence string) {
	m.ChatConfidence.WithLabelValues(confidence).Inc()
}

// RecordChatError records a chat error.
func (m *MetricsCollector) RecordChatError(backend, errorType string) {
	m.ChatErrorsTotal.WithLabelValues(backend, errorType).Inc()
}

// RecordRetrieval records metrics for a retrieval request.
func (m *MetricsCollector) RecordRetrieval(strategy, status string, duration time.Duration, resultCount int) {
	m.RetrievalRequests.WithLabelValues(strategy, status).Inc()
	m.RetrievalDuration.WithLabelValues(strategy).Observe(duration.Seconds())
	m.RetrievalResults.WithLabelValues(strategy).Observe(float64(resultCount))
}

// UpdateStoreSize updates the store size metric.
func (m *MetricsCollector) UpdateStoreSize(sizeBytes int64) {
	m.StoreSizeBytes.Set(float64(sizeBytes))
}

// SetSystemStartTime sets the system start time.
func (m *MetricsCollector) SetSystemStartTime(startTime time.Time) {
	m.SystemStartTime.Set(float64(startTime.Unix()))
}

// SetComponentHealth sets the health status of a component.
func (m *MetricsCollector) SetComponentHealth(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.SystemHealth.WithLabelValues(component).Set(value)
}

// RecordRateLimit records metrics for a rate limit check.
func (m *MetricsCollector) RecordRateLimit(limiterType, result string, duration time.Duration) {
	m.RateLimitRequests.WithLabelValues(limiterType, result).Inc()
	m.RateLimitDuration.WithLabelValues(limiterType).Observe(duration.Seconds())

	if result == "hit" {
		m.RateLimitHits.WithLabelValues(limiterType).Inc()
	}
}

// UpdateRateLimitRemaining updates the remaining requests gauge.
func (m *MetricsCollector) UpdateRateLimitRemaining(limiterType, identifier string, remaining int64) {
	m.RateLimitRemaining.WithLabelValues(limiterType, identifier).Set(float64(remaining))
}
