// Package metrics provides Prometheus metrics for the Conclave service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Deliberation outcomes
	deliberationsStarted   prometheus.Counter
	deliberationsCompleted prometheus.Counter
	deliberationsFailed    prometheus.Counter

	// Stage and model performance
	stageLatency      *prometheus.HistogramVec
	modelQueries      *prometheus.CounterVec
	modelQueryLatency *prometheus.HistogramVec

	// Quality indicators
	rankingParseMisses prometheus.Counter
	titleFallbacks     prometheus.Counter

	// HTTP surface
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	activeStreams       prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid the default Go collectors.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // singleton registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "conclave",
		subsystem:        "council",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.deliberationsStarted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "deliberations_started_total",
		Help:      "Total number of council deliberations started",
	})

	m.deliberationsCompleted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "deliberations_completed_total",
		Help:      "Total number of council deliberations that completed all stages",
	})

	m.deliberationsFailed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "deliberations_failed_total",
		Help:      "Total number of council deliberations that terminated with an error",
	})

	m.stageLatency = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "stage_latency_seconds",
			Help:      "Latency of each deliberation stage in seconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"stage"},
	)

	m.modelQueries = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "model_queries_total",
			Help:      "Total number of model gateway queries by model and outcome",
		},
		[]string{"model", "outcome"},
	)

	m.modelQueryLatency = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "model_query_latency_seconds",
			Help:      "Latency of individual model gateway queries in seconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"model"},
	)

	m.rankingParseMisses = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ranking_parse_misses_total",
		Help:      "Total number of ranking texts that yielded no parseable labels",
	})

	m.titleFallbacks = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "title_fallbacks_total",
		Help:      "Total number of title generations that fell back to the default title",
	})

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint, method and status code",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.activeStreams = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "active_streams",
		Help:      "Number of server-sent event streams currently open",
	})
}

// RecordDeliberationStarted increments the started deliberations counter.
func RecordDeliberationStarted() {
	globalManager.deliberationsStarted.Inc()
}

// RecordDeliberationCompleted increments the completed deliberations counter.
func RecordDeliberationCompleted() {
	globalManager.deliberationsCompleted.Inc()
}

// RecordDeliberationFailed increments the failed deliberations counter.
func RecordDeliberationFailed() {
	globalManager.deliberationsFailed.Inc()
}

// RecordStageLatency records the latency of a deliberation stage.
func RecordStageLatency(stage string, seconds float64) {
	globalManager.stageLatency.WithLabelValues(stage).Observe(seconds)
}

// RecordModelQuery records the outcome ("ok" or "error") of a model query.
func RecordModelQuery(model, outcome string) {
	globalManager.modelQueries.WithLabelValues(model, outcome).Inc()
}

// RecordModelQueryLatency records the latency of a model query.
func RecordModelQueryLatency(model string, seconds float64) {
	globalManager.modelQueryLatency.WithLabelValues(model).Observe(seconds)
}

// RecordRankingParseMiss increments the unparseable-ranking counter.
func RecordRankingParseMiss() {
	globalManager.rankingParseMisses.Inc()
}

// RecordTitleFallback increments the title fallback counter.
func RecordTitleFallback() {
	globalManager.titleFallbacks.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in seconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, seconds float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(seconds)
}

// IncActiveStreams increments the open stream gauge.
func IncActiveStreams() {
	globalManager.activeStreams.Inc()
}

// DecActiveStreams decrements the open stream gauge.
func DecActiveStreams() {
	globalManager.activeStreams.Dec()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
