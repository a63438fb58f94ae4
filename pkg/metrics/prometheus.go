// Package metrics provides Prometheus metrics for the matching engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the engine.
type Manager struct {
	namespace      string
	subsystem      string
	latencyBuckets []float64
	customLabels   map[string]string
	metricPrefix   string
	registry       prometheus.Registerer

	// Ranking
	rankRequests      *prometheus.CounterVec
	candidatesScored  prometheus.Counter
	candidatesSkipped *prometheus.CounterVec
	rankLatency       prometheus.Histogram
	rankConfidence    prometheus.Histogram
	baselineFallbacks *prometheus.CounterVec
	scoringEvents     prometheus.Counter

	// Feedback
	feedbackRecorded  *prometheus.CounterVec
	feedbackDuplicate prometheus.Counter

	// Model lifecycle
	trainingRuns        *prometheus.CounterVec
	trainingDuration    prometheus.Histogram
	modelAccuracy       *prometheus.GaugeVec
	activeVersion       *prometheus.GaugeVec
	activations         *prometheus.CounterVec
	activationConflicts prometheus.Counter

	// Insights
	insightFailures *prometheus.CounterVec
	insightLatency  *prometheus.HistogramVec

	// Repository
	repositoryLatency *prometheus.HistogramVec

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Queue Metrics
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueRate       prometheus.Counter
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Worker Metrics
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerIdleCount         prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// Error Metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = newManager(withPrometheusRegistry(customRegistry))
}

// newManager creates a metrics manager with default configuration.
func newManager(opts ...option) *Manager {
	m := &Manager{
		namespace:      "matchlearn",
		subsystem:      "engine",
		latencyBuckets: defaultLatencyBuckets,
		customLabels:   make(map[string]string),
		registry:       prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) name(n string) string { return m.metricPrefix + n }

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)
	constLabels := prometheus.Labels(m.customLabels)
	latencyBuckets := m.latencyBuckets

	m.rankRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("rank_requests_total"),
		Help: "Total number of ranking requests by domain and model kind",
	}, []string{"domain", "model"})

	m.candidatesScored = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("candidates_scored_total"),
		Help: "Total number of candidates scored",
	})

	m.candidatesSkipped = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("candidates_skipped_total"),
		Help: "Total number of candidates excluded from rankings by reason",
	}, []string{"reason"})

	m.rankLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name:    m.name("rank_latency_milliseconds"),
		Help:    "Ranking request latency in milliseconds",
		Buckets: latencyBuckets,
	})

	m.rankConfidence = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name:    m.name("rank_confidence"),
		Help:    "Distribution of confidence values attached to ranked candidates",
		Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
	})

	m.baselineFallbacks = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("baseline_fallbacks_total"),
		Help: "Rankings served by the unweighted baseline because no model was active",
	}, []string{"domain"})

	m.scoringEvents = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("scoring_events_total"),
		Help: "Total number of scoring events written",
	})

	m.feedbackRecorded = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("feedback_recorded_total"),
		Help: "Total number of feedback records by decision",
	}, []string{"decision"})

	m.feedbackDuplicate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("feedback_duplicate_total"),
		Help: "Total number of duplicate feedback submissions dropped",
	})

	m.trainingRuns = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("training_runs_total"),
		Help: "Training runs by domain and outcome",
	}, []string{"domain", "outcome"})

	m.trainingDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name:    m.name("training_duration_milliseconds"),
		Help:    "Training run duration in milliseconds",
		Buckets: latencyBuckets,
	})

	m.modelAccuracy = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("active_model_accuracy"),
		Help: "Held-out accuracy of the active model per domain",
	}, []string{"domain"})

	m.activeVersion = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("active_model_version"),
		Help: "Active model version per domain",
	}, []string{"domain"})

	m.activations = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("model_activations_total"),
		Help: "Activations and rollbacks by domain",
	}, []string{"domain", "action"})

	m.activationConflicts = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("activation_conflicts_total"),
		Help: "Activation attempts that lost an optimistic concurrency check",
	})

	m.insightFailures = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("insight_failures_total"),
		Help: "Rationale generation failures by provider",
	}, []string{"provider"})

	m.insightLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name:    m.name("insight_latency_milliseconds"),
		Help:    "Rationale generation latency in milliseconds",
		Buckets: latencyBuckets,
	}, []string{"provider"})

	m.repositoryLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name:    m.name("repository_latency_milliseconds"),
		Help:    "Repository operation latency in milliseconds",
		Buckets: latencyBuckets,
	}, []string{"store", "operation"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("http_requests_total"),
		Help: "Total number of HTTP requests by endpoint and method",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name:    m.name("http_request_duration_milliseconds"),
		Help:    "HTTP request duration in milliseconds",
		Buckets: latencyBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("queue_size"),
		Help: "Current number of feedback submissions waiting in the queue",
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("queue_capacity"),
		Help: "Configured feedback queue capacity",
	})

	m.queueUtilization = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("queue_utilization_ratio"),
		Help: "Feedback queue utilization (size / capacity)",
	})

	m.queueEnqueueRate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("queue_enqueue_total"),
		Help: "Total number of submissions enqueued",
	})

	m.queueDequeueRate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("queue_dequeue_total"),
		Help: "Total number of submissions dequeued",
	})

	m.queueEnqueueErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("queue_enqueue_errors_total"),
		Help: "Total number of rejected enqueue attempts",
	})

	m.queueProcessingLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name:    m.name("queue_processing_latency_milliseconds"),
		Help:    "Enqueue latency in milliseconds",
		Buckets: latencyBuckets,
	})

	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("worker_count"),
		Help: "Configured number of feedback workers",
	})

	m.workerActiveCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("worker_active_count"),
		Help: "Number of workers currently recording feedback",
	})

	m.workerIdleCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("worker_idle_count"),
		Help: "Number of idle workers",
	})

	m.workerProcessingLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name:    m.name("worker_processing_latency_milliseconds"),
		Help:    "Per-submission processing latency in milliseconds",
		Buckets: latencyBuckets,
	})

	m.workerErrorRate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("worker_errors_total"),
		Help: "Total number of submissions workers failed to record",
	})

	m.errorRateByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("errors_by_component_total"),
		Help: "Errors by component and type",
	}, []string{"component", "error_type"})

	m.errorRateByType = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("errors_by_type_total"),
		Help: "Errors by type and severity",
	}, []string{"error_type", "severity"})

	m.errorRateByEndpoint = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("errors_by_endpoint_total"),
		Help: "Errors by endpoint, method and type",
	}, []string{"endpoint", "method", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("system_memory_usage_bytes"),
		Help: "Heap bytes allocated",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("system_goroutine_count"),
		Help: "Number of goroutines",
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name:    m.name("system_gc_pause_milliseconds"),
		Help:    "Average GC pause time in milliseconds",
		Buckets: latencyBuckets,
	})
}

// Ranking Metrics Functions.

// RecordRankRequest counts a ranking request. baseline marks fallback rankings.
func RecordRankRequest(domain string, baseline bool) {
	kind := "trained"
	if baseline {
		kind = "baseline"
		globalManager.baselineFallbacks.WithLabelValues(domain).Inc()
	}
	globalManager.rankRequests.WithLabelValues(domain, kind).Inc()
}

// RecordCandidatesScored adds n scored candidates.
func RecordCandidatesScored(n int) {
	globalManager.candidatesScored.Add(float64(n))
}

// RecordCandidateSkipped counts a candidate excluded for reason.
func RecordCandidateSkipped(reason string) {
	globalManager.candidatesSkipped.WithLabelValues(reason).Inc()
}

// RecordRankLatency records ranking latency in milliseconds.
func RecordRankLatency(latencyMs float64) {
	globalManager.rankLatency.Observe(latencyMs)
}

// RecordConfidence observes a confidence value.
func RecordConfidence(c float64) {
	globalManager.rankConfidence.Observe(c)
}

// RecordScoringEvents adds n written scoring events.
func RecordScoringEvents(n int) {
	globalManager.scoringEvents.Add(float64(n))
}

// Feedback Metrics Functions.

// RecordFeedback counts a recorded decision.
func RecordFeedback(decision string) {
	globalManager.feedbackRecorded.WithLabelValues(decision).Inc()
}

// RecordFeedbackDuplicate counts a dropped duplicate submission.
func RecordFeedbackDuplicate() {
	globalManager.feedbackDuplicate.Inc()
}

// Model Lifecycle Metrics Functions.

// RecordTrainingRun counts a training run outcome and its duration.
func RecordTrainingRun(domain, outcome string, durationMs float64) {
	globalManager.trainingRuns.WithLabelValues(domain, outcome).Inc()
	globalManager.trainingDuration.Observe(durationMs)
}

// UpdateActiveModel publishes the active version and its accuracy.
func UpdateActiveModel(domain string, version int64, accuracy float64) {
	globalManager.activeVersion.WithLabelValues(domain).Set(float64(version))
	globalManager.modelAccuracy.WithLabelValues(domain).Set(accuracy)
}

// RecordActivation counts an activation or rollback.
func RecordActivation(domain, action string) {
	globalManager.activations.WithLabelValues(domain, action).Inc()
}

// RecordActivationConflict counts a lost activation race.
func RecordActivationConflict() {
	globalManager.activationConflicts.Inc()
}

// Insight Metrics Functions.

// RecordInsight observes a rationale call; failed calls are also counted.
func RecordInsight(provider string, latencyMs float64, failed bool) {
	globalManager.insightLatency.WithLabelValues(provider).Observe(latencyMs)
	if failed {
		globalManager.insightFailures.WithLabelValues(provider).Inc()
	}
}

// Repository Metrics Functions.

// RecordRepositoryLatency records a store operation latency in milliseconds.
func RecordRepositoryLatency(store, operation string, latencyMs float64) {
	globalManager.repositoryLatency.WithLabelValues(store, operation).Observe(latencyMs)
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Queue Metrics Functions.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueProcessingLatency records enqueue latency in milliseconds.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// Worker Metrics Functions.

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of busy workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// UpdateWorkerIdleCount sets the number of idle workers.
func UpdateWorkerIdleCount(count int) {
	globalManager.workerIdleCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records per-submission latency in milliseconds.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
