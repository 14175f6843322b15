// Package metrics provides Prometheus metrics for the learnmatch similarity service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	searchBuckets    []float64
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Ingestion
	progressReceived  prometheus.Counter
	progressDuplicate prometheus.Counter
	progressProcessed prometheus.Counter
	extractionLatency prometheus.Histogram
	extractionErrors  prometheus.Counter

	// Model
	trainingSetSize       prometheus.Gauge
	trainsTotal           prometheus.Counter
	trainDuration         prometheus.Histogram
	queryLatency          *prometheus.HistogramVec
	classifications       *prometheus.CounterVec
	validationAccuracy    prometheus.Gauge
	weightSearchRuns      prometheus.Counter
	weightSearchDuration  prometheus.Histogram
	weightSearchBest      prometheus.Gauge
	weightSearchEvaluated prometheus.Counter

	// Store
	storeProfiles      prometheus.Gauge
	storeWriteLatency  prometheus.Histogram
	storeSnapshotCount prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueueTotal  prometheus.Counter
	queueDequeueTotal  prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Workers
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// Configure rebuilds the global manager on a fresh registry with opts and
// returns that registry. Call it once at startup, before anything records
// a metric or serves GetRegistry; earlier values are discarded.
func Configure(opts ...Option) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	globalManager = NewManager(append(opts, WithPrometheusRegistry(reg))...)
	customRegistry = reg
	return reg
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "learnmatch",
		subsystem:        "knn",
		histogramBuckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 1000},
		searchBuckets:    []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 60000},
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric definition
	m.progressReceived = m.counter("progress_received_total", "Total number of progress submissions accepted for processing")
	m.progressDuplicate = m.counter("progress_duplicate_total", "Total number of duplicate progress submissions")
	m.progressProcessed = m.counter("progress_processed_total", "Total number of progress events turned into stored profiles")
	m.extractionLatency = m.histogram("extraction_latency_milliseconds", "Feature extraction latency in milliseconds", m.histogramBuckets)
	m.extractionErrors = m.counter("extraction_errors_total", "Total number of progress events rejected by the extractor")

	m.trainingSetSize = m.gauge("training_set_size", "Number of feature vectors in the live training set")
	m.trainsTotal = m.counter("trains_total", "Total number of training set replacements")
	m.trainDuration = m.histogram("train_duration_milliseconds", "Time to validate and publish a training set", m.histogramBuckets)
	m.queryLatency = m.histogramVec("query_latency_milliseconds", "Classifier query latency by operation", "operation")
	m.classifications = m.counterVec("classifications_total", "Classification results by category", "category")
	m.validationAccuracy = m.gauge("validation_accuracy_ratio", "Accuracy of the most recent validation run")
	m.weightSearchRuns = m.counter("weight_search_runs_total", "Total number of weight grid searches")
	m.weightSearchDuration = m.histogram("weight_search_duration_milliseconds", "Weight grid search wall time in milliseconds", m.searchBuckets)
	m.weightSearchBest = m.gauge("weight_search_best_accuracy_ratio", "Best accuracy found by the most recent weight search")
	m.weightSearchEvaluated = m.counter("weight_search_combinations_total", "Total number of weight combinations evaluated")

	m.storeProfiles = m.gauge("store_profiles", "Number of profiles held by the profile store")
	m.storeWriteLatency = m.histogram("store_write_latency_milliseconds", "Profile store write latency in milliseconds", m.histogramBuckets)
	m.storeSnapshotCount = m.counter("store_snapshot_count_total", "Total number of profile store snapshots published")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method",
		"endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds",
		"endpoint", "method", "status_code")

	m.queueSize = m.gauge("queue_size", "Current size of the progress queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum progress queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (current size / capacity)")
	m.queueEnqueueTotal = m.counter("queue_enqueue_total", "Total number of events enqueued")
	m.queueDequeueTotal = m.counter("queue_dequeue_total", "Total number of events dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Total number of rejected enqueue attempts")

	m.workerActiveCount = m.gauge("worker_active_count", "Number of running extraction workers")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Worker processing latency in milliseconds", m.histogramBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Total number of worker errors")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Total number of errors by component", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total", "Total number of errors by type", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Total number of errors by endpoint", "endpoint", "method", "error_type")
	m.errorLatency = m.histogramVec("error_latency_milliseconds", "Latency of operations that resulted in errors", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Ingestion.

// RecordProgressReceived increments the accepted submissions counter.
func RecordProgressReceived() { globalManager.progressReceived.Inc() }

// RecordProgressDuplicate increments the duplicate submissions counter.
func RecordProgressDuplicate() { globalManager.progressDuplicate.Inc() }

// RecordProgressProcessed increments the processed events counter.
func RecordProgressProcessed() { globalManager.progressProcessed.Inc() }

// RecordExtractionLatency records feature extraction latency in milliseconds.
func RecordExtractionLatency(latencyMs float64) { globalManager.extractionLatency.Observe(latencyMs) }

// RecordExtractionError increments the extraction error counter.
func RecordExtractionError() { globalManager.extractionErrors.Inc() }

// Model.

// UpdateTrainingSetSize sets the live training set size.
func UpdateTrainingSetSize(n int) { globalManager.trainingSetSize.Set(float64(n)) }

// RecordTrain records a training set replacement and its duration.
func RecordTrain(durationMs float64) {
	globalManager.trainsTotal.Inc()
	globalManager.trainDuration.Observe(durationMs)
}

// RecordQueryLatency records a classifier query latency for the named operation.
func RecordQueryLatency(operation string, latencyMs float64) {
	globalManager.queryLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordClassification increments the counter for the predicted category.
func RecordClassification(category string) {
	globalManager.classifications.WithLabelValues(category).Inc()
}

// UpdateValidationAccuracy sets the accuracy of the latest validation.
func UpdateValidationAccuracy(accuracy float64) { globalManager.validationAccuracy.Set(accuracy) }

// RecordWeightSearch records a completed weight grid search.
func RecordWeightSearch(durationMs, bestAccuracy float64, evaluated int) {
	globalManager.weightSearchRuns.Inc()
	globalManager.weightSearchDuration.Observe(durationMs)
	globalManager.weightSearchBest.Set(bestAccuracy)
	globalManager.weightSearchEvaluated.Add(float64(evaluated))
}

// Store.

// UpdateStoreProfiles sets the number of stored profiles.
func UpdateStoreProfiles(n int) { globalManager.storeProfiles.Set(float64(n)) }

// RecordStoreWriteLatency records a store write latency in milliseconds.
func RecordStoreWriteLatency(latencyMs float64) { globalManager.storeWriteLatency.Observe(latencyMs) }

// IncrementStoreSnapshotCount increments the published snapshot counter.
func IncrementStoreSnapshotCount() { globalManager.storeSnapshotCount.Inc() }

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Queue.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) { globalManager.queueUtilization.Set(utilization) }

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() { globalManager.queueEnqueueTotal.Inc() }

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() { globalManager.queueDequeueTotal.Inc() }

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() { globalManager.queueEnqueueErrors.Inc() }

// Workers.

// UpdateWorkerActiveCount sets the number of running workers.
func UpdateWorkerActiveCount(count int) { globalManager.workerActiveCount.Set(float64(count)) }

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

// Errors.

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

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) { globalManager.systemGCPauseTime.Observe(pauseMs) }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Since returns the elapsed milliseconds since start as a float, the unit
// every latency histogram in this package uses.
func Since(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
