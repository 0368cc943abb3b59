// Package metrics provides Prometheus metrics for an R0 pipeline run.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stage labels.
const (
	StagePrem   = "prem"
	StageGrowth = "growth"
	StageEigen  = "eigen"
	StageR0     = "r0"
)

// Manager holds the Prometheus collectors of a pipeline run.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer
	gatherer         prometheus.Gatherer

	countriesProcessed *prometheus.CounterVec
	countriesSkipped   *prometheus.CounterVec
	stageDuration      *prometheus.GaugeVec

	regressionLatency prometheus.Histogram
	eigenLatency      prometheus.Histogram

	joinGaps    *prometheus.GaugeVec
	joinedRows  prometheus.Gauge
	nonFiniteR0 prometheus.Counter

	queueSize         prometheus.Gauge
	queueEnqueued     prometheus.Counter
	queueRejected     prometheus.Counter
	workerActiveCount prometheus.Gauge
	workerErrors      *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics in the textfile.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "rnaught",
		subsystem:        "pipeline",
		histogramBuckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000, 30000},
		registry:         prometheus.DefaultRegisterer,
		gatherer:         prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.countriesProcessed = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "countries_processed_total",
		Help:      "Countries that produced a record, by stage",
	}, []string{"stage"})

	m.countriesSkipped = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "countries_skipped_total",
		Help:      "Countries dropped from a stage, by stage and reason",
	}, []string{"stage", "reason"})

	m.stageDuration = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "stage_duration_seconds",
		Help:      "Wall time of the last run of each stage",
	}, []string{"stage"})

	m.regressionLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "regression_latency_milliseconds",
		Help:      "Latency of one growth regression",
		Buckets:   m.histogramBuckets,
	})

	m.eigenLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "eigen_latency_milliseconds",
		Help:      "Latency of one country's eigen analysis under all exclusions",
		Buckets:   m.histogramBuckets,
	})

	m.joinGaps = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "join_gaps",
		Help:      "Codes excluded from the join, by missing table",
	}, []string{"table"})

	m.joinedRows = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "joined_rows",
		Help:      "Rows in the final R0 table",
	})

	m.nonFiniteR0 = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "r0_non_finite_total",
		Help:      "Countries whose growth rate is outside the R0 transform domain",
	})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_size",
		Help:      "Tasks waiting in the queue",
	})

	m.queueEnqueued = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_enqueued_total",
		Help:      "Tasks accepted by the queue",
	})

	m.queueRejected = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_rejected_total",
		Help:      "Tasks rejected because the queue was closed",
	})

	m.workerActiveCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_active_count",
		Help:      "Workers currently running",
	})

	m.workerErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_errors_total",
		Help:      "Task failures returned to workers, by task kind",
	}, []string{"kind"})
}

// RecordCountryProcessed counts a country that produced a record in stage.
func RecordCountryProcessed(stage string) {
	globalManager.countriesProcessed.WithLabelValues(stage).Inc()
}

// RecordCountrySkipped counts a country dropped from stage for reason.
func RecordCountrySkipped(stage, reason string) {
	globalManager.countriesSkipped.WithLabelValues(stage, reason).Inc()
}

// RecordStageDuration stores the wall time of a stage in seconds.
func RecordStageDuration(stage string, seconds float64) {
	globalManager.stageDuration.WithLabelValues(stage).Set(seconds)
}

// RecordRegressionLatency observes one regression in milliseconds.
func RecordRegressionLatency(latencyMs float64) {
	globalManager.regressionLatency.Observe(latencyMs)
}

// RecordEigenLatency observes one eigen analysis in milliseconds.
func RecordEigenLatency(latencyMs float64) {
	globalManager.eigenLatency.Observe(latencyMs)
}

// UpdateJoinGaps sets the per-table join gap counts.
func UpdateJoinGaps(missingGrowth, missingEigen, missingRegion int) {
	globalManager.joinGaps.WithLabelValues("growth").Set(float64(missingGrowth))
	globalManager.joinGaps.WithLabelValues("eigen").Set(float64(missingEigen))
	globalManager.joinGaps.WithLabelValues("region").Set(float64(missingRegion))
}

// UpdateJoinedRows sets the size of the final table.
func UpdateJoinedRows(n int) {
	globalManager.joinedRows.Set(float64(n))
}

// RecordNonFiniteR0 counts a country whose R0 is not finite.
func RecordNonFiniteR0() {
	globalManager.nonFiniteR0.Inc()
}

// UpdateQueueSize sets the number of queued tasks.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// RecordQueueEnqueue counts an accepted task.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueRejected counts a rejected task.
func RecordQueueRejected() {
	globalManager.queueRejected.Inc()
}

// UpdateWorkerActiveCount sets the running worker count.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerError counts a task failure of the given kind.
func RecordWorkerError(kind string) {
	globalManager.workerErrors.WithLabelValues(kind).Inc()
}

// GetRegistry returns the registry the global metrics are registered on.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// WriteTextfile writes the manager's metrics in the Prometheus text format.
func (m *Manager) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.gatherer); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return nil
}

// WriteTextfile writes the global metrics for collection by a node exporter
// textfile collector.
func WriteTextfile(path string) error {
	return globalManager.WriteTextfile(path)
}
