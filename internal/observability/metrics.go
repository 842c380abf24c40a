// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the watcher.
type Metrics struct {
	// Subscription metrics
	NotificationsAccepted *prometheus.CounterVec
	DuplicatesSkipped     *prometheus.CounterVec
	ReconnectsTotal       *prometheus.CounterVec
	WorkerState           *prometheus.GaugeVec

	// Pipeline metrics
	ResolveFailures  *prometheus.CounterVec
	FilteredOut      *prometheus.CounterVec
	RecordsWritten   *prometheus.CounterVec
	DetectionLatency *prometheus.HistogramVec

	// Sink metrics
	SinkWriteDuration prometheus.Histogram
	SinkWriteErrors   prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "pool_watch"
	}

	return &Metrics{
		NotificationsAccepted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "notifications_accepted_total",
			Help:      "Total notifications accepted past the dedup gate",
		}, []string{"venue"}),
		DuplicatesSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duplicates_skipped_total",
			Help:      "Total duplicate notifications rejected",
		}, []string{"venue"}),
		ReconnectsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "reconnects_total",
			Help:      "Total reconnect attempts by venue",
		}, []string{"venue"}),
		WorkerState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "state",
			Help:      "Current worker state machine state (numeric)",
		}, []string{"venue"}),
		ResolveFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "resolve_failures_total",
			Help:      "Total transaction resolution failures by classified tag",
		}, []string{"venue", "tag"}),
		FilteredOut: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "filtered_out_total",
			Help:      "Total resolved transactions dropped by the pool filter",
		}, []string{"venue"}),
		RecordsWritten: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "records_written_total",
			Help:      "Total output records written by status",
		}, []string{"venue", "status"}),
		DetectionLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "detection_latency_seconds",
			Help:      "Wall clock between block time and notification capture",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"venue"}),
		SinkWriteDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "write_duration_seconds",
			Help:      "Sink append duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		SinkWriteErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "write_errors_total",
			Help:      "Total failed sink appends",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordNotificationAccepted counts a notification past the dedup gate.
func RecordNotificationAccepted(venue string) {
	DefaultMetrics.NotificationsAccepted.WithLabelValues(venue).Inc()
}

// RecordDuplicateSkipped counts a rejected duplicate.
func RecordDuplicateSkipped(venue string) {
	DefaultMetrics.DuplicatesSkipped.WithLabelValues(venue).Inc()
}

// RecordReconnect counts a reconnect attempt.
func RecordReconnect(venue string) {
	DefaultMetrics.ReconnectsTotal.WithLabelValues(venue).Inc()
}

// SetWorkerState publishes the worker's state machine position.
func SetWorkerState(venue string, state int32) {
	DefaultMetrics.WorkerState.WithLabelValues(venue).Set(float64(state))
}

// RecordResolveFailure counts a classified resolution failure.
func RecordResolveFailure(venue, tag string) {
	DefaultMetrics.ResolveFailures.WithLabelValues(venue, tag).Inc()
}

// RecordFilteredOut counts a pool-filter drop.
func RecordFilteredOut(venue string) {
	DefaultMetrics.FilteredOut.WithLabelValues(venue).Inc()
}

// RecordRecordWritten counts one written output record.
func RecordRecordWritten(venue, status string) {
	DefaultMetrics.RecordsWritten.WithLabelValues(venue, status).Inc()
}

// ObserveDetectionLatency records detection latency in milliseconds.
func ObserveDetectionLatency(venue string, latencyMs int64) {
	DefaultMetrics.DetectionLatency.WithLabelValues(venue).Observe(float64(latencyMs) / 1000)
}

// ObserveSinkWrite records one sink append.
func ObserveSinkWrite(seconds float64, err error) {
	DefaultMetrics.SinkWriteDuration.Observe(seconds)
	if err != nil {
		DefaultMetrics.SinkWriteErrors.Inc()
	}
}
