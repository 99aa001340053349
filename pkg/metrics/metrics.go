// Package metrics provides Prometheus metrics for the Fern service.
package metrics

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RowsProcessedTotal tracks imported rows by outcome (matched, created, skipped, failed)
	RowsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "import",
			Name:      "rows_total",
			Help:      "Total number of imported rows by outcome",
		},
		[]string{"outcome"},
	)

	// MatchDecisionsTotal tracks match decisions by match type
	MatchDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "matching",
			Name:      "decisions_total",
			Help:      "Total number of match decisions by match type",
		},
		[]string{"match_type"},
	)

	// MatchDuration tracks time spent deciding a single row
	MatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "matching",
			Name:      "decision_duration_seconds",
			Help:      "Duration of a single match decision in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
	)

	// BatchesTotal tracks finished upload batches by final status
	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "import",
			Name:      "batches_total",
			Help:      "Total number of upload batches by final status",
		},
		[]string{"status"},
	)

	// BatchDuration tracks end-to-end batch processing time
	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "import",
			Name:      "batch_duration_seconds",
			Help:      "Duration of upload batch processing in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
	)

	// LockWaitDuration tracks time spent waiting on the identity lock
	LockWaitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "import",
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for the per-identity lock in seconds",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	// EventsPublishedTotal tracks Kafka publishes by topic and status
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of Kafka messages published",
		},
		[]string{"topic", "status"},
	)

	// MessagesConsumedTotal tracks rows-topic messages by outcome (handled, malformed, retried, halted)
	MessagesConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "messages_consumed_total",
			Help:      "Total number of Kafka messages consumed by outcome",
		},
		[]string{"topic", "outcome"},
	)

	// DuplicatesRemovedTotal tracks persons removed by the dedupe sweep
	DuplicatesRemovedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "dedupe",
			Name:      "removed_total",
			Help:      "Total number of duplicate persons removed",
		},
	)
)

// RecordRow records one processed row
func RecordRow(outcome string) {
	RowsProcessedTotal.WithLabelValues(outcome).Inc()
}

// RecordDecision records a match decision and how long it took
func RecordDecision(matchType string, durationSeconds float64) {
	MatchDecisionsTotal.WithLabelValues(matchType).Inc()
	MatchDuration.Observe(durationSeconds)
}

// RecordBatch records a finished batch
func RecordBatch(status string, durationSeconds float64) {
	BatchesTotal.WithLabelValues(status).Inc()
	BatchDuration.Observe(durationSeconds)
}

// RecordLockWait records time spent acquiring the identity lock
func RecordLockWait(durationSeconds float64) {
	LockWaitDuration.Observe(durationSeconds)
}

// RecordPublish records a Kafka publish
func RecordPublish(topic, status string) {
	EventsPublishedTotal.WithLabelValues(topic, status).Inc()
}

// RecordConsumed records a consumed message
func RecordConsumed(topic, outcome string) {
	MessagesConsumedTotal.WithLabelValues(topic, outcome).Inc()
}

// RecordDuplicatesRemoved records persons removed by a dedupe sweep
func RecordDuplicatesRemoved(n int) {
	DuplicatesRemovedTotal.Add(float64(n))
}

// RegisterRoutes exposes the Prometheus scrape endpoint
func RegisterRoutes(e *echo.Echo) {
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

