package storage

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docstore_operations_total",
			Help: "Total number of collection operations",
		},
		[]string{"collection", "op", "result"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docstore_operation_duration_seconds",
			Help:    "Collection operation duration in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"collection", "op"},
	)

	lockWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docstore_lock_wait_seconds",
			Help:    "Time spent waiting for a collection lock",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5},
		},
		[]string{"collection"},
	)

	documentsGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "docstore_documents",
			Help: "Number of documents in a collection as of the last read or write",
		},
		[]string{"collection"},
	)

	corruptCollections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docstore_corrupt_collections_total",
			Help: "Number of corrupt collection files encountered",
		},
		[]string{"collection"},
	)

	retriedOps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docstore_io_retries_total",
			Help: "Number of storage I/O operations retried",
		},
	)

	rollbackFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docstore_rollback_failures_total",
			Help: "Number of collections that could not be restored after a failed commit",
		},
	)
)

func observe(collection, op string, start time.Time, errp *error) {
	result := "ok"
	if errp != nil && *errp != nil {
		result = "error"
		if errors.Is(*errp, ErrLockTimeout) {
			result = "timeout"
		}
	}
	operationsTotal.WithLabelValues(collection, op, result).Inc()
	operationDuration.WithLabelValues(collection, op).Observe(time.Since(start).Seconds())
}

func setDocuments(collection string, n int) {
	documentsGauge.WithLabelValues(collection).Set(float64(n))
}
