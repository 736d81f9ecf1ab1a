package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Default service metrics for storage operations.
type StorageMetrics struct {
	// Name of the store that is being instrumented.
	store string

	// Counts of database operations
	databaseOperations *prometheus.CounterVec

	// Latencies of database operations.
	databaseLatencies *prometheus.HistogramVec

	// Hit rates of typed key-value reads.
	kvReads *prometheus.CounterVec
}

type CacheReadStatus string

const (
	CacheReadStatusHit      CacheReadStatus = "hit"
	CacheReadStatusMiss     CacheReadStatus = "miss"
	CacheReadStatusBadValue CacheReadStatus = "bad_value" // Value in store was not valid (likely because of mismatched types / CBOR encoding).
	CacheReadStatusError    CacheReadStatus = "error"     // Other internal error reading from store.
)

// NewDefaultStorageMetrics creates Prometheus metric instrumentation
// for basic metrics common to storage accesses.
func NewDefaultStorageMetrics(store string) StorageMetrics {
	metrics := StorageMetrics{
		store: store,
		databaseOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: fmt.Sprintf("%s_db_operations", store),
				Help: "How many database operations occur, partitioned by operation and status.",
			},
			[]string{"database", "operation", "status"}, // Labels.
		),
		databaseLatencies: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: fmt.Sprintf("%s_db_latencies", store),
				Help: "How long database operations take, partitioned by operation.",
			},
			[]string{"database", "operation"}, // Labels.
		),
		kvReads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kvstore_reads",
				Help: "How many typed key-value reads occur, partitioned by status (hit, miss, bad_value, error).",
			},
			[]string{"store", "status"}, // Labels.
		),
	}
	metrics.databaseOperations = registerOnce(metrics.databaseOperations).(*prometheus.CounterVec)
	metrics.databaseLatencies = registerOnce(metrics.databaseLatencies).(*prometheus.HistogramVec)
	metrics.kvReads = registerOnce(metrics.kvReads).(*prometheus.CounterVec)
	return metrics
}

// DatabaseOperations returns the counter for the database operation.
// The provided params are used as labels.
func (m *StorageMetrics) DatabaseOperations(db, operation, status string) prometheus.Counter {
	return m.databaseOperations.WithLabelValues(db, operation, status)
}

// DatabaseLatencies returns a new latency timer for the provided
// database operation.
// The provided params are used as labels.
func (m *StorageMetrics) DatabaseLatencies(db string, operation string) *prometheus.Timer {
	return prometheus.NewTimer(m.databaseLatencies.WithLabelValues(db, operation))
}

// KVReads returns the counter for typed key-value reads with the given status.
func (m *StorageMetrics) KVReads(status CacheReadStatus) prometheus.Counter {
	return m.kvReads.WithLabelValues(m.store, string(status))
}
