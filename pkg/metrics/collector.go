package metrics

import (
	"context"
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation outcome labels.
const (
	StatusOK      = "ok"
	StatusMiss    = "miss"
	StatusInvalid = "invalid"
	StatusError   = "error"
)

var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "viewerstore_operations_total",
			Help: "Total number of user store operations labeled by operation and status",
		},
		[]string{"operation", "status"},
	)
	operationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "viewerstore_operation_duration_seconds",
			Help:    "Duration of user store operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "viewerstore_errors_total",
			Help: "Total number of handled errors split by code and severity",
		},
		[]string{"code", "severity"},
	)
	poolConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "viewerstore_db_connections",
			Help: "Database pool connections by state",
		},
		[]string{"state"},
	)
	poolWaitTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "viewerstore_db_wait_count",
			Help: "Total number of connections waited for",
		},
	)
)

// RecordOperation increments operation counters and records duration.
func RecordOperation(operation, status string, duration time.Duration) {
	if operation == "" {
		operation = "unknown"
	}
	if status == "" {
		status = "unknown"
	}

	operationsTotal.WithLabelValues(operation, status).Inc()
	operationDurationSeconds.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordError increments error counters with metadata.
func RecordError(code, severity string) {
	if code == "" {
		code = "unknown"
	}
	if severity == "" {
		severity = "unknown"
	}

	errorsTotal.WithLabelValues(code, severity).Inc()
}

// StatsSource is the subset of *sql.DB read by PoolCollector.
type StatsSource interface {
	Stats() sql.DBStats
}

// PoolCollector periodically publishes database pool statistics.
type PoolCollector struct {
	db       StatsSource
	interval time.Duration
}

// NewPoolCollector builds a collector bound to db.
func NewPoolCollector(db StatsSource) *PoolCollector {
	return &PoolCollector{db: db, interval: 10 * time.Second}
}

// Run polls the pool every 10 seconds until ctx is cancelled.
func (c *PoolCollector) Run(ctx context.Context) {
	if c == nil || c.db == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		c.Collect()

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.interval):
		}
	}
}

// Collect publishes one snapshot of pool statistics.
func (c *PoolCollector) Collect() {
	stats := c.db.Stats()

	poolConnections.WithLabelValues("open").Set(float64(stats.OpenConnections))
	poolConnections.WithLabelValues("in_use").Set(float64(stats.InUse))
	poolConnections.WithLabelValues("idle").Set(float64(stats.Idle))
	poolWaitTotal.Set(float64(stats.WaitCount))
}
