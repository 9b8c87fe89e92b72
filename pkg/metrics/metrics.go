package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/faciam-dev/lbflow/internal/logger"
)

var (
	PoolConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lbflow_pool_connections",
			Help: "Pooled connections by state",
		},
		[]string{"pool", "state"},
	)
	PoolAcquireWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lbflow_pool_acquire_seconds",
			Help:    "Time spent waiting for a pooled connection",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend"},
	)
	PoolExhausted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lbflow_pool_exhausted_total",
			Help: "Acquire calls that timed out on a full pool",
		},
		[]string{"backend"},
	)
	MigrationsApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lbflow_migrations_applied_total",
			Help: "Migrations applied",
		},
		[]string{"backend"},
	)
	MigrationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lbflow_migration_failures_total",
			Help: "Migrations that failed and were rolled back",
		},
		[]string{"backend"},
	)
	MigrationRollbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lbflow_migration_rollbacks_total",
			Help: "Migrations reverted on request",
		},
		[]string{"backend"},
	)
	EntriesStored = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lbflow_entries_stored_total",
			Help: "Log entries written",
		},
		[]string{"backend"},
	)
	StoreFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lbflow_store_failures_total",
			Help: "Log entries rejected",
		},
		[]string{"backend"},
	)
	QueryLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lbflow_query_seconds",
			Help:    "Latency of data store reads",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "op"},
	)
)

func init() {
	prometheus.MustRegister(
		PoolConnections,
		PoolAcquireWait,
		PoolExhausted,
		MigrationsApplied,
		MigrationFailures,
		MigrationRollbacks,
		EntriesStored,
		StoreFailures,
		QueryLatency,
	)
}

// ConnectionCounter is implemented by pool registries able to report
// connection counts per pool and state (idle, in_use, pending).
type ConnectionCounter interface {
	ConnectionCounts() map[string]map[string]int
}

// GaugeInterval is how often StartPoolGauge refreshes the pool gauge.
var GaugeInterval = 30 * time.Second

// UpdatePoolGauge copies the current counts of src into PoolConnections.
func UpdatePoolGauge(src ConnectionCounter) {
	if src == nil {
		return
	}
	for pool, states := range src.ConnectionCounts() {
		for state, n := range states {
			PoolConnections.WithLabelValues(pool, state).Set(float64(n))
		}
	}
}

// StartPoolGauge starts a background job that updates the pool gauge every
// GaugeInterval until ctx is done.
func StartPoolGauge(ctx context.Context, src ConnectionCounter) {
	if src == nil {
		return
	}
	interval := GaugeInterval
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				UpdatePoolGauge(src)
				logger.L.Debug("pool gauge updated", zap.Int("pools", len(src.ConnectionCounts())))
			}
		}
	}()
}
