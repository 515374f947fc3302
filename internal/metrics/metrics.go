// Package metrics holds the Prometheus collectors for the dashboard.
package metrics

import (
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fallen_dashboard"

// Metrics is safe to use through a nil pointer; every method becomes a no-op.
type Metrics struct {
	SourceDefaults  *prometheus.CounterVec
	ActionsEnqueued *prometheus.CounterVec
	AuditFailures   prometheus.Counter
	RequestDuration *prometheus.HistogramVec
	DBConnPool      *prometheus.GaugeVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SourceDefaults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_defaults_total",
				Help:      "Reads that returned a default value instead of stored data",
			},
			[]string{"source", "status"},
		),
		ActionsEnqueued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_enqueued_total",
				Help:      "Moderation actions written to the outbox",
			},
			[]string{"action"},
		),
		AuditFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audit_failures_total",
				Help:      "Audit log writes that failed and were dropped",
			},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route", "status"},
		),
		DBConnPool: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connection_pool",
				Help:      "Database connection pool statistics",
			},
			[]string{"stat"},
		),
	}
}

func (m *Metrics) SourceDefaulted(source, status string) {
	if m == nil {
		return
	}
	m.SourceDefaults.WithLabelValues(source, status).Inc()
}

func (m *Metrics) ActionEnqueued(action string) {
	if m == nil {
		return
	}
	m.ActionsEnqueued.WithLabelValues(action).Inc()
}

func (m *Metrics) AuditFailed() {
	if m == nil {
		return
	}
	m.AuditFailures.Inc()
}

func (m *Metrics) ObserveRequest(route, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(route, status).Observe(elapsed.Seconds())
}

// RecordPool copies connection pool statistics into gauges.
func (m *Metrics) RecordPool(stats sql.DBStats) {
	if m == nil {
		return
	}
	m.DBConnPool.WithLabelValues("open").Set(float64(stats.OpenConnections))
	m.DBConnPool.WithLabelValues("in_use").Set(float64(stats.InUse))
	m.DBConnPool.WithLabelValues("idle").Set(float64(stats.Idle))
	m.DBConnPool.WithLabelValues("wait_count").Set(float64(stats.WaitCount))
}
