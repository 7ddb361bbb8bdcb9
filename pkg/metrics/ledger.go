package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics records the outcome of ledger mutations and the health of
// the reconciliation surface.
type LedgerMetrics struct {
	appends          *prometheus.CounterVec
	conflicts        prometheus.Counter
	appendDuration   *prometheus.HistogramVec
	snapshotVariance prometheus.Gauge
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	appends := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_appends_total",
		Help: "Ledger append attempts by entry type and outcome.",
	}, []string{"type", "outcome"})
	conflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_concurrency_conflicts_total",
		Help: "Batch mutations that exhausted the optimistic retry budget.",
	})
	appendDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_append_duration_seconds",
		Help:    "Duration of ledger append transactions in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})
	snapshotVariance := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "inventory_snapshot_variance_percent",
		Help: "Variance percent recorded by the most recent physical count.",
	})
	reg.MustRegister(appends, conflicts, appendDuration, snapshotVariance)
	return &LedgerMetrics{
		appends:          appends,
		conflicts:        conflicts,
		appendDuration:   appendDuration,
		snapshotVariance: snapshotVariance,
	}
}

// ObserveAppend records one append attempt.
func (m *LedgerMetrics) ObserveAppend(entryType string, outcome string, duration time.Duration) {
	if m == nil || m.appends == nil {
		return
	}
	m.appends.WithLabelValues(normalizeLabel(entryType), normalizeLabel(outcome)).Inc()
	m.appendDuration.WithLabelValues(normalizeLabel(entryType)).Observe(duration.Seconds())
}

// IncConflict counts an exhausted retry budget.
func (m *LedgerMetrics) IncConflict() {
	if m == nil || m.conflicts == nil {
		return
	}
	m.conflicts.Inc()
}

// SetSnapshotVariance publishes the latest physical-count variance percent.
func (m *LedgerMetrics) SetSnapshotVariance(percent float64) {
	if m == nil || m.snapshotVariance == nil {
		return
	}
	m.snapshotVariance.Set(percent)
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
