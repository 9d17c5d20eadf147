package habitsync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/julianstephens/habitpilot/internal/reconcile"
)

// Metrics holds Prometheus metrics for a Store. A nil *Metrics records
// nothing.
//
// Metrics:
//   - habitsync_remote_calls_total{op,outcome}
//   - habitsync_reconciliations_total{winner}
//   - habitsync_cache_writes_total{outcome}
//   - habitsync_quota_refusals_total
//   - habitsync_habits
type Metrics struct {
	RemoteCalls     *prometheus.CounterVec
	Reconciliations *prometheus.CounterVec
	CacheWrites     *prometheus.CounterVec
	QuotaRefusals   prometheus.Counter
	Habits          prometheus.Gauge
}

// NewMetrics creates the store metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RemoteCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "habitsync_remote_calls_total",
				Help: "Total number of remote habit API calls",
			},
			[]string{"op", "outcome"}, // outcome: "ok" or an error kind
		),
		Reconciliations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "habitsync_reconciliations_total",
				Help: "Total number of streak reconciliations by winning side",
			},
			[]string{"winner"},
		),
		CacheWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "habitsync_cache_writes_total",
				Help: "Total number of offline cache writes",
			},
			[]string{"outcome"},
		),
		QuotaRefusals: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "habitsync_quota_refusals_total",
				Help: "Total number of habit creations refused by the free-tier quota",
			},
		),
		Habits: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "habitsync_habits",
				Help: "Number of habits in the local collection",
			},
		),
	}
}

func (m *Metrics) remoteCall(op, outcome string) {
	if m != nil {
		m.RemoteCalls.WithLabelValues(op, outcome).Inc()
	}
}

func (m *Metrics) reconciled(w reconcile.Winner) {
	if m != nil {
		m.Reconciliations.WithLabelValues(string(w)).Inc()
	}
}

func (m *Metrics) cacheWrite(outcome string) {
	if m != nil {
		m.CacheWrites.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) quotaRefused() {
	if m != nil {
		m.QuotaRefusals.Inc()
	}
}

func (m *Metrics) setHabits(n int) {
	if m != nil {
		m.Habits.Set(float64(n))
	}
}
