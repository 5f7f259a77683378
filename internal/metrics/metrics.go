// Package metrics exposes the prometheus collectors used by the vote ledger.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "thumbsup"

// Registry returns a registry preloaded with the go and build info collectors.
func Registry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewBuildInfoCollector())
	registry.MustRegister(collectors.NewGoCollector())
	return registry
}

// Handler serves the given registry in the prometheus text format.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// Votes groups the ledger collectors. A nil *Votes is valid and records nothing.
type Votes struct {
	cast          *prometheus.CounterVec
	removed       *prometheus.CounterVec
	syncFailures  *prometheus.CounterVec
	drift         *prometheus.CounterVec
	tallyDuration *prometheus.HistogramVec
}

func NewVotes(registerer prometheus.Registerer) *Votes {
	factory := promauto.With(registerer)
	return &Votes{
		cast: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_cast_total",
			Help:      "Votes appended to the ledger.",
		}, []string{"mode"}),
		removed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_removed_total",
			Help:      "Votes removed from the ledger.",
		}, []string{"reason"}),
		syncFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "counter_sync_failures_total",
			Help:      "Counter cache updates that failed after a ledger write.",
		}, []string{"kind"}),
		drift: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "counter_drift_total",
			Help:      "Counter cache rows found out of sync by reconciliation.",
		}, []string{"kind"}),
		tallyDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tally_duration_seconds",
			Help:      "Time spent ranking voteables.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
	}
}

func (m *Votes) Cast(exclusive bool) {
	if m == nil {
		return
	}
	mode := "accumulate"
	if exclusive {
		mode = "exclusive"
	}
	m.cast.WithLabelValues(mode).Inc()
}

func (m *Votes) Removed(reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.removed.WithLabelValues(reason).Add(float64(n))
}

func (m *Votes) SyncFailure(kind string) {
	if m == nil {
		return
	}
	m.syncFailures.WithLabelValues(kind).Inc()
}

func (m *Votes) Drift(kind string) {
	if m == nil {
		return
	}
	m.drift.WithLabelValues(kind).Inc()
}

func (m *Votes) ObserveTally(kind string, started time.Time) {
	if m == nil {
		return
	}
	m.tallyDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}
