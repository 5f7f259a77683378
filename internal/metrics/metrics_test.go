package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gathered(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]float64)
	for _, f := range families {
		for _, m := range f.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				out[f.GetName()] += m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				out[f.GetName()] += float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return out
}

func TestVotes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewVotes(reg)

	m.Cast(true)
	m.Cast(false)
	m.Removed("clear", 3)
	m.Removed("clear", 0)
	m.SyncFailure("Post")
	m.Drift("Post")
	m.ObserveTally("Post", time.Now())

	got := gathered(t, reg)
	assert.Equal(t, float64(2), got["thumbsup_votes_cast_total"])
	assert.Equal(t, float64(3), got["thumbsup_votes_removed_total"])
	assert.Equal(t, float64(1), got["thumbsup_counter_sync_failures_total"])
	assert.Equal(t, float64(1), got["thumbsup_counter_drift_total"])
	assert.Equal(t, float64(1), got["thumbsup_tally_duration_seconds"])
}

func TestNilVotesIsNoop(t *testing.T) {
	var m *Votes
	assert.NotPanics(t, func() {
		m.Cast(true)
		m.Removed("cascade", 2)
		m.SyncFailure("Post")
		m.Drift("Post")
		m.ObserveTally("Post", time.Now())
	})
}
