package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RoundClosed("round_over")
	m.RoundClosed("match_over")
	m.RoundClosed("round_over")
	m.ResultRecorded(true)
	m.ResultRecorded(false)
	m.ClaimLost()
	m.ClientConnected()
	m.ClientConnected()
	m.ClientDisconnected()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.roundsClosed.WithLabelValues("round_over")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.roundsClosed.WithLabelValues("match_over")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resultsRecorded.WithLabelValues("lost")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.casLost))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.wsClients))

	families, err := reg.Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ChallengeCreated()
		m.RoundClosed("round_over")
		m.FeedPublished("player")
		m.Message("in", "guess:submit")
		m.SetRooms(3)
	})
}
