package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Register(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New()
	require.NoError(t, m.Register(reg))

	// registering twice on the same registry fails
	assert.Error(t, m.Register(reg))
}

func TestMetrics_Record(t *testing.T) {
	m := New()

	m.RecordQuestion("GRAPH", "accepted", 0.9)
	m.RecordQuestion("GRAPH", "accepted", 0.8)
	m.RecordResolution("fuzzy")
	m.RecordIngest("ok", 2, 1)
	m.RecordSpecRejection()
	m.RecordEscalation("no_path")
	m.ObserveStage("traverse", time.Now())
	m.RecordTokens("route", "gpt-4o-mini", 40, 2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Questions.WithLabelValues("GRAPH", "accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Resolutions.WithLabelValues("fuzzy")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.GraphWrites.WithLabelValues("entity")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SpecRejections))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LiveEscalations.WithLabelValues("no_path")))
	assert.Equal(t, 40.0, testutil.ToFloat64(m.Tokens.WithLabelValues("route", "gpt-4o-mini", "prompt")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordQuestion("LIVE_SEARCH", "live", 0)
		m.RecordResolution("new")
		m.RecordIngest("failed", 0, 0)
		m.RecordSpecRejection()
		m.RecordEscalation("rejected")
		m.ObserveStage("route", time.Now())
		m.RecordTokens("report", "m", 1, 1)
	})
}
