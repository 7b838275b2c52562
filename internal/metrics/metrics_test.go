package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.ObserveTransition("review", "inconsult", true)
	m.ObserveTransition("verified", "review", false)
	m.ObserveTransition("verified", "review", false)
	m.ObserveAssignment("assign", false)
	m.ObserveRelay(true)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("review", "inconsult", "allowed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("verified", "review", "rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.assignments.WithLabelValues("assign", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.relay.WithLabelValues("ok")))
}

func TestHandlerExposesNamespace(t *testing.T) {
	m := New()
	m.ObserveDueBand("near")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `roadwork_due_band_total{band="near"} 1`)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveTransition("a", "b", true)
		m.ObserveTimeFactor("4")
		m.ObserveAssignment("register", true)
		m.ObserveDueBand("safe")
		m.ObserveRelay(false)
	})
	assert.Nil(t, m.Registry())
}
