package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackerCountsOutcomes(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	assert.NoError(t, m.Track("tenant:welcome").End(nil))
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("tenant:welcome").End(boom), boom)
	m.Skip("tenant:welcome", "inactive")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("tenant:welcome", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("tenant:welcome")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.skipped.WithLabelValues("tenant:welcome", "inactive")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.Nil(t, NewMetrics(nil))
	assert.NoError(t, m.Track("x").End(nil))
	m.Skip("x", "y")
}
