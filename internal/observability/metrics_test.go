package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordQueryCountsByStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewQueryMetrics(reg)
	require.NoError(t, err)

	m.RecordQuery("NOT_IN", 50*time.Millisecond, false)
	m.RecordQuery("NOT_IN", 10*time.Millisecond, false)
	m.RecordQuery("IN", 5*time.Millisecond, true)

	assert.Equal(t, float64(2), testutil.ToFloat64(
		m.queryCounter.WithLabelValues("NOT_IN", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		m.queryCounter.WithLabelValues("IN", "error")))
}

func TestRecordRetryAndActiveGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewQueryMetrics(reg)
	require.NoError(t, err)

	m.RecordRetry()
	m.RecordRetry()
	assert.Equal(t, float64(2), testutil.ToFloat64(m.retryCounter))

	m.IncrementActiveQueries()
	m.IncrementActiveQueries()
	m.DecrementActiveQueries()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.activeQueries))
}

func TestDuplicateRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewQueryMetrics(reg)
	require.NoError(t, err)

	_, err = NewQueryMetrics(reg)
	assert.Error(t, err)
}
