// Package observability provides prometheus metrics for query execution.
package observability

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// QueryMetrics holds custom metrics for reconciliation query execution
type QueryMetrics struct {
	queryDuration *prometheus.HistogramVec
	queryCounter  *prometheus.CounterVec
	retryCounter  prometheus.Counter
	activeQueries prometheus.Gauge
	recordCounts  prometheus.Histogram
	confidence    prometheus.Histogram
}

// NewQueryMetrics creates and registers query metrics on the given
// registerer.
func NewQueryMetrics(reg prometheus.Registerer) (*QueryMetrics, error) {
	m := &QueryMetrics{
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "reconql",
			Name:      "query_duration_seconds",
			Help:      "Duration of reconciliation queries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "status"}),
		queryCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reconql",
			Name:      "queries_total",
			Help:      "Total number of reconciliation queries",
		}, []string{"operation", "status"}),
		retryCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reconql",
			Name:      "query_retries_total",
			Help:      "Number of queries retried without schema qualification",
		}),
		activeQueries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "reconql",
			Name:      "queries_active",
			Help:      "Number of queries currently executing",
		}),
		recordCounts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "reconql",
			Name:      "query_result_records",
			Help:      "Number of records returned per query",
			Buckets:   prometheus.ExponentialBuckets(1, 10, 7),
		}),
		confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "reconql",
			Name:      "intent_confidence",
			Help:      "Confidence score of parsed query intents",
			Buckets:   prometheus.LinearBuckets(0.0, 0.1, 11),
		}),
	}

	for _, c := range []prometheus.Collector{
		m.queryDuration, m.queryCounter, m.retryCounter,
		m.activeQueries, m.recordCounts, m.confidence,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register query metrics: %w", err)
		}
	}
	return m, nil
}

// RecordQuery records a finished query with its duration and outcome
func (m *QueryMetrics) RecordQuery(operation string, duration time.Duration, failed bool) {
	status := "success"
	if failed {
		status = "error"
	}
	m.queryDuration.WithLabelValues(operation, status).Observe(duration.Seconds())
	m.queryCounter.WithLabelValues(operation, status).Inc()
}

// RecordRetry records one schema-qualification retry
func (m *QueryMetrics) RecordRetry() {
	m.retryCounter.Inc()
}

// RecordResultSize records the number of records a query returned
func (m *QueryMetrics) RecordResultSize(count int) {
	m.recordCounts.Observe(float64(count))
}

// RecordConfidence records the confidence of a parsed intent
func (m *QueryMetrics) RecordConfidence(score float64) {
	m.confidence.Observe(score)
}

// IncrementActiveQueries increments the active queries gauge
func (m *QueryMetrics) IncrementActiveQueries() {
	m.activeQueries.Inc()
}

// DecrementActiveQueries decrements the active queries gauge
func (m *QueryMetrics) DecrementActiveQueries() {
	m.activeQueries.Dec()
}

// InitMetrics registers all custom metrics on the default registry and
// returns the QueryMetrics instance
func InitMetrics(logger *slog.Logger) (*QueryMetrics, error) {
	metrics, err := NewQueryMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize query metrics: %w", err)
	}

	logger.Info("query metrics initialized")
	return metrics, nil
}
