package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting engine metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Selection latency and cache effectiveness
//   - Extraction batch outcomes
//   - Connection pool exhaustion
//   - Embedding provider failures
//   - Generic database query and error counters shared across subsystems
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	defer metrics.RecordSelection(time.Since(start).Seconds(), "hit")
type Metrics struct {
	// SelectionDuration measures Select() call latency in seconds.
	// Labels: outcome (cache_hit|cache_miss|short_circuit)
	SelectionDuration *prometheus.HistogramVec

	// SelectionCounter counts selector invocations.
	// Labels: outcome (cache_hit|cache_miss|short_circuit|fallback)
	SelectionCounter *prometheus.CounterVec

	// ExtractionCounter counts extraction batch runs by outcome.
	// Labels: outcome (success|parse_failed|generator_failed)
	ExtractionCounter *prometheus.CounterVec

	// ExtractionFactsStored counts facts persisted after conflict resolution.
	ExtractionFactsStored prometheus.Counter

	// PoolExhaustedCounter counts connection pool acquire failures.
	PoolExhaustedCounter prometheus.Counter

	// EmbeddingErrorCounter counts embedding provider failures by tier.
	// Labels: tier (remote|local|hash)
	EmbeddingErrorCounter *prometheus.CounterVec

	// ToolResultExternalizedCounter counts tool results moved out of line.
	// Labels: tool_kind
	ToolResultExternalizedCounter *prometheus.CounterVec

	// ErrorCounter tracks errors by component and error type.
	ErrorCounter *prometheus.CounterVec

	// DatabaseQueryDuration measures database query latency.
	// Labels: operation (select|insert|update|delete), table
	DatabaseQueryDuration *prometheus.HistogramVec

	// DatabaseQueryCounter counts database queries.
	// Labels: operation, table, status (success|error)
	DatabaseQueryCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics. This should be
// called once at engine initialization.
func NewMetrics() *Metrics {
	return &Metrics{
		SelectionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "context_selector_selection_duration_seconds",
				Help:    "Duration of selector.Select calls in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"outcome"},
		),

		SelectionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "context_selector_selections_total",
				Help: "Total number of selector invocations by outcome",
			},
			[]string{"outcome"},
		),

		ExtractionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "context_selector_extractions_total",
				Help: "Total number of extraction batch runs by outcome",
			},
			[]string{"outcome"},
		),

		ExtractionFactsStored: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "context_selector_facts_stored_total",
				Help: "Total number of facts persisted after conflict resolution",
			},
		),

		PoolExhaustedCounter: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "context_selector_pool_exhausted_total",
				Help: "Total number of connection pool acquire failures",
			},
		),

		EmbeddingErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "context_selector_embedding_errors_total",
				Help: "Total number of embedding provider failures by tier",
			},
			[]string{"tier"},
		),

		ToolResultExternalizedCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "context_selector_tool_results_externalized_total",
				Help: "Total number of tool results moved out of line by kind",
			},
			[]string{"tool_kind"},
		),

		ErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "context_selector_errors_total",
				Help: "Total number of errors by component and error type",
			},
			[]string{"component", "error_type"},
		),

		DatabaseQueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "context_selector_database_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"operation", "table"},
		),

		DatabaseQueryCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "context_selector_database_queries_total",
				Help: "Total number of database queries",
			},
			[]string{"operation", "table", "status"},
		),
	}
}

// RecordSelection records a selector invocation's outcome and latency.
func (m *Metrics) RecordSelection(durationSeconds float64, outcome string) {
	m.SelectionCounter.WithLabelValues(outcome).Inc()
	m.SelectionDuration.WithLabelValues(outcome).Observe(durationSeconds)
}

// RecordExtraction records an extraction batch run's outcome.
func (m *Metrics) RecordExtraction(outcome string, factsStored int) {
	m.ExtractionCounter.WithLabelValues(outcome).Inc()
	if factsStored > 0 {
		m.ExtractionFactsStored.Add(float64(factsStored))
	}
}

// RecordPoolExhausted increments the pool-exhaustion counter.
func (m *Metrics) RecordPoolExhausted() {
	m.PoolExhaustedCounter.Inc()
}

// RecordEmbeddingError records an embedding provider failure for tier.
func (m *Metrics) RecordEmbeddingError(tier string) {
	m.EmbeddingErrorCounter.WithLabelValues(tier).Inc()
}

// RecordToolResultExternalized records a tool result moved out of line.
func (m *Metrics) RecordToolResultExternalized(toolKind string) {
	m.ToolResultExternalizedCounter.WithLabelValues(toolKind).Inc()
}

// RecordError increments the error counter for a given component and error type.
func (m *Metrics) RecordError(component, errorType string) {
	m.ErrorCounter.WithLabelValues(component, errorType).Inc()
}

// RecordDatabaseQuery records metrics for a database query.
func (m *Metrics) RecordDatabaseQuery(operation, table, status string, durationSeconds float64) {
	m.DatabaseQueryCounter.WithLabelValues(operation, table, status).Inc()
	m.DatabaseQueryDuration.WithLabelValues(operation, table).Observe(durationSeconds)
}
