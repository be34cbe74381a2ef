// Package observability provides monitoring and debugging capabilities for
// the context-selection engine through metrics, structured logging, and
// distributed tracing.
//
// # Overview
//
// The observability package implements the three pillars of observability:
//
//  1. Metrics - Quantitative measurements using Prometheus
//  2. Logging - Structured logs with sensitive data redaction
//  3. Tracing - Distributed request tracing with OpenTelemetry
//
// # Architecture
//
// The package is designed to be:
//   - Low-overhead: selection and extraction are latency-sensitive paths
//   - Type-safe: strongly-typed APIs reduce configuration errors
//   - Standards-based: uses Prometheus, OpenTelemetry, and slog
//
// # Metrics
//
// Metrics are implemented using Prometheus client libraries and track:
//   - Selector invocation outcomes and latency (cache hit/miss/short-circuit)
//   - Extraction batch outcomes (success, parse failure, generator failure)
//   - Connection pool exhaustion events
//   - Embedding provider failures by tier
//   - Tool-result externalization counts
//   - Database query performance
//
// Example usage:
//
//	metrics := observability.NewMetrics()
//
//	start := time.Now()
//	result, err := selector.Select(ctx, messages, prompt, turn)
//	outcome := "cache_miss"
//	if err != nil {
//	    outcome = "error"
//	}
//	metrics.RecordSelection(time.Since(start).Seconds(), outcome)
//
// # Logging
//
// Logging is built on Go's slog package with enhancements for:
//   - Automatic request ID correlation from context
//   - Sensitive data redaction (API keys, passwords, tokens)
//   - JSON output for production, text for development
//   - Configurable log levels
//
// Example usage:
//
//	logger := observability.NewLogger(observability.LogConfig{
//	    Level:     "info",
//	    Format:    "json",
//	    AddSource: true,
//	})
//
//	ctx := observability.AddRequestID(ctx, requestID)
//	ctx = observability.AddSessionID(ctx, turn.SessionKey)
//
//	logger.Info(ctx, "selection completed",
//	    "candidates", len(messages),
//	    "kept", len(selected),
//	)
//
// # Tracing
//
// Distributed tracing uses OpenTelemetry to track the selector's stages and
// the extractor's batch runs:
//   - End-to-end visualization of a turn's selection pipeline
//   - Performance bottleneck identification across scoring/rerank/assembly
//   - Error correlation across components
//
// Example usage:
//
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
//	    ServiceName:    "context-selector",
//	    ServiceVersion: "1.0.0",
//	    Environment:    "production",
//	    Endpoint:       "localhost:4317", // OTLP collector
//	    SamplingRate:   0.1,              // Sample 10% of traces
//	})
//	defer shutdown(context.Background())
//
//	ctx, span := tracer.TraceSelection(ctx, turn.ModelID, len(messages))
//	defer span.End()
//
//	ctx, batchSpan := tracer.TraceExtractionBatch(ctx, turn.SessionKey, len(pending))
//	defer batchSpan.End()
//	if err != nil {
//	    tracer.RecordError(batchSpan, err)
//	}
//
// # Context Propagation
//
// All three components integrate with Go's context for automatic correlation:
//
//	ctx = observability.AddRequestID(ctx, "req-123")
//	ctx = observability.AddSessionID(ctx, "sess-456")
//	ctx = observability.AddUserID(ctx, "user-789")
//
//	logger.Info(ctx, "selecting context") // Includes request_id, session_id, etc.
//
//	ctx, span := tracer.Start(ctx, "operation")
//	// Trace context propagates to child spans
//
// # Security Considerations
//
// The logging component automatically redacts:
//   - API keys (Anthropic, OpenAI, generic)
//   - Passwords and secrets
//   - JWT tokens
//   - Bearer tokens
//   - Custom patterns via configuration
//
// Sensitive fields in maps are also redacted:
//   - password, passwd, pwd
//   - secret, api_key, apikey
//   - token, auth, authorization
//   - private_key, privatekey
//
// # Performance
//
// The observability system is designed for minimal overhead relative to the
// selector's own latency budget:
//   - Logging with slog is highly efficient
//   - Tracing supports sampling to reduce overhead
//   - Context propagation is zero-allocation in most cases
//
// # Monitoring Dashboard
//
// The metrics exposed can be used to build dashboards:
//
//	# Selection latency (95th percentile)
//	histogram_quantile(0.95, rate(context_selector_selection_duration_seconds_bucket[5m]))
//
//	# Cache hit rate
//	rate(context_selector_selections_total{outcome="cache_hit"}[5m]) /
//	rate(context_selector_selections_total[5m])
//
//	# Extraction failure rate
//	rate(context_selector_extractions_total{outcome!="success"}[5m])
//
//	# Pool exhaustion events
//	rate(context_selector_pool_exhausted_total[5m])
//
// # Alerting
//
// Recommended alerts based on metrics:
//   - High selection latency: p95 > the configured turn budget
//   - Falling cache hit rate: sustained drop vs. baseline
//   - Extraction failure spikes: rate(..., outcome!="success") > threshold
//   - Sustained pool exhaustion: context_selector_pool_exhausted_total growing
//
// # Further Reading
//
//   - Prometheus best practices: https://prometheus.io/docs/practices/naming/
//   - OpenTelemetry specification: https://opentelemetry.io/docs/specs/otel/
//   - slog documentation: https://pkg.go.dev/log/slog
package observability
