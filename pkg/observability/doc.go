// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, health checks and graceful shutdown for larder.
//
// # Structured Logging
//
// Logger wraps logrus with a JSON formatter:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("user_id", id).Warn("membership missing")
//
// Tokens, raw secrets and password hashes are never passed to the logger.
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordAuthResolution("authenticated")
//	metrics.RecordRateLimit("login", false)
//
// A nil *Metrics is valid and records nothing, which keeps tests free of
// registry setup.
//
// # Health Checks
//
// HealthChecker probes the database and Redis. Redis is optional: when it is
// down the service reports degraded rather than unhealthy.
package observability
