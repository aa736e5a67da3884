// Package middleware provides HTTP middleware for devserve: Prometheus
// metrics and OpenTelemetry tracing.
//
// Both are plain func(http.Handler) http.Handler values and compose with chi:
//
//	m := middleware.NewMetrics(middleware.WithRegistry(reg))
//	r := chi.NewRouter()
//	r.Use(m.Handler, middleware.Tracing())
//
// Tracing uses the global OpenTelemetry tracer provider, which is a no-op
// until one is installed with otel.SetTracerProvider.
package middleware
