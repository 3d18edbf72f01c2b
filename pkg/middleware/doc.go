// Package middleware provides the dev server's HTTP observability.
//
// # OpenTelemetry Middleware
//
// OpenTelemetry starts a server span for every request, named after the
// matched route, and marks 5xx responses as errors. Handlers and the
// proxied fetch inherit the span through the request context.
//
//	r := chi.NewRouter()
//	r.Use(middleware.OpenTelemetry(
//	    middleware.WithTracerName("homepage"),
//	    middleware.WithFilter(func(r *http.Request) bool {
//	        return r.URL.Path != "/metrics"
//	    }),
//	))
//
// The tracer comes from the global provider; configure it with
// otel.SetTracerProvider before serving.
//
// # Prometheus Metrics
//
// NewMetrics registers:
//   - homepage_http_requests_total: requests by method, route and status class
//   - homepage_http_request_duration_seconds: request duration histogram
//   - homepage_http_requests_in_flight: requests being served
//   - homepage_pages_connected: pages holding an event stream open
//   - homepage_websocket_errors_total: event stream errors by type
//
// Mount the handler on a chi router so the route label is known:
//
//	reg := prometheus.NewRegistry()
//	m := middleware.NewMetrics(middleware.WithRegistry(reg))
//	r.Use(m.Handler)
//	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
package middleware
