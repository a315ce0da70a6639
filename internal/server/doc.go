// Package server provides the HTTP plumbing shared by every route.
//
// [New] builds a chi router with a fixed middleware stack:
//   - middleware.RequestID and middleware.RealIP from chi
//   - [RequestLogger] : one log line per request
//   - [Metrics] : http_requests_total and http_request_duration_seconds by route pattern
//   - [Recoverer] : panics become 500 responses and are reported
//
// It serves /healthz (pings the database) and /metrics (Prometheus) itself. Application routes are
// contributed by [Handler] implementations, wrapped in any extra [Middleware] such as session loading.
//
// [Server.ListenAndServe] blocks until its context is cancelled and then shuts down gracefully.
package server
