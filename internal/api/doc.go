// Package api hosts the HTTP server, middleware, and REST handlers for the
// card catalog. Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/suggest?q=...&mode=...&limit=... for card search.
package api
