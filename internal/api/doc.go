// Package api hosts the HTTP server and REST handlers for operator access.
// Routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/queue/stats for frontier introspection.
//   - GET /v1/results and /v1/sites to read accepted postings and scan targets.
//   - POST /v1/scans to start a crawl for one site, optionally saving it.
package api
