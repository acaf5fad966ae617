// Package api hosts the HTTP server and middleware for the orchestrator.
// Routes:
//   - GET /api/crawl runs one chunk and may hand the next one off.
//   - GET /healthz, /readyz and /api/catalog/health for health checks.
//   - GET /metrics for Prometheus scraping.
package api
