// Package main hosts the crawl orchestrator entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes GET /api/crawl plus health and metrics routes. Each request is one
//     invocation: the orchestrator.Controller authorizes it, plans a chunk over the freshly listed targets, runs the
//     catalog builder over that slice and answers with chunk counters.
//   - Continuation: when targets remain and auto is on, the dispatcher fires GET /api/crawl for the next chunk at
//     the deployment's own base URL in a background goroutine. The response is never held for it and a failed
//     hand-off is logged and reported, not retried.
//   - Targets: a static list from config or a Postgres table read through pgxpool, ordered by position then id.
//   - Catalog builder: per-host rate limiting, a Colly fetch, SHA-256 content addressing, a BlobStore write
//     (memory/local/GCS) and an optional Pub/Sub catalog.built notification.
//   - Observability: zap logs carry the invocation id, chunk and size; Prometheus metrics are served at /metrics;
//     the progress Hub batches chunk lifecycle events into a log sink and a metrics sink.
//
// Operational notes:
//   - Configure env vars: CRON_SECRET (or CRAWLER_AUTH_CRON_SECRET), PORT (or CRAWLER_SERVER_PORT),
//     CRAWLER_CONTINUATION_BASE_URL when the service sits behind a proxy that rewrites Host, and
//     CRAWLER_TARGETS_* / CRAWLER_STORAGE_* / CRAWLER_PUBSUB_* for the backends.
//   - Run locally: go run ./cmd/crawlorchestrator -config config.yaml, then
//     curl -H "Authorization: Bearer $CRON_SECRET" "localhost:8080/api/crawl?chunk=0&size=5".
//   - On SIGTERM the server drains, in-flight hand-offs are awaited and the progress hub is flushed.
package main
