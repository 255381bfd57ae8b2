// Package main hosts the PWA directory API service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, the /v1/pwa check/add/list/discover routes and
//     read-only batch run progress under /v1/runs. Responses use the {data, ret, msg, timestamp} envelope.
//   - Pipeline: internal/pipeline.Service owns every directory operation. Checks go through a
//     classifier.Strategy (static fetch + regex or DOM extraction, optionally promoted to a Chromedp probe),
//     and every insert passes the exact-link dedup gate first.
//   - Batch runs: discover fans candidates out over the chunked or pool runner (internal/batch), paced per host
//     by the rate limiter, checkpointing to the discovery history file.
//   - Persistence & fanout: records live in the configured record store (memory/postgres/notion/file). Run
//     summaries are archived to the BlobStore (memory/local/GCS) and a compact Pub/Sub notification is published
//     when a topic is configured. Progress events are batched by the progress Hub into the run store, Prometheus
//     and the log.
//   - Configuration & plumbing: Viper populates config from env/files; zap provides structured logging;
//     Prometheus metrics are exported via the metrics middleware and /metrics handler.
//
// Operational notes:
//   - Cloud Run: the HTTP server listens on PORT when set, otherwise server.port. The process reacts to SIGTERM
//     by draining in-flight requests; an interrupted discover run keeps its checkpointed history.
//   - Run locally: go run ./cmd/pwacrawlerd -config config.yaml (or rely solely on PWACRAWLER_* env overrides).
//     The pwacrawler CLI offers the same service through its serve subcommand, next to the batch commands.
package main
