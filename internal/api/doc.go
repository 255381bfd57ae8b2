// Package api hosts the HTTP server, middleware, and REST handlers for the
// directory front-end and operators. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/pwa/check, /v1/pwa/add, /v1/pwa/discover and GET /v1/pwa for the
//     directory itself. These answer with the {data, ret, msg, timestamp}
//     envelope the front-end expects.
//   - GET /v1/runs and /v1/runs/{run_id} for batch run progress via the
//     store.RunRepository interface.
package api
