// Package api hosts the HTTP server, middleware, and REST handlers for the
// hospital crawler. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/scrape to run a full scrape, strategy chosen by the supplied
//     provider credentials.
//   - POST /v1/scrape/advanced for the bounded short-deadline variant.
//   - GET /v1/hospitals/{hospital_id}/stats for run history aggregates.
package api
