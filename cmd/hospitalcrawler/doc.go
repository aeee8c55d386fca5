// Package main hosts the hospital crawler service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, and scrape
//     endpoints. Each scrape request carries a hospital ID, a seed URL, and
//     optional provider credentials; the credentials pick the strategy for
//     that run.
//   - Strategies: the native strategy crawls the site directly with a
//     Colly-based fetcher and a batched frontier; the crawl-API strategy
//     submits an asynchronous job to a managed provider and polls it; the
//     proxy strategy routes each page fetch through a proxying provider.
//     All three normalize their output into the same Page shape.
//   - Coordinator: internal/coordinator validates input, runs the strategy,
//     replaces the hospital's page snapshot transactionally, stamps the
//     attempt time, and records exactly one stats row per run.
//   - Persistence: a pgx-backed Postgres store covering the hospitals,
//     hospital_pages, and hospital_scraping_stats tables, or an in-memory
//     store for local runs (storage.provider config key).
//   - Configuration & plumbing: Viper populates config from env/files; zap
//     provides structured logging; Prometheus metrics are exported via the
//     /metrics handler.
//
// Operational notes:
//   - Concurrency model: one scrape runs within one request; page fetches
//     inside a run are issued in small awaited batches. Callers must not
//     overlap runs against the same hospital.
//   - Shutdown: the process reacts to SIGINT/SIGTERM with a graceful HTTP
//     drain; in-flight runs are bounded by per-fetch and per-run timeouts.
//   - Run locally: go run ./cmd/hospitalcrawler -config config.yaml, or rely
//     solely on HOSPITALCRAWLER_* env overrides.
package main
