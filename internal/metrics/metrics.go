// Package metrics exposes Prometheus collectors for the scraping service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scrapeRunsTotal        *prometheus.CounterVec
	scrapePagesTotal       *prometheus.CounterVec
	scrapeRunDuration      *prometheus.HistogramVec
	httpRequestsTotal      *prometheus.CounterVec
	httpRequestDurationSec *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		scrapeRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrape_runs_total",
				Help: "Total scraping runs, labeled by strategy and outcome.",
			},
			[]string{"method", "outcome"},
		)

		scrapePagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrape_pages_total",
				Help: "Total pages scraped or failed, labeled by strategy and result.",
			},
			[]string{"method", "result"},
		)

		scrapeRunDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scrape_run_duration_seconds",
				Help:    "Histogram of run durations, labeled by strategy.",
				Buckets: []float64{1, 5, 10, 20, 30, 60, 120, 300},
			},
			[]string{"method"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSec = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30, 60},
			},
			[]string{"method", "route"},
		)
	})
}

// ObserveRun records one completed run attempt.
func ObserveRun(method string, success bool, pagesScraped, pagesFailed int, duration time.Duration) {
	if scrapeRunsTotal == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	scrapeRunsTotal.WithLabelValues(method, outcome).Inc()
	scrapePagesTotal.WithLabelValues(method, "scraped").Add(float64(pagesScraped))
	scrapePagesTotal.WithLabelValues(method, "failed").Add(float64(pagesFailed))
	scrapeRunDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// ObserveHTTPRequest records one handled HTTP request.
func ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	httpRequestDurationSec.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler returns the /metrics endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
