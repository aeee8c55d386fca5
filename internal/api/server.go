// Package api exposes the HTTP interface for the hospital crawler service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mednetlabs/hospital-crawler/internal/coordinator"
	"github.com/mednetlabs/hospital-crawler/internal/crawler"
	"github.com/mednetlabs/hospital-crawler/internal/metrics"
)

// StatusRunTimeout is returned when the bounded scrape variant hits its
// global deadline. Callers distinguish it from a plain 500 to offer a
// narrower retry.
const StatusRunTimeout = 546

// Runner starts a scrape for one hospital with one strategy.
type Runner interface {
	RunScrape(ctx context.Context, hospitalID, websiteURL string, strat crawler.Strategy) (coordinator.Outcome, error)
	Aggregate(ctx context.Context, hospitalID string) (crawler.StatsAggregate, error)
}

// StrategyPicker resolves credentials to a scraping strategy.
type StrategyPicker interface {
	Select(creds crawler.Credentials) crawler.Strategy
	Advanced() crawler.Strategy
}

// Server wires HTTP handlers to the run coordinator.
type Server struct {
	router   chi.Router
	runner   Runner
	selector StrategyPicker
	logger   *zap.Logger
}

// Options toggles optional server behavior.
type Options struct {
	AuthEnabled bool
	APIKey      string
}

// NewServer constructs a Server with middleware and routes.
func NewServer(runner Runner, selector StrategyPicker, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		runner:   runner,
		selector: selector,
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(corsMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	if opts.AuthEnabled {
		r.Use(apiKeyMiddleware(opts.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/scrape", s.scrape)
		r.Post("/scrape/advanced", s.scrapeAdvanced)
		r.Get("/hospitals/{hospital_id}/stats", s.hospitalStats)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type scrapeRequest struct {
	HospitalID      string `json:"hospitalId"`
	WebsiteURL      string `json:"websiteUrl"`
	FirecrawlAPIKey string `json:"firecrawlApiKey,omitempty"`
	ScraperAPIKey   string `json:"scraperApiKey,omitempty"`
}

type scrapeResponse struct {
	Success      bool   `json:"success"`
	PagesScraped int    `json:"pagesScraped"`
	Method       string `json:"method"`
	Message      string `json:"message"`
}

func (s *Server) scrape(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeScrapeRequest(w, r)
	if !ok {
		return
	}
	strat := s.selector.Select(crawler.Credentials{
		CrawlAPIKey: req.FirecrawlAPIKey,
		ProxyAPIKey: req.ScraperAPIKey,
	})
	s.runScrape(w, r, req, strat, false)
}

func (s *Server) scrapeAdvanced(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeScrapeRequest(w, r)
	if !ok {
		return
	}
	s.runScrape(w, r, req, s.selector.Advanced(), true)
}

func (s *Server) runScrape(w http.ResponseWriter, r *http.Request, req scrapeRequest, strat crawler.Strategy, bounded bool) {
	outcome, err := s.runner.RunScrape(r.Context(), req.HospitalID, req.WebsiteURL, strat)
	if err != nil {
		status := http.StatusInternalServerError
		var runErr *crawler.RunError
		if errors.As(err, &runErr) {
			if bounded && runErr.Kind == crawler.ErrKindTimeout {
				status = StatusRunTimeout
			}
			writeJSON(w, status, errorResponse{Error: runErr.Message, Suggestion: runErr.Suggestion})
			return
		}
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, scrapeResponse{
		Success:      true,
		PagesScraped: outcome.PagesScraped,
		Method:       string(outcome.Method),
		Message:      outcome.Message,
	})
}

func (s *Server) hospitalStats(w http.ResponseWriter, r *http.Request) {
	hospitalID := chi.URLParam(r, "hospital_id")
	agg, err := s.runner.Aggregate(r.Context(), hospitalID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to aggregate scrape stats")
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

func decodeScrapeRequest(w http.ResponseWriter, r *http.Request) (scrapeRequest, bool) {
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return scrapeRequest{}, false
	}
	if req.HospitalID == "" {
		writeError(w, http.StatusBadRequest, "hospitalId is required")
		return scrapeRequest{}, false
	}
	if req.WebsiteURL == "" {
		writeError(w, http.StatusBadRequest, "websiteUrl is required")
		return scrapeRequest{}, false
	}
	return req, true
}

type errorResponse struct {
	Error      string `json:"error"`
	Suggestion string `json:"suggestion,omitempty"`
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-ID", uuid.NewString())
		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		metrics.ObserveHTTPRequest(r.Method, route, ww.status, time.Since(start))
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
