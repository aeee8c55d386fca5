// Package coordinator orchestrates one scraping run end to end: strategy
// execution, snapshot persistence, and run statistics. It is the only
// component that writes state.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mednetlabs/hospital-crawler/internal/crawler"
	"github.com/mednetlabs/hospital-crawler/internal/metrics"
)

// Outcome is the caller-facing summary of a completed run.
type Outcome struct {
	PagesScraped    int                  `json:"pages_scraped"`
	PagesFailed     int                  `json:"pages_failed"`
	Method          crawler.ScrapeMethod `json:"method"`
	DurationSeconds float64              `json:"duration_seconds"`
	Message         string               `json:"message,omitempty"`
}

// Coordinator runs scrapes against the persistence boundary.
type Coordinator struct {
	store  crawler.Store
	clock  crawler.Clock
	idGen  crawler.IDGenerator
	logger *zap.Logger
}

// New builds a Coordinator.
func New(store crawler.Store, clock crawler.Clock, idGen crawler.IDGenerator, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		store:  store,
		clock:  clock,
		idGen:  idGen,
		logger: logger,
	}
}

// RunScrape executes one run. Exactly one stats row is written on every path,
// including failures, so run history is never silently lost. The page
// snapshot is replaced only when the strategy produced pages; a failed or
// empty run leaves the prior set untouched.
func (c *Coordinator) RunScrape(ctx context.Context, hospitalID, websiteURL string, strat crawler.Strategy) (Outcome, error) {
	started := c.clock.Now()

	if _, err := crawler.ValidateSeedURL(websiteURL); err != nil {
		runErr := crawler.NewRunError(crawler.ErrKindInput,
			"website URL is not a valid absolute URL",
			"Fix the hospital's website URL and try again.", err)
		c.recordStats(ctx, hospitalID, strat.Method(), crawler.RunResult{}, started, false, runErr.Message)
		return Outcome{}, runErr
	}

	result, runErr := strat.Run(ctx, hospitalID, websiteURL)
	elapsed := c.clock.Now().Sub(started)

	if runErr != nil {
		c.recordStats(ctx, hospitalID, strat.Method(), crawler.RunResult{}, started, false, runErr.Error())
		metrics.ObserveRun(string(strat.Method()), false, 0, 0, elapsed)
		c.logger.Warn("scrape run failed",
			zap.String("hospital_id", hospitalID),
			zap.String("method", string(strat.Method())),
			zap.Error(runErr),
		)
		return Outcome{}, runErr
	}

	outcome := Outcome{
		PagesScraped:    len(result.Pages),
		PagesFailed:     result.PagesFailed,
		Method:          result.Method,
		DurationSeconds: elapsed.Seconds(),
	}

	if len(result.Pages) == 0 {
		// A completed run with nothing to show is not an error: the attempt
		// still happened, so the timestamp and a failed stats row are written.
		outcome.Message = "no pages could be scraped from the website"
		c.touchScrapedAt(ctx, hospitalID)
		c.recordStats(ctx, hospitalID, result.Method, result, started, false, outcome.Message)
		metrics.ObserveRun(string(result.Method), false, 0, result.PagesFailed, elapsed)
		return outcome, nil
	}

	if err := c.store.ReplacePages(ctx, hospitalID, result.Pages); err != nil {
		wrapped := crawler.NewRunError(crawler.ErrKindProvider,
			"scraped pages could not be saved",
			"Retry the scrape; if it keeps failing check database connectivity.",
			fmt.Errorf("replace pages: %w", err))
		c.recordStats(ctx, hospitalID, result.Method, result, started, false, wrapped.Message)
		metrics.ObserveRun(string(result.Method), false, 0, result.PagesFailed, elapsed)
		return Outcome{}, wrapped
	}

	c.touchScrapedAt(ctx, hospitalID)
	c.recordStats(ctx, hospitalID, result.Method, result, started, true, "")
	metrics.ObserveRun(string(result.Method), true, len(result.Pages), result.PagesFailed, elapsed)

	c.logger.Info("scrape run completed",
		zap.String("hospital_id", hospitalID),
		zap.String("method", string(result.Method)),
		zap.Int("pages_scraped", len(result.Pages)),
		zap.Int("pages_failed", result.PagesFailed),
		zap.Float64("duration_seconds", outcome.DurationSeconds),
	)
	outcome.Message = fmt.Sprintf("scraped %d pages", len(result.Pages))
	return outcome, nil
}

// Aggregate returns historical run aggregates for one hospital.
func (c *Coordinator) Aggregate(ctx context.Context, hospitalID string) (crawler.StatsAggregate, error) {
	agg, err := c.store.AggregateStats(ctx, hospitalID)
	if err != nil {
		return crawler.StatsAggregate{}, fmt.Errorf("aggregate stats: %w", err)
	}
	return agg, nil
}

func (c *Coordinator) touchScrapedAt(ctx context.Context, hospitalID string) {
	if err := c.store.TouchScrapedAt(ctx, hospitalID, c.clock.Now()); err != nil {
		c.logger.Error("update scraped_at failed",
			zap.String("hospital_id", hospitalID),
			zap.Error(err),
		)
	}
}

// recordStats appends the run row. Persistence errors are logged, not
// propagated: a stats write failure must not mask the run's own outcome.
func (c *Coordinator) recordStats(
	ctx context.Context,
	hospitalID string,
	method crawler.ScrapeMethod,
	result crawler.RunResult,
	started time.Time,
	success bool,
	errMessage string,
) {
	id, err := c.idGen.NewID()
	if err != nil {
		c.logger.Error("generate stats id failed", zap.Error(err))
		return
	}
	stats := crawler.ScrapeStats{
		ID:              id,
		HospitalID:      hospitalID,
		Method:          method,
		PagesScraped:    len(result.Pages),
		PagesFailed:     result.PagesFailed,
		DurationSeconds: c.clock.Now().Sub(started).Seconds(),
		Success:         success,
		ErrorMessage:    errMessage,
		CreatedAt:       c.clock.Now(),
	}
	if err := c.store.RecordStats(ctx, stats); err != nil {
		c.logger.Error("record scrape stats failed",
			zap.String("hospital_id", hospitalID),
			zap.Error(err),
		)
	}
}
