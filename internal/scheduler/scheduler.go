// Package scheduler implements the bounded same-origin traversal: an explicit
// frontier of (url, depth) pairs worked in small concurrent batches under
// page-count, depth, and deadline budgets.
package scheduler

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/mednetlabs/hospital-crawler/internal/crawler"
	"github.com/mednetlabs/hospital-crawler/internal/extract"
)

// defaultBatchSize bounds concurrent in-flight fetches per wave.
const defaultBatchSize = 5

// defaultQPS paces fetches against the single target host.
const defaultQPS = 4

// Config tunes one traversal.
type Config struct {
	Budget  crawler.Budget
	HostQPS float64
}

// Result is the outcome of one traversal.
type Result struct {
	Pages       []extract.Result
	PagesFailed int
}

// item is one frontier entry.
type item struct {
	url   string
	depth int
}

// Scheduler drives the traversal. The visited set and frontier are local to
// each Crawl call; a Scheduler is safe for sequential reuse across runs.
type Scheduler struct {
	fetcher   crawler.Fetcher
	extractor *extract.Extractor
	cfg       Config
	logger    *zap.Logger
}

// New builds a Scheduler.
func New(fetcher crawler.Fetcher, extractor *extract.Extractor, cfg Config, logger *zap.Logger) *Scheduler {
	if cfg.Budget.BatchSize <= 0 {
		cfg.Budget.BatchSize = defaultBatchSize
	}
	if cfg.HostQPS <= 0 {
		cfg.HostQPS = defaultQPS
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		fetcher:   fetcher,
		extractor: extractor,
		cfg:       cfg,
		logger:    logger,
	}
}

// Crawl walks the site from seed. The seed page is always attempted first and
// its failure fails the whole traversal (there is no content source without
// it); every later per-page failure is logged, counted, and swallowed. The
// context deadline is checked between batches and threaded into every fetch,
// so expiry surfaces as ctx.Err.
func (s *Scheduler) Crawl(ctx context.Context, seed *url.URL) (Result, error) {
	normalizedSeed, err := crawler.NormalizeURL(seed.String())
	if err != nil {
		return Result{}, fmt.Errorf("normalize seed: %w", err)
	}

	limiter := rate.NewLimiter(rate.Limit(s.cfg.HostQPS), s.cfg.Budget.BatchSize)
	visited := map[string]struct{}{normalizedSeed: {}}

	seedResult, err := s.fetchAndExtract(ctx, limiter, normalizedSeed)
	if err != nil {
		return Result{}, fmt.Errorf("seed fetch: %w", err)
	}

	result := Result{Pages: []extract.Result{*seedResult}}
	frontier := s.enqueueLinks(nil, seedResult.Links, 1, visited)

	for len(frontier) > 0 && len(result.Pages) < s.cfg.Budget.MaxPages {
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("traversal deadline: %w", ctx.Err())
		}

		batch := frontier
		if len(batch) > s.cfg.Budget.BatchSize {
			batch = frontier[:s.cfg.Budget.BatchSize]
		}
		frontier = frontier[len(batch):]
		remaining := s.cfg.Budget.MaxPages - len(result.Pages)
		if len(batch) > remaining {
			batch = batch[:remaining]
		}

		pages, discovered, failed := s.crawlBatch(ctx, limiter, batch)
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("traversal deadline: %w", ctx.Err())
		}
		result.Pages = append(result.Pages, pages...)
		result.PagesFailed += failed

		for _, links := range discovered {
			frontier = s.enqueueLinks(frontier, links.urls, links.depth+1, visited)
		}
	}

	return result, nil
}

type discoveredLinks struct {
	urls  []string
	depth int
}

// crawlBatch fetches one wave concurrently. Individual failures are counted
// and swallowed; only context cancellation escapes via the group.
func (s *Scheduler) crawlBatch(ctx context.Context, limiter *rate.Limiter, batch []item) ([]extract.Result, []discoveredLinks, int) {
	var (
		mu         sync.Mutex
		pages      []extract.Result
		discovered []discoveredLinks
		failed     int
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, entry := range batch {
		entry := entry
		g.Go(func() error {
			page, err := s.fetchAndExtract(gctx, limiter, entry.url)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.logger.Debug("page skipped",
					zap.String("url", entry.url),
					zap.Error(err),
				)
				failed++
				return nil
			}
			pages = append(pages, *page)
			if entry.depth < s.cfg.Budget.MaxDepth {
				discovered = append(discovered, discoveredLinks{urls: page.Links, depth: entry.depth})
			}
			return nil
		})
	}
	// Goroutines only return nil; Wait is for joining the batch.
	_ = g.Wait()
	return pages, discovered, failed
}

func (s *Scheduler) fetchAndExtract(ctx context.Context, limiter *rate.Limiter, pageURL string) (*extract.Result, error) {
	if err := limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate wait: %w", err)
	}
	fetched, err := s.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	parsed, err := url.Parse(fetched.URL)
	if err != nil {
		parsed, err = url.Parse(pageURL)
		if err != nil {
			return nil, fmt.Errorf("parse fetched url: %w", err)
		}
	}
	result := s.extractor.Extract(fetched.Body, parsed)
	return &result, nil
}

// enqueueLinks appends unseen links at the given depth, respecting the depth
// budget. Marking visited at enqueue time keeps duplicates out of the
// frontier entirely.
func (s *Scheduler) enqueueLinks(frontier []item, links []string, depth int, visited map[string]struct{}) []item {
	if depth > s.cfg.Budget.MaxDepth {
		return frontier
	}
	for _, link := range links {
		if _, seen := visited[link]; seen {
			continue
		}
		visited[link] = struct{}{}
		frontier = append(frontier, item{url: link, depth: depth})
	}
	return frontier
}
