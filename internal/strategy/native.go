// Package strategy houses the three interchangeable scraping backends and the
// credential-driven selector that picks one per run.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mednetlabs/hospital-crawler/internal/crawler"
	"github.com/mednetlabs/hospital-crawler/internal/extract"
	"github.com/mednetlabs/hospital-crawler/internal/scheduler"
)

// Native runs the self-hosted crawl scheduler. With GlobalTimeout set it is
// the bounded "advanced" variant: the whole traversal races one deadline and
// collected pages are discarded on expiry.
type Native struct {
	sched         *scheduler.Scheduler
	method        crawler.ScrapeMethod
	globalTimeout time.Duration
	clock         crawler.Clock
	logger        *zap.Logger
}

// NewNative builds the native strategy over a prepared scheduler.
func NewNative(sched *scheduler.Scheduler, globalTimeout time.Duration, clock crawler.Clock, logger *zap.Logger) *Native {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Native{
		sched:         sched,
		method:        crawler.MethodNative,
		globalTimeout: globalTimeout,
		clock:         clock,
		logger:        logger,
	}
}

// Method reports the strategy identifier for stats rows.
func (n *Native) Method() crawler.ScrapeMethod {
	return n.method
}

// Run crawls from the seed and converts traversal results into page records.
func (n *Native) Run(ctx context.Context, hospitalID, seedURL string) (crawler.RunResult, error) {
	seed, err := crawler.ValidateSeedURL(seedURL)
	if err != nil {
		return crawler.RunResult{}, crawler.NewRunError(crawler.ErrKindInput,
			"website URL is not a valid absolute URL",
			"Fix the hospital's website URL and try again.", err)
	}

	if n.globalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.globalTimeout)
		defer cancel()
	}

	crawled, err := n.sched.Crawl(ctx, seed)
	if err != nil {
		return crawler.RunResult{}, n.classifyCrawlError(err)
	}

	now := n.clock.Now()
	result := crawler.RunResult{
		Method:      n.method,
		PagesFailed: crawled.PagesFailed,
		Pages:       make([]crawler.Page, 0, len(crawled.Pages)),
	}
	for _, page := range crawled.Pages {
		result.Pages = append(result.Pages, page.ToPage(hospitalID, now))
	}
	return result, nil
}

func (n *Native) classifyCrawlError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return crawler.NewRunError(crawler.ErrKindTimeout,
			fmt.Sprintf("crawl exceeded the %s time budget", n.globalTimeout),
			"Reduce the page or depth limits, or use a managed scraping provider.", err)
	}
	return crawler.NewRunError(crawler.ErrKindConnectivity,
		"could not reach the hospital website",
		"Verify the website is online and the URL is correct.", err)
}

// capContent applies the extractor's content cap to provider-supplied text.
func capContent(s string) string {
	if len(s) <= extract.MaxContentLength {
		return s
	}
	runes := []rune(s)
	if len(runes) <= extract.MaxContentLength {
		return s
	}
	return string(runes[:extract.MaxContentLength])
}
