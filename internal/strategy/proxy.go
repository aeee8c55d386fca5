package strategy

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/mednetlabs/hospital-crawler/internal/crawler"
	proxyfetcher "github.com/mednetlabs/hospital-crawler/internal/fetcher/proxy"
	"github.com/mednetlabs/hospital-crawler/internal/scheduler"
)

// Proxy runs the same traversal as the native strategy but every fetch is
// delegated to the proxy-rotation provider, for sites that block direct
// scripted clients.
type Proxy struct {
	sched  *scheduler.Scheduler
	clock  crawler.Clock
	logger *zap.Logger
}

// NewProxy builds the proxy-API strategy over a scheduler whose fetcher wraps
// the provider endpoint.
func NewProxy(sched *scheduler.Scheduler, clock crawler.Clock, logger *zap.Logger) *Proxy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Proxy{
		sched:  sched,
		clock:  clock,
		logger: logger,
	}
}

// Method reports the strategy identifier for stats rows.
func (p *Proxy) Method() crawler.ScrapeMethod {
	return crawler.MethodProxyAPI
}

// Run crawls through the provider. A credential rejection on the seed fetch
// surfaces as a provider failure so the UI can prompt for reconfiguration.
func (p *Proxy) Run(ctx context.Context, hospitalID, seedURL string) (crawler.RunResult, error) {
	seed, err := crawler.ValidateSeedURL(seedURL)
	if err != nil {
		return crawler.RunResult{}, crawler.NewRunError(crawler.ErrKindInput,
			"website URL is not a valid absolute URL",
			"Fix the hospital's website URL and try again.", err)
	}

	crawled, err := p.sched.Crawl(ctx, seed)
	if err != nil {
		if errors.Is(err, proxyfetcher.ErrUnauthorized) {
			return crawler.RunResult{}, crawler.NewRunError(crawler.ErrKindProvider,
				"proxy provider rejected credentials (401 Unauthorized)",
				"Check the proxy API key in the hospital's scraping settings.", err)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return crawler.RunResult{}, crawler.NewRunError(crawler.ErrKindTimeout,
				"proxied crawl exceeded its time budget",
				"Reduce the page limit or retry later.", err)
		}
		return crawler.RunResult{}, crawler.NewRunError(crawler.ErrKindProvider,
			"proxy provider could not fetch the hospital website",
			"Verify the website is online, or retry without the proxy key.", err)
	}

	now := p.clock.Now()
	result := crawler.RunResult{
		Method:      crawler.MethodProxyAPI,
		PagesFailed: crawled.PagesFailed,
		Pages:       make([]crawler.Page, 0, len(crawled.Pages)),
	}
	for _, page := range crawled.Pages {
		converted := page.ToPage(hospitalID, now)
		converted.Metadata.Method = "proxy_api"
		result.Pages = append(result.Pages, converted)
	}
	return result, nil
}
