package strategy

import (
	"time"

	"go.uber.org/zap"

	"github.com/mednetlabs/hospital-crawler/internal/crawler"
	"github.com/mednetlabs/hospital-crawler/internal/extract"
	collyfetcher "github.com/mednetlabs/hospital-crawler/internal/fetcher/colly"
	proxyfetcher "github.com/mednetlabs/hospital-crawler/internal/fetcher/proxy"
	"github.com/mednetlabs/hospital-crawler/internal/scheduler"
)

// SelectorConfig carries the per-strategy tunables. Provider API keys are not
// here: they arrive with each request and decide the strategy.
type SelectorConfig struct {
	UserAgent        string
	HostQPS          float64
	FetchTimeout     time.Duration
	ProxyTimeout     time.Duration
	NativeBudget     crawler.Budget
	AdvancedBudget   crawler.Budget
	AdvancedTimeout  time.Duration
	ProxyBudget      crawler.Budget
	ProxyEndpoint    string
	CrawlAPIEndpoint string
	CrawlPageLimit   int
	PollInterval     time.Duration
	MaxPolls         int
}

// Selector builds the strategy for a run from the supplied credentials.
// Precedence is fixed: crawl-API key, then proxy-API key, then native.
type Selector struct {
	cfg       SelectorConfig
	extractor *extract.Extractor
	clock     crawler.Clock
	logger    *zap.Logger
}

// NewSelector builds a Selector.
func NewSelector(cfg SelectorConfig, extractor *extract.Extractor, clock crawler.Clock, logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{
		cfg:       cfg,
		extractor: extractor,
		clock:     clock,
		logger:    logger,
	}
}

// Select returns the strategy for the given credentials. The decision is made
// once per run, here, and nowhere else.
func (s *Selector) Select(creds crawler.Credentials) crawler.Strategy {
	switch {
	case creds.CrawlAPIKey != "":
		return NewCrawlAPI(CrawlAPIConfig{
			Endpoint:     s.cfg.CrawlAPIEndpoint,
			APIKey:       creds.CrawlAPIKey,
			PageLimit:    s.cfg.CrawlPageLimit,
			PollInterval: s.cfg.PollInterval,
			MaxPolls:     s.cfg.MaxPolls,
		}, s.clock, s.logger)
	case creds.ProxyAPIKey != "":
		return s.proxy(creds.ProxyAPIKey)
	default:
		return s.native()
	}
}

// Advanced returns the bounded native variant used by the short-deadline
// entry point.
func (s *Selector) Advanced() crawler.Strategy {
	sched := scheduler.New(
		collyfetcher.New(collyfetcher.Config{
			UserAgent: s.cfg.UserAgent,
			Timeout:   s.cfg.FetchTimeout,
		}, s.logger),
		s.extractor,
		scheduler.Config{Budget: s.cfg.AdvancedBudget, HostQPS: s.cfg.HostQPS},
		s.logger,
	)
	return NewNative(sched, s.cfg.AdvancedTimeout, s.clock, s.logger)
}

func (s *Selector) native() crawler.Strategy {
	sched := scheduler.New(
		collyfetcher.New(collyfetcher.Config{
			UserAgent: s.cfg.UserAgent,
			Timeout:   s.cfg.FetchTimeout,
		}, s.logger),
		s.extractor,
		scheduler.Config{Budget: s.cfg.NativeBudget, HostQPS: s.cfg.HostQPS},
		s.logger,
	)
	return NewNative(sched, 0, s.clock, s.logger)
}

func (s *Selector) proxy(apiKey string) crawler.Strategy {
	fetcher := proxyfetcher.New(proxyfetcher.Config{
		Endpoint: s.cfg.ProxyEndpoint,
		APIKey:   apiKey,
		Timeout:  s.cfg.ProxyTimeout,
	}, s.logger)
	sched := scheduler.New(fetcher, s.extractor,
		scheduler.Config{Budget: s.cfg.ProxyBudget, HostQPS: s.cfg.HostQPS}, s.logger)
	return NewProxy(sched, s.clock, s.logger)
}
