// Package collyfetcher implements the single-page fetch engine using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/mednetlabs/hospital-crawler/internal/crawler"
)

// DefaultUserAgent is a realistic desktop browser UA. Many hospital sites
// refuse bare scripted clients, so we present as a browser.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

const acceptHeader = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"

// ErrNotHTML marks responses whose content type is not parseable HTML.
var ErrNotHTML = errors.New("response is not html")

// ErrBadStatus marks non-2xx responses.
var ErrBadStatus = errors.New("non-success status")

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher implements crawler.Fetcher using a Colly collector per request.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
	logger        *zap.Logger
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// Synchronous is the default; colly v2.1's Async option ignores its
	// bool argument, so Async(false) would actually enable async mode.
	c := colly.NewCollector()
	c.IgnoreRobotsTxt = true
	transport := newHTTPTransport()
	c.WithTransport(transport)

	return &Fetcher{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
		logger:        logger,
	}
}

// Fetch executes a single HTTP GET. It returns an error for non-2xx statuses
// and non-HTML content types so callers skip such pages instead of parsing
// them. The context deadline aborts the in-flight request.
func (f *Fetcher) Fetch(ctx context.Context, url string) (crawler.FetchResult, error) {
	var (
		result   crawler.FetchResult
		fetchErr error
	)
	start := time.Now()

	collector := f.baseCollector.Clone()
	collector.UserAgent = f.cfg.UserAgent
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(f.cfg.Timeout)
	collector.WithTransport(f.transport)

	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", acceptHeader)
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
	})
	collector.OnResponse(func(r *colly.Response) {
		result = crawler.FetchResult{
			URL:         r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			ContentType: r.Headers.Get("Content-Type"),
			Body:        append([]byte(nil), r.Body...),
			Duration:    time.Since(start),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			result.StatusCode = r.StatusCode
		}
		fetchErr = err
	})

	if err := f.runCollector(ctx, collector, url, &fetchErr); err != nil {
		if result.StatusCode != 0 && !isSuccess(result.StatusCode) {
			return crawler.FetchResult{StatusCode: result.StatusCode},
				fmt.Errorf("%w: %d", ErrBadStatus, result.StatusCode)
		}
		return crawler.FetchResult{}, err
	}

	if !isSuccess(result.StatusCode) {
		return crawler.FetchResult{StatusCode: result.StatusCode},
			fmt.Errorf("%w: %d", ErrBadStatus, result.StatusCode)
	}
	if !IsHTMLContentType(result.ContentType) {
		return crawler.FetchResult{}, fmt.Errorf("%w: %q", ErrNotHTML, result.ContentType)
	}
	return result, nil
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("response failed: %w", *fetchErr)
		}
		return nil
	}
}

// IsHTMLContentType reports whether a Content-Type header denotes HTML.
func IsHTMLContentType(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	return strings.HasPrefix(ct, "text/html") || strings.HasPrefix(ct, "application/xhtml+xml")
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
