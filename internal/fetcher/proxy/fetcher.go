// Package proxyfetcher implements crawler.Fetcher on top of a managed
// proxy-rotation API: the provider fetches the target URL on our behalf and
// returns the rendered HTML body.
package proxyfetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/mednetlabs/hospital-crawler/internal/crawler"
	collyfetcher "github.com/mednetlabs/hospital-crawler/internal/fetcher/colly"
)

// DefaultEndpoint is the provider's GET-wrapping endpoint.
const DefaultEndpoint = "https://api.scraperapi.com/"

// maxBodyBytes bounds the proxied response body held in memory.
const maxBodyBytes = 10 << 20

// ErrUnauthorized marks an API-key rejection, which the UI treats as a
// credential reconfiguration prompt.
var ErrUnauthorized = errors.New("proxy api rejected credentials")

// Config controls the proxied fetcher.
type Config struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// Fetcher delegates page fetching to the proxy provider.
type Fetcher struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New builds a Fetcher. The http.Client is swappable for tests via WithClient.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// WithClient overrides the HTTP client (tests).
func (f *Fetcher) WithClient(client *http.Client) *Fetcher {
	f.client = client
	return f
}

// Fetch asks the provider to retrieve target. The provider call's status code
// is the status of the proxied fetch, so the same gates apply as for a direct
// GET.
func (f *Fetcher) Fetch(ctx context.Context, target string) (crawler.FetchResult, error) {
	endpoint, err := url.Parse(f.cfg.Endpoint)
	if err != nil {
		return crawler.FetchResult{}, fmt.Errorf("parse proxy endpoint: %w", err)
	}
	q := endpoint.Query()
	q.Set("api_key", f.cfg.APIKey)
	q.Set("url", target)
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return crawler.FetchResult{}, fmt.Errorf("build proxy request: %w", err)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return crawler.FetchResult{}, fmt.Errorf("proxy fetch %s: %w", target, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			f.logger.Warn("close proxy response body", zap.Error(closeErr))
		}
	}()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return crawler.FetchResult{StatusCode: resp.StatusCode},
			fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return crawler.FetchResult{StatusCode: resp.StatusCode},
			fmt.Errorf("proxy fetch %s: status %d", target, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !collyfetcher.IsHTMLContentType(contentType) {
		return crawler.FetchResult{}, fmt.Errorf("proxy fetch %s: %w: %q",
			target, collyfetcher.ErrNotHTML, contentType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return crawler.FetchResult{}, fmt.Errorf("read proxy body: %w", err)
	}

	return crawler.FetchResult{
		URL:         target,
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Body:        body,
		Duration:    time.Since(start),
	}, nil
}
