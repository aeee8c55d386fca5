package strategy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/mednetlabs/hospital-crawler/internal/crawler"
	"github.com/mednetlabs/hospital-crawler/internal/extract"
)

// CrawlAPIConfig tunes the managed-crawl-API adapter.
type CrawlAPIConfig struct {
	Endpoint     string
	APIKey       string
	PageLimit    int
	PollInterval time.Duration
	MaxPolls     int
}

// CrawlAPI delegates the whole crawl to a managed provider: submit a job,
// poll until it completes, then normalize the provider pages into the shared
// page contract. Callers above this layer never see the provider's shapes.
type CrawlAPI struct {
	cfg    CrawlAPIConfig
	client *http.Client
	clock  crawler.Clock
	logger *zap.Logger
}

// NewCrawlAPI builds the adapter.
func NewCrawlAPI(cfg CrawlAPIConfig, clock crawler.Clock, logger *zap.Logger) *CrawlAPI {
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = 50
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = 60
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CrawlAPI{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		clock:  clock,
		logger: logger,
	}
}

// WithClient overrides the HTTP client (tests).
func (c *CrawlAPI) WithClient(client *http.Client) *CrawlAPI {
	c.client = client
	return c
}

// Method reports the strategy identifier for stats rows.
func (c *CrawlAPI) Method() crawler.ScrapeMethod {
	return crawler.MethodCrawlAPI
}

type crawlSubmitRequest struct {
	URL   string `json:"url"`
	Limit int    `json:"limit"`
}

type crawlSubmitResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	Error   string `json:"error"`
}

type crawlStatusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
	Data   []struct {
		Markdown string `json:"markdown"`
		HTML     string `json:"html"`
		Metadata struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			SourceURL   string `json:"sourceURL"`
		} `json:"metadata"`
	} `json:"data"`
}

// Run submits a crawl job and polls it to completion. Poll exhaustion is a
// timeout-kind failure, distinct from a provider-reported job failure.
func (c *CrawlAPI) Run(ctx context.Context, hospitalID, seedURL string) (crawler.RunResult, error) {
	if _, err := crawler.ValidateSeedURL(seedURL); err != nil {
		return crawler.RunResult{}, crawler.NewRunError(crawler.ErrKindInput,
			"website URL is not a valid absolute URL",
			"Fix the hospital's website URL and try again.", err)
	}

	jobID, err := c.submit(ctx, seedURL)
	if err != nil {
		return crawler.RunResult{}, err
	}
	c.logger.Info("crawl job submitted",
		zap.String("hospital_id", hospitalID),
		zap.String("job_id", jobID),
	)

	status, err := c.poll(ctx, jobID)
	if err != nil {
		return crawler.RunResult{}, err
	}

	return c.normalize(hospitalID, status), nil
}

func (c *CrawlAPI) submit(ctx context.Context, seedURL string) (string, error) {
	payload, err := json.Marshal(crawlSubmitRequest{URL: seedURL, Limit: c.cfg.PageLimit})
	if err != nil {
		return "", fmt.Errorf("marshal crawl request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build crawl request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", crawler.NewRunError(crawler.ErrKindProvider,
			"crawl provider is unreachable",
			"Check network access to the crawl provider and retry.", err)
	}
	defer c.closeBody(resp.Body)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", crawler.NewRunError(crawler.ErrKindProvider,
			fmt.Sprintf("crawl provider rejected credentials (status %d)", resp.StatusCode),
			"Check the crawl API key in the hospital's scraping settings.", nil)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", crawler.NewRunError(crawler.ErrKindProvider,
			fmt.Sprintf("crawl provider returned status %d", resp.StatusCode),
			"Retry later or switch to the native crawler.", nil)
	}

	var submitted crawlSubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&submitted); err != nil {
		return "", crawler.NewRunError(crawler.ErrKindProvider,
			"crawl provider returned an unreadable response", "", err)
	}
	if !submitted.Success || submitted.ID == "" {
		msg := submitted.Error
		if msg == "" {
			msg = "provider did not accept the job"
		}
		return "", crawler.NewRunError(crawler.ErrKindProvider,
			fmt.Sprintf("crawl job rejected: %s", msg), "", nil)
	}
	return submitted.ID, nil
}

// poll checks job status on a fixed interval until completion, provider
// failure, or poll exhaustion.
func (c *CrawlAPI) poll(ctx context.Context, jobID string) (*crawlStatusResponse, error) {
	statusURL, err := url.JoinPath(c.cfg.Endpoint, jobID)
	if err != nil {
		return nil, fmt.Errorf("build status url: %w", err)
	}

	for attempt := 0; attempt < c.cfg.MaxPolls; attempt++ {
		select {
		case <-ctx.Done():
			return nil, crawler.NewRunError(crawler.ErrKindTimeout,
				"crawl job polling canceled",
				"Retry, or reduce the crawl page limit.", ctx.Err())
		case <-time.After(c.cfg.PollInterval):
		}

		status, err := c.checkStatus(ctx, statusURL)
		if err != nil {
			return nil, err
		}
		switch status.Status {
		case "completed":
			return status, nil
		case "failed", "cancelled":
			msg := status.Error
			if msg == "" {
				msg = "provider reported job failure"
			}
			return nil, crawler.NewRunError(crawler.ErrKindProvider,
				fmt.Sprintf("crawl job failed: %s", msg),
				"Retry later or switch to the native crawler.", nil)
		}
		c.logger.Debug("crawl job pending",
			zap.String("job_id", jobID),
			zap.String("status", status.Status),
			zap.Int("attempt", attempt+1),
		)
	}

	return nil, crawler.NewRunError(crawler.ErrKindTimeout,
		fmt.Sprintf("crawl job did not complete within %d polls", c.cfg.MaxPolls),
		"Reduce the crawl page limit or retry later.", nil)
}

func (c *CrawlAPI) checkStatus(ctx context.Context, statusURL string) (*crawlStatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build status request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, crawler.NewRunError(crawler.ErrKindProvider,
			"crawl provider is unreachable during polling", "", err)
	}
	defer c.closeBody(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, crawler.NewRunError(crawler.ErrKindProvider,
			fmt.Sprintf("crawl status check returned %d", resp.StatusCode), "", nil)
	}
	var status crawlStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, crawler.NewRunError(crawler.ErrKindProvider,
			"crawl status response is unreadable", "", err)
	}
	return &status, nil
}

// normalize maps provider pages into the shared contract, running the shared
// classifier so crawl-API pages get the same page types as native ones.
func (c *CrawlAPI) normalize(hospitalID string, status *crawlStatusResponse) crawler.RunResult {
	now := c.clock.Now()
	result := crawler.RunResult{Method: crawler.MethodCrawlAPI}
	for _, item := range status.Data {
		pageURL, err := url.Parse(item.Metadata.SourceURL)
		if err != nil || item.Metadata.SourceURL == "" {
			result.PagesFailed++
			continue
		}
		content := item.Markdown
		if content == "" {
			content = item.HTML
		}
		title := item.Metadata.Title
		if title == "" {
			title = extract.TitleFromURL(pageURL)
		}
		content = capContent(content)
		page := crawler.Page{
			HospitalID: hospitalID,
			URL:        item.Metadata.SourceURL,
			Title:      title,
			Content:    content,
			PageType:   extract.Classify(pageURL, content),
			Metadata: crawler.PageMetadata{
				Method: "crawl_api",
			},
			ScrapedAt: now,
		}
		if item.Metadata.Description != "" {
			page.Metadata.MetaTags = map[string]string{"description": item.Metadata.Description}
		}
		result.Pages = append(result.Pages, page)
	}
	return result
}

func (c *CrawlAPI) closeBody(body io.ReadCloser) {
	if err := body.Close(); err != nil {
		c.logger.Warn("close provider response body", zap.Error(err))
	}
}
