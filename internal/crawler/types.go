// Package crawler defines core types shared across the scraping subsystems.
package crawler

import "time"

// PageType is the closed classification label assigned to each extracted page.
type PageType string

// Page type values persisted in the hospital_pages table.
const (
	PageTypeHome         PageType = "home"
	PageTypeAbout        PageType = "about"
	PageTypeContact      PageType = "contact"
	PageTypeServices     PageType = "services"
	PageTypeDoctors      PageType = "doctors"
	PageTypeEmergency    PageType = "emergency"
	PageTypeAppointments PageType = "appointments"
	PageTypeBlog         PageType = "blog"
	PageTypeDepartment   PageType = "department"
	PageTypeLaboratory   PageType = "laboratory"
	PageTypeGeneral      PageType = "general"
)

// ScrapeMethod identifies which strategy executed a run.
type ScrapeMethod string

// Strategy identifiers recorded in hospital_scraping_stats.
const (
	MethodNative   ScrapeMethod = "native"
	MethodCrawlAPI ScrapeMethod = "crawl_api"
	MethodProxyAPI ScrapeMethod = "proxy_api"
)

// Hospital is the record the crawler consumes. Scheduling hints
// (auto_scrape_enabled, scrape_frequency) are owned by the caller and
// carried through untouched.
type Hospital struct {
	ID                string     `json:"id"`
	WebsiteURL        string     `json:"website_url"`
	ScrapedAt         *time.Time `json:"scraped_at,omitempty"`
	AutoScrapeEnabled bool       `json:"auto_scrape_enabled"`
	ScrapeFrequency   string     `json:"scrape_frequency,omitempty"`
}

// PageMetadata holds the free-form extraction byproducts for one page.
type PageMetadata struct {
	Method         string            `json:"method,omitempty"`
	MetaTags       map[string]string `json:"meta_tags,omitempty"`
	StructuredData []map[string]any  `json:"structured_data,omitempty"`
	Emails         []string          `json:"emails,omitempty"`
	Phones         []string          `json:"phones,omitempty"`
}

// Page is one extracted page within a run. Pages are a snapshot: each run
// fully replaces the prior set for its hospital, so they carry no identity
// across runs.
type Page struct {
	HospitalID string       `json:"hospital_id"`
	URL        string       `json:"url"`
	Title      string       `json:"title"`
	Content    string       `json:"content"`
	PageType   PageType     `json:"page_type"`
	Metadata   PageMetadata `json:"metadata"`
	ScrapedAt  time.Time    `json:"scraped_at"`
}

// ScrapeStats is the append-only per-run record. Exactly one row is written
// per run attempt, whatever the outcome.
type ScrapeStats struct {
	ID              string       `json:"id"`
	HospitalID      string       `json:"hospital_id"`
	Method          ScrapeMethod `json:"method"`
	PagesScraped    int          `json:"pages_scraped"`
	PagesFailed     int          `json:"pages_failed"`
	DurationSeconds float64      `json:"duration_seconds"`
	Success         bool         `json:"success"`
	ErrorMessage    string       `json:"error_message,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}

// StatsAggregate summarizes a hospital's run history.
type StatsAggregate struct {
	HospitalID      string       `json:"hospital_id"`
	Runs            int          `json:"runs"`
	SuccessRate     float64      `json:"success_rate"`
	AvgDurationSecs float64      `json:"avg_duration_seconds"`
	LastMethod      ScrapeMethod `json:"last_method,omitempty"`
	LastRunAt       *time.Time   `json:"last_run_at,omitempty"`
}

// Credentials carries the optional provider keys supplied by the caller.
// Which keys are present decides the strategy for the run.
type Credentials struct {
	CrawlAPIKey string `json:"crawl_api_key,omitempty"`
	ProxyAPIKey string `json:"proxy_api_key,omitempty"`
}

// Budget bounds one traversal.
type Budget struct {
	MaxPages  int
	MaxDepth  int
	BatchSize int
}

// FetchResult is the gated response produced by a Fetcher for one URL.
type FetchResult struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
	Duration    time.Duration
}

// RunResult is what a strategy hands back to the coordinator.
type RunResult struct {
	Method      ScrapeMethod
	Pages       []Page
	PagesFailed int
}
