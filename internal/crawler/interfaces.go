package crawler

import (
	"context"
	"time"
)

// Fetcher fetches a single URL and returns the gated response. Implementations
// must reject non-2xx statuses and non-HTML content types with an error rather
// than handing back an unparseable body.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResult, error)
}

// Strategy executes one complete scraping run against a seed URL.
type Strategy interface {
	Method() ScrapeMethod
	Run(ctx context.Context, hospitalID, seedURL string) (RunResult, error)
}

// HospitalStore reads seed URLs and records attempt timestamps.
type HospitalStore interface {
	GetHospital(ctx context.Context, id string) (Hospital, error)
	TouchScrapedAt(ctx context.Context, id string, at time.Time) error
}

// PageStore replaces a hospital's page snapshot. ReplacePages must be atomic
// from the reader's perspective: the old set is never visible alongside the
// new one.
type PageStore interface {
	ReplacePages(ctx context.Context, hospitalID string, pages []Page) error
}

// StatsStore appends run records and serves history aggregates.
type StatsStore interface {
	RecordStats(ctx context.Context, stats ScrapeStats) error
	AggregateStats(ctx context.Context, hospitalID string) (StatsAggregate, error)
}

// Store is the persistence boundary the coordinator owns. No other component
// writes state.
type Store interface {
	HospitalStore
	PageStore
	StatsStore
}

// Clock returns the current time (swappable in tests).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces row and request IDs.
type IDGenerator interface {
	NewID() (string, error)
}
