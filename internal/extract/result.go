package extract

import (
	"time"

	"github.com/mednetlabs/hospital-crawler/internal/crawler"
)

// Result is one extracted page plus the same-origin links discovered on it.
// Links are already resolved and filtered, so the scheduler can enqueue them
// directly.
type Result struct {
	URL      string
	Title    string
	Content  string
	PageType crawler.PageType
	Metadata crawler.PageMetadata
	Links    []string
}

// ToPage converts the extraction result into a persistable page record.
func (r Result) ToPage(hospitalID string, at time.Time) crawler.Page {
	return crawler.Page{
		HospitalID: hospitalID,
		URL:        r.URL,
		Title:      r.Title,
		Content:    r.Content,
		PageType:   r.PageType,
		Metadata:   r.Metadata,
		ScrapedAt:  at,
	}
}
