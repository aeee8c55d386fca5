package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mednetlabs/hospital-crawler/internal/crawler"
)

// extractLinks collects crawlable same-origin links from anchor tags,
// normalized and deduplicated.
func extractLinks(doc *goquery.Document, base *url.URL) []string {
	var links []string
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		resolved := crawler.ResolveLink(href, base)
		if resolved == nil {
			return
		}
		normalized, err := crawler.NormalizeURL(resolved.String())
		if err != nil {
			return
		}
		if _, dup := seen[normalized]; dup {
			return
		}
		seen[normalized] = struct{}{}
		links = append(links, normalized)
	})
	return links
}
