package extract

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mednetlabs/hospital-crawler/internal/crawler"
)

// maxContactMatches caps discovered emails and phone numbers each.
const maxContactMatches = 5

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phoneRe = regexp.MustCompile(`\+?\d{1,3}[-.\s]?\(?\d{2,4}\)?[-.\s]?\d{3,4}[-.\s]?\d{3,4}`)
)

// extractMetadata collects meta tag pairs, JSON-LD blocks, and contact
// details from the document. Malformed JSON-LD blocks are skipped.
func extractMetadata(doc *goquery.Document) crawler.PageMetadata {
	meta := crawler.PageMetadata{}

	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		key, ok := s.Attr("name")
		if !ok || key == "" {
			key, ok = s.Attr("property")
		}
		if !ok || key == "" {
			return
		}
		content, ok := s.Attr("content")
		if !ok || strings.TrimSpace(content) == "" {
			return
		}
		if meta.MetaTags == nil {
			meta.MetaTags = make(map[string]string)
		}
		meta.MetaTags[key] = strings.TrimSpace(content)
	})

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		meta.StructuredData = append(meta.StructuredData, parseStructuredData(s.Text())...)
	})

	bodyText := doc.Find("body").Text()
	meta.Emails = dedupeMatches(emailRe.FindAllString(bodyText, -1))
	meta.Phones = dedupeMatches(phoneRe.FindAllString(bodyText, -1))

	return meta
}

// parseStructuredData accepts both a single JSON-LD object and a top-level
// array of objects. Anything unparseable yields nothing.
func parseStructuredData(raw string) []map[string]any {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var single map[string]any
	if err := json.Unmarshal([]byte(raw), &single); err == nil {
		return []map[string]any{single}
	}
	var list []map[string]any
	if err := json.Unmarshal([]byte(raw), &list); err == nil {
		return list
	}
	return nil
}

func dedupeMatches(matches []string) []string {
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
		if len(out) == maxContactMatches {
			break
		}
	}
	return out
}
