// Package extract turns raw HTML into structured page records: title, cleaned
// text content, a page-type classification, and metadata.
package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"go.uber.org/zap"
)

// MaxContentLength caps the cleaned text stored per page.
const MaxContentLength = 50000

// minContentLength is the threshold below which selector-based extraction is
// considered to have missed the main content and readability is consulted.
const minContentLength = 100

// Extraction method tags recorded in page metadata.
const (
	methodDOM      = "dom"
	methodFallback = "regex_fallback"
)

// contentSelectors are tried in priority order before falling back to body.
var contentSelectors = []string{
	"main",
	"article",
	"[role=main]",
	"#main-content",
	".main-content",
	"#content",
	".content",
	".page-content",
	"#primary",
}

// strippedSelectors are removed from the document before text extraction.
var strippedSelectors = []string{
	"script",
	"style",
	"noscript",
	"iframe",
	"nav",
	"header",
	"footer",
	"aside",
	"form",
	"[role=navigation]",
	"[role=banner]",
	"[role=contentinfo]",
	".sidebar",
	".menu",
	".nav",
	".ads",
	".advertisement",
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// Extractor produces crawler.Page records from raw HTML.
type Extractor struct {
	maxContent int
	logger     *zap.Logger
}

// New builds an Extractor. A nil logger falls back to a no-op.
func New(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		maxContent: MaxContentLength,
		logger:     logger,
	}
}

// Extract never fails: if the markup cannot be parsed into a document tree it
// degrades to the regex fallback, so one page's broken HTML cannot sink a run.
// HospitalID and ScrapedAt are left for the caller to fill.
func (e *Extractor) Extract(rawHTML []byte, pageURL *url.URL) Result {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(rawHTML)))
	if err != nil {
		e.logger.Warn("html parse failed, using regex fallback",
			zap.String("url", pageURL.String()),
			zap.Error(err),
		)
		return e.extractFallback(rawHTML, pageURL)
	}

	title := e.title(doc, pageURL)
	content := e.content(doc, rawHTML, pageURL)
	meta := extractMetadata(doc)
	meta.Method = methodDOM

	return Result{
		URL:      pageURL.String(),
		Title:    title,
		Content:  content,
		PageType: Classify(pageURL, content),
		Metadata: meta,
		Links:    extractLinks(doc, pageURL),
	}
}

func (e *Extractor) title(doc *goquery.Document, pageURL *url.URL) string {
	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		return collapseWhitespace(t)
	}
	return TitleFromURL(pageURL)
}

func (e *Extractor) content(doc *goquery.Document, rawHTML []byte, pageURL *url.URL) string {
	clean := doc.Clone()
	for _, sel := range strippedSelectors {
		clean.Find(sel).Remove()
	}

	var text string
	for _, sel := range contentSelectors {
		if node := clean.Find(sel).First(); node.Length() > 0 {
			text = collapseWhitespace(node.Text())
			if text != "" {
				break
			}
		}
	}
	if text == "" {
		text = collapseWhitespace(clean.Find("body").Text())
	}

	// Selector misses on div-soup layouts; let readability take a pass
	// before settling for a thin body dump.
	if len(text) < minContentLength {
		if article, err := readability.FromReader(strings.NewReader(string(rawHTML)), pageURL); err == nil {
			if rt := collapseWhitespace(article.TextContent); len(rt) > len(text) {
				text = rt
			}
		}
	}

	return truncate(text, e.maxContent)
}

// TitleFromURL derives a human-readable label from the last path segment.
func TitleFromURL(pageURL *url.URL) string {
	segment := strings.Trim(pageURL.Path, "/")
	if segment == "" {
		return "Home"
	}
	if idx := strings.LastIndex(segment, "/"); idx >= 0 {
		segment = segment[idx+1:]
	}
	if dot := strings.LastIndex(segment, "."); dot > 0 {
		segment = segment[:dot]
	}
	segment = strings.NewReplacer("-", " ", "_", " ", "%20", " ").Replace(segment)
	segment = collapseWhitespace(segment)
	if segment == "" {
		return "Unknown Page"
	}
	words := strings.Fields(segment)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
