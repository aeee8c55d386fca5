package extract

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/mednetlabs/hospital-crawler/internal/crawler"
)

var (
	titleTagRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	anyTagRe   = regexp.MustCompile(`(?s)<[^>]*>`)
)

// extractFallback handles markup the DOM parser rejected. It pulls the title
// with a regex, strips tags, and classifies on whatever text remains. Link
// discovery is skipped; a page this broken is a leaf.
func (e *Extractor) extractFallback(rawHTML []byte, pageURL *url.URL) Result {
	title := TitleFromURL(pageURL)
	if m := titleTagRe.FindSubmatch(rawHTML); len(m) == 2 {
		if t := collapseWhitespace(string(m[1])); t != "" {
			title = t
		}
	}

	content := truncate(stripTags(rawHTML), e.maxContent)

	return Result{
		URL:      pageURL.String(),
		Title:    title,
		Content:  content,
		PageType: Classify(pageURL, content),
		Metadata: crawler.PageMetadata{
			Method: methodFallback,
			Emails: dedupeMatches(emailRe.FindAllString(content, -1)),
			Phones: dedupeMatches(phoneRe.FindAllString(content, -1)),
		},
	}
}

// stripTags tokenizes the markup and keeps only text outside script/style.
// The tokenizer is tolerant of garbage; if it yields nothing, a plain regex
// strip is the last resort.
func stripTags(rawHTML []byte) string {
	var sb strings.Builder
	skipDepth := 0
	tokenizer := html.NewTokenizer(bytes.NewReader(rawHTML))
	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			break
		}
		switch tt {
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if isSkippedTag(string(name)) {
				skipDepth++
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if isSkippedTag(string(name)) && skipDepth > 0 {
				skipDepth--
			}
		case html.TextToken:
			if skipDepth == 0 {
				sb.WriteString(string(tokenizer.Text()))
				sb.WriteByte(' ')
			}
		}
	}

	text := collapseWhitespace(sb.String())
	if text == "" {
		text = collapseWhitespace(anyTagRe.ReplaceAllString(string(rawHTML), " "))
	}
	return text
}

func isSkippedTag(name string) bool {
	switch name {
	case "script", "style", "noscript":
		return true
	}
	return false
}
