package crawler

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// assetExtensions is the denylist of binary/asset path extensions that are
// never worth fetching as HTML.
var assetExtensions = map[string]struct{}{
	".pdf": {}, ".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {},
	".ppt": {}, ".pptx": {}, ".zip": {}, ".rar": {}, ".gz": {}, ".tar": {},
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {}, ".svg": {},
	".bmp": {}, ".tif": {}, ".tiff": {}, ".ico": {},
	".mp3": {}, ".wav": {}, ".mp4": {}, ".avi": {}, ".mov": {}, ".wmv": {},
	".css": {}, ".js": {}, ".woff": {}, ".woff2": {}, ".ttf": {}, ".eot": {},
}

// blockedPathSegments are administrative/auth areas excluded from discovery.
var blockedPathSegments = []string{
	"/wp-admin",
	"/wp-login",
	"/login",
	"/logout",
	"/signin",
	"/admin",
	"/cgi-bin",
}

// ResolveLink resolves a possibly-relative href against the page URL and
// returns the absolute URL if it is crawlable: same hostname as the base
// (subdomains count as different origins), http(s) scheme, no asset
// extension, no blocked path segment. It returns nil for everything else;
// a malformed or cross-origin href must never abort a crawl, so no error
// is surfaced.
func ResolveLink(href string, base *url.URL) *url.URL {
	href = strings.TrimSpace(href)
	if href == "" || base == nil {
		return nil
	}
	resolved, err := base.Parse(href)
	if err != nil {
		return nil
	}
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return nil
	}
	if !strings.EqualFold(resolved.Hostname(), base.Hostname()) {
		return nil
	}
	lowerPath := strings.ToLower(resolved.Path)
	if _, blocked := assetExtensions[path.Ext(lowerPath)]; blocked {
		return nil
	}
	for _, segment := range blockedPathSegments {
		if strings.Contains(lowerPath, segment) {
			return nil
		}
	}
	resolved.Fragment = ""
	return resolved
}

// NormalizeURL standardizes a URL so the visited set deduplicates
// equivalent spellings. It lowercases scheme and host, strips default
// ports and fragments, and sorts query parameters.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.RawQuery = u.Query().Encode()

	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), nil
}

// ValidateSeedURL checks that a hospital's website URL is an absolute
// http(s) URL with a hostname. It runs before any network activity.
func ValidateSeedURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse seed url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("seed url %q must use http or https", rawURL)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("seed url %q has no hostname", rawURL)
	}
	return u, nil
}
