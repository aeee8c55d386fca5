package extract

import (
	"net/url"
	"strings"

	"github.com/mednetlabs/hospital-crawler/internal/crawler"
)

// urlRules map path substrings to page types. URL rules take precedence over
// content keywords, so ordering here decides ties ("/departments/contact"
// classifies as contact).
var urlRules = []struct {
	substrings []string
	pageType   crawler.PageType
}{
	{[]string{"contact"}, crawler.PageTypeContact},
	{[]string{"about"}, crawler.PageTypeAbout},
	{[]string{"emergency", "urgent-care"}, crawler.PageTypeEmergency},
	{[]string{"appointment", "booking"}, crawler.PageTypeAppointments},
	{[]string{"doctor", "physician", "staff", "our-team"}, crawler.PageTypeDoctors},
	{[]string{"laborator", "/lab/", "diagnostic"}, crawler.PageTypeLaboratory},
	{[]string{"department", "/dept"}, crawler.PageTypeDepartment},
	{[]string{"service", "specialit", "specialt"}, crawler.PageTypeServices},
	{[]string{"blog", "news", "article"}, crawler.PageTypeBlog},
}

// contentRules are keyword sets scanned against the extracted text when no
// URL rule matched. First matching set wins.
var contentRules = []struct {
	keywords []string
	pageType crawler.PageType
}{
	{[]string{"24/7", "trauma", "ambulance", "emergency room"}, crawler.PageTypeEmergency},
	{[]string{"our services", "specialties", "treatments we offer", "treatment options"}, crawler.PageTypeServices},
	{[]string{"our doctors", "our physicians", "physicians", "our specialists", "medical staff"}, crawler.PageTypeDoctors},
	{[]string{"contact us", "get in touch", "phone:", "our address"}, crawler.PageTypeContact},
	{[]string{"our mission", "about us", "our hospital", "our story"}, crawler.PageTypeAbout},
	{[]string{"book an appointment", "booking", "schedule a visit", "schedule an appointment"}, crawler.PageTypeAppointments},
	{[]string{"laboratory", "lab tests", "pathology"}, crawler.PageTypeLaboratory},
}

// Classify assigns the closed page-type label. URL path rules run first, then
// content keyword sets, then general. A bare origin path is always home.
func Classify(pageURL *url.URL, content string) crawler.PageType {
	path := strings.ToLower(pageURL.Path)
	if path == "" || path == "/" {
		return crawler.PageTypeHome
	}

	for _, rule := range urlRules {
		for _, sub := range rule.substrings {
			if strings.Contains(path, sub) {
				return rule.pageType
			}
		}
	}

	lower := strings.ToLower(content)
	for _, rule := range contentRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.pageType
			}
		}
	}
	return crawler.PageTypeGeneral
}
