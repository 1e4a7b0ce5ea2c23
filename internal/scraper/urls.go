package scraper

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// DefaultBaseURL is the production site root. Tests point BaseURL at a local
// httptest server instead.
const DefaultBaseURL = "https://aviewfrommyseat.com"

// URL shapes observed on the site. A photo path carries the full seating
// location; the seat segment is optional (row-level photos omit it).
var (
	sectionPathPattern = regexp.MustCompile(`/venue/[^/]+/section-([^/?#]+)/?`)
	photoPathPattern   = regexp.MustCompile(`/photo/(\d+)/[^/]+/section-([^/]+)/row-([^/]+?)(?:/seat-([^/?#]+?))?/?(?:[?#].*)?$`)
)

// Site builds the venue-specific URLs the pipeline visits.
type Site struct {
	BaseURL string
}

// SectionsURL is the listing of all sections for a venue.
func (s Site) SectionsURL(venue string) string {
	return fmt.Sprintf("%s/venue/%s/sections/", strings.TrimRight(s.BaseURL, "/"), url.PathEscape(venue))
}

// Absolute resolves href against the site root when it is relative.
func (s Site) Absolute(href string) string {
	if href == "" {
		return ""
	}
	base, err := url.Parse(s.BaseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// Thumbnail URL segments the site rewrites when serving scaled-down copies.
var thumbRewrites = []struct {
	pattern *regexp.Regexp
	repl    string
}{
	{regexp.MustCompile(`(?i)_thumb\.(jpg|jpeg|png|gif)`), `.$1`},
	{regexp.MustCompile(`(?i)-thumb\.(jpg|jpeg|png|gif)`), `.$1`},
	{regexp.MustCompile(`/thumbs?/`), `/photos/`},
	{regexp.MustCompile(`/small/`), `/large/`},
	{regexp.MustCompile(`/medium/`), `/large/`},
}

// FullImageURL converts a thumbnail src into the full-resolution image URL
// and makes it absolute.
func (s Site) FullImageURL(src string) string {
	full := src
	for _, rw := range thumbRewrites {
		full = rw.pattern.ReplaceAllString(full, rw.repl)
	}
	if !strings.HasPrefix(full, "http") {
		full = s.Absolute(full)
	}
	return full
}

// ResolveVenue maps a colloquial venue name to the site's URL form. Unknown
// names are URL-encoded as-is.
func ResolveVenue(name string) string {
	if v, ok := venueAliases[strings.ToLower(strings.TrimSpace(name))]; ok {
		return v
	}
	return strings.ReplaceAll(strings.TrimSpace(name), " ", "+")
}

var venueAliases = map[string]string{
	"msg":                   "Madison+Square+Garden",
	"madison square garden": "Madison+Square+Garden",
	"yankee stadium":        "Yankee+Stadium",
	"yankees":               "Yankee+Stadium",
	"citi field":            "Citi+Field",
	"mets":                  "Citi+Field",
	"barclays":              "Barclays+Center",
	"barclays center":       "Barclays+Center",
	"ubs arena":             "UBS+Arena",
	"metlife":               "MetLife+Stadium",
	"metlife stadium":       "MetLife+Stadium",
}
