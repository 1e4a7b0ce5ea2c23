package scraper

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Parser turns raw listing HTML into structured records. It performs no I/O;
// all fragility from the site's markup is isolated here.
type Parser struct {
	site Site
}

// NewParser builds a Parser resolving relative links against site.
func NewParser(site Site) *Parser {
	return &Parser{site: site}
}

var nextLinkPattern = regexp.MustCompile(`(?i)next|›|>>`)

// ParseSections extracts the ordered, deduplicated section list from the
// venue sections page.
func (p *Parser) ParseSections(body []byte) ([]Section, error) {
	doc, err := parseDocument(body)
	if err != nil {
		return nil, err
	}

	var sections []Section
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		m := sectionPathPattern.FindStringSubmatch(href)
		if m == nil {
			return
		}
		id := m[1]
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		name := strings.TrimSpace(sel.Text())
		if name == "" {
			name = id
		}
		sections = append(sections, Section{
			ID:   id,
			Name: name,
			URL:  p.site.Absolute(href),
		})
	})

	if len(sections) == 0 {
		if doc.Find("a[href]").Length() == 0 {
			return nil, unexpectedFormat("sections page has no links")
		}
		return nil, emptyResult("no section links found")
	}
	return sections, nil
}

// ParsePhotoListing extracts the photo candidates on one listing page plus
// the next pagination URL, if any. Duplicate photo IDs within the page
// collapse to the first occurrence.
func (p *Parser) ParsePhotoListing(body []byte, listingURL string) (PhotoListing, error) {
	doc, err := parseDocument(body)
	if err != nil {
		return PhotoListing{}, err
	}

	var listing PhotoListing
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		m := photoPathPattern.FindStringSubmatch(href)
		if m == nil {
			return
		}
		id := m[1]
		if _, dup := seen[id]; dup {
			return
		}
		img := sel.Find("img").First()
		if img.Length() == 0 {
			return
		}
		src, ok := img.Attr("src")
		if !ok || src == "" {
			src, _ = img.Attr("data-src")
		}
		if src == "" {
			return
		}
		seen[id] = struct{}{}
		listing.Photos = append(listing.Photos, Photo{
			ID:           id,
			Section:      m[2],
			Row:          m[3],
			Seat:         m[4],
			ImageURL:     p.site.FullImageURL(src),
			ThumbnailURL: p.site.Absolute(src),
			PageURL:      p.site.Absolute(href),
		})
	})

	listing.NextPage = findNextPage(doc, listingURL)

	if len(listing.Photos) == 0 {
		if doc.Find("a[href]").Length() == 0 && doc.Find("img").Length() == 0 {
			return PhotoListing{}, unexpectedFormat("listing page has no links or images")
		}
		return PhotoListing{}, emptyResult("no photos on listing page")
	}
	return listing, nil
}

// ParsePhotoDetails pulls the optional event name and contributor from a
// photo's own page, plus a better-quality image URL when one is offered.
// Missing details are not an error; the photo passes through unchanged.
func (p *Parser) ParsePhotoDetails(body []byte, photo Photo) (Photo, error) {
	doc, err := parseDocument(body)
	if err != nil {
		return photo, err
	}

	if src := mainImageSrc(doc); src != "" {
		photo.ImageURL = p.site.FullImageURL(src)
	}
	if event := labeledText(doc, "Event:"); event != "" {
		photo.Event = event
	}
	if by := contributorName(doc); by != "" {
		photo.Contributor = by
	}
	return photo, nil
}

// findNextPage resolves pagination links against the listing page URL so
// relative hrefs like "?page=2" land on the right path.
func findNextPage(doc *goquery.Document, listingURL string) string {
	if href, ok := doc.Find(`a[rel="next"]`).First().Attr("href"); ok && href != "" {
		return resolveAgainst(listingURL, href)
	}
	var next string
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if !nextLinkPattern.MatchString(strings.TrimSpace(sel.Text())) {
			return true
		}
		if href, ok := sel.Attr("href"); ok && href != "" {
			next = resolveAgainst(listingURL, href)
			return false
		}
		return true
	})
	return next
}

func resolveAgainst(baseURL, href string) string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func parseDocument(body []byte) (*goquery.Document, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, unexpectedFormat("empty document")
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, unexpectedFormat("parse html: %v", err)
	}
	return doc, nil
}

var mainImagePattern = regexp.MustCompile(`(?i)main|photo|image|full`)

func mainImageSrc(doc *goquery.Document) string {
	var src string
	doc.Find("img").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		id, _ := sel.Attr("id")
		class, _ := sel.Attr("class")
		if !mainImagePattern.MatchString(id) && !mainImagePattern.MatchString(class) {
			return true
		}
		if s, ok := sel.Attr("src"); ok && s != "" {
			src = s
			return false
		}
		if s, ok := sel.Attr("data-src"); ok && s != "" {
			src = s
			return false
		}
		return true
	})
	return src
}

func labeledText(doc *goquery.Document, label string) string {
	var out string
	doc.Find("*").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if sel.Children().Length() > 0 {
			return true
		}
		text := strings.TrimSpace(sel.Text())
		if !strings.HasPrefix(text, label) {
			return true
		}
		out = strings.TrimSpace(strings.TrimPrefix(text, label))
		return false
	})
	return out
}

var contributorPattern = regexp.MustCompile(`(?i)(?:Shared|Posted|Contributed) by\s+(\w+)`)

func contributorName(doc *goquery.Document) string {
	m := contributorPattern.FindStringSubmatch(doc.Text())
	if m == nil {
		return ""
	}
	return m[1]
}
