package scraper

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const testBase = "https://example.test"

func newTestParser() *Parser {
	return NewParser(Site{BaseURL: testBase})
}

func TestParseSections(t *testing.T) {
	t.Parallel()

	body := []byte(`
<html><body>
<a href="/about">About</a>
<a href="/venue/The+Garden/section-101/">Section 101</a>
<a href="/venue/The+Garden/section-102/">Section 102</a>
<a href="/venue/The+Garden/section-101/">Section 101 again</a>
<a href="/venue/The+Garden/section-floor-a/"></a>
</body></html>`)

	sections, err := newTestParser().ParseSections(body)
	require.NoError(t, err)
	require.Len(t, sections, 3)

	require.Equal(t, "101", sections[0].ID)
	require.Equal(t, "Section 101", sections[0].Name)
	require.Equal(t, testBase+"/venue/The+Garden/section-101/", sections[0].URL)

	require.Equal(t, "102", sections[1].ID)

	// Anchor with no text falls back to the section ID.
	require.Equal(t, "floor-a", sections[2].ID)
	require.Equal(t, "floor-a", sections[2].Name)
}

func TestParseSectionsEmptyVsUnexpected(t *testing.T) {
	t.Parallel()

	// Links exist but none are section links: legitimately empty.
	_, err := newTestParser().ParseSections([]byte(`<html><body><a href="/faq">FAQ</a></body></html>`))
	require.True(t, IsEmptyResult(err), "got %v", err)

	// No links at all: the page is not what we expect.
	_, err = newTestParser().ParseSections([]byte(`<html><body><p>maintenance</p></body></html>`))
	require.True(t, IsUnexpectedFormat(err), "got %v", err)

	_, err = newTestParser().ParseSections(nil)
	require.True(t, IsUnexpectedFormat(err), "got %v", err)
}

func TestParsePhotoListing(t *testing.T) {
	t.Parallel()

	body := []byte(`
<html><body>
<a href="/photo/1001/view/section-101/row-5/seat-12/"><img src="/thumbs/1001_thumb.jpg"></a>
<a href="/photo/1002/view/section-101/row-5/"><img data-src="/thumbs/1002_thumb.jpg"></a>
<a href="/photo/1001/view/section-101/row-5/seat-12/"><img src="/thumbs/dup.jpg"></a>
<a href="/photo/1003/view/section-101/row-6/seat-2/">no image inside</a>
<a href="?page=2">Next</a>
</body></html>`)

	listing, err := newTestParser().ParsePhotoListing(body, testBase+"/venue/V/section-101/")
	require.NoError(t, err)
	require.Len(t, listing.Photos, 2, "duplicate and image-less anchors are dropped")

	first := listing.Photos[0]
	require.Equal(t, "1001", first.ID)
	require.Equal(t, "101", first.Section)
	require.Equal(t, "5", first.Row)
	require.Equal(t, "12", first.Seat)
	require.Equal(t, testBase+"/photos/1001.jpg", first.ImageURL, "thumbnail rewritten to full size")
	require.Equal(t, testBase+"/thumbs/1001_thumb.jpg", first.ThumbnailURL)
	require.Equal(t, testBase+"/photo/1001/view/section-101/row-5/seat-12/", first.PageURL)

	second := listing.Photos[1]
	require.Equal(t, "1002", second.ID)
	require.Empty(t, second.Seat, "row-level photo has no seat")
	require.Equal(t, testBase+"/photos/1002.jpg", second.ImageURL, "data-src fallback used")

	require.Equal(t, testBase+"/venue/V/section-101/?page=2", listing.NextPage)
}

func TestParsePhotoListingPaginationRelNext(t *testing.T) {
	t.Parallel()

	body := []byte(`
<html><body>
<a href="/photo/1/v/section-1/row-1/"><img src="/i/1.jpg"></a>
<a rel="next" href="/venue/V/section-1/?page=3">3</a>
<a href="/venue/V/section-1/?page=9">Next</a>
</body></html>`)

	listing, err := newTestParser().ParsePhotoListing(body, testBase+"/venue/V/section-1/")
	require.NoError(t, err)
	require.Equal(t, testBase+"/venue/V/section-1/?page=3", listing.NextPage, "rel=next wins over link text")
}

func TestParsePhotoListingLastPage(t *testing.T) {
	t.Parallel()

	body := []byte(`
<html><body>
<a href="/photo/1/v/section-1/row-1/"><img src="/i/1.jpg"></a>
<a href="/venue/V/section-1/">1</a>
</body></html>`)

	listing, err := newTestParser().ParsePhotoListing(body, testBase+"/venue/V/section-1/")
	require.NoError(t, err)
	require.Empty(t, listing.NextPage)
}

func TestParsePhotoListingEmptyVsUnexpected(t *testing.T) {
	t.Parallel()

	p := newTestParser()

	_, err := p.ParsePhotoListing([]byte(`<html><body><a href="/x">x</a></body></html>`), testBase)
	require.True(t, IsEmptyResult(err), "got %v", err)

	_, err = p.ParsePhotoListing([]byte(`<html><body><p>nothing here</p></body></html>`), testBase)
	require.True(t, IsUnexpectedFormat(err), "got %v", err)
}

func TestParsePhotoDetails(t *testing.T) {
	t.Parallel()

	body := []byte(`
<html><body>
<img id="main-photo" src="/large/1001.jpg">
<span>Event: Rangers vs Islanders</span>
<div>Shared by skyler42</div>
</body></html>`)

	photo := Photo{ID: "1001", ImageURL: testBase + "/photos/old.jpg"}
	got, err := newTestParser().ParsePhotoDetails(body, photo)
	require.NoError(t, err)
	require.Equal(t, testBase+"/large/1001.jpg", got.ImageURL)
	require.Equal(t, "Rangers vs Islanders", got.Event)
	require.Equal(t, "skyler42", got.Contributor)
}

func TestParsePhotoDetailsMissingFields(t *testing.T) {
	t.Parallel()

	photo := Photo{ID: "1", ImageURL: "https://x.test/1.jpg", Event: ""}
	got, err := newTestParser().ParsePhotoDetails([]byte(`<html><body><p>bare page</p></body></html>`), photo)
	require.NoError(t, err)
	require.Equal(t, photo, got, "missing details leave the photo unchanged")
}
