// Package scraper implements the seat-view photo pipeline: section discovery,
// photo listing traversal, bounded concurrent downloads, and persistence of the
// aggregated records.
package scraper

import (
	"net/http"
	"time"
)

// Section is one seating section discovered on the venue listing page.
// Sections are immutable once discovered.
type Section struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Photo is one discovered seat-view image with its seating location.
// The photo ID is globally unique across a venue; when the site lists the
// same ID twice the first-discovered record wins.
type Photo struct {
	ID           string    `json:"photo_id"`
	Section      string    `json:"section"`
	Row          string    `json:"row,omitempty"`
	Seat         string    `json:"seat,omitempty"`
	ImageURL     string    `json:"image_url"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	PageURL      string    `json:"page_url"`
	Event        string    `json:"event,omitempty"`
	Contributor  string    `json:"contributor,omitempty"`
	DiscoveredAt time.Time `json:"-"`
}

// DownloadStatus is the terminal (or pending) state of one download attempt
// sequence.
type DownloadStatus string

// Download record states.
const (
	DownloadPending   DownloadStatus = "pending"
	DownloadSucceeded DownloadStatus = "succeeded"
	DownloadFailed    DownloadStatus = "failed"
)

// DownloadRecord tracks the lifecycle of one photo download. It is created
// when the photo is queued, mutated on each attempt, and terminal on success
// or exhausted retries. LastAttempt is kept out of metadata.json so re-runs
// over an unchanged dataset stay byte-identical.
type DownloadRecord struct {
	PhotoID     string         `json:"photo_id"`
	LocalPath   string         `json:"local_path,omitempty"`
	Status      DownloadStatus `json:"status"`
	Bytes       int64          `json:"bytes,omitempty"`
	Checksum    string         `json:"checksum,omitempty"`
	Attempts    int            `json:"attempts,omitempty"`
	Error       string         `json:"error,omitempty"`
	LastAttempt time.Time      `json:"-"`
}

// Counters aggregates per-run totals reported in the final summary.
type Counters struct {
	Discovered int `json:"discovered"`
	Downloaded int `json:"downloaded"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// Stage identifies where the pipeline currently is in its run.
type Stage string

// Pipeline stages in execution order, plus the Failed terminal state.
const (
	StageInit             Stage = "init"
	StageDiscoverSections Stage = "discover_sections"
	StageDiscoverPhotos   Stage = "discover_photos"
	StageDownload         Stage = "download"
	StagePersist          Stage = "persist"
	StageDone             Stage = "done"
	StageFailed           Stage = "failed"
)

// Session captures one scrape run: the venue being collected, where output
// goes, and the running counters. The pipeline is the only writer.
type Session struct {
	ID        string
	Venue     string
	OutputDir string
	StartedAt time.Time
	Counters  Counters
	Stage     Stage
}

// Result pairs a photo with the outcome of its download, ordered and
// deduplicated. This is the pipeline's contract to the persistence layer.
type Result struct {
	Photo    Photo           `json:"photo"`
	Download *DownloadRecord `json:"download,omitempty"`
}

// Page is the raw outcome of one fetched URL.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Attempts   int
	Duration   time.Duration
	Rendered   bool
}

// PhotoListing is the parse result for one photo listing page: the photo
// candidates it contains plus the next pagination URL, empty when the listing
// is exhausted.
type PhotoListing struct {
	Photos   []Photo
	NextPage string
}
