// Package organizer works with a completed scrape on disk: statistics,
// search, and re-exports (CSV, HTML gallery, flat layout) driven by the
// metadata.json a run leaves at the output root.
package organizer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/avfms/seatview-scraper/internal/scraper"
)

// Entry is one photo as recorded in metadata.json.
type Entry struct {
	scraper.Photo
	Download *scraper.DownloadRecord `json:"download,omitempty"`
}

// Collection is a loaded scrape output directory.
type Collection struct {
	Dir     string
	Venue   string
	Entries []Entry
}

type metadataDoc struct {
	Venue       string  `json:"venue"`
	TotalPhotos int     `json:"total_photos"`
	Sections    int     `json:"sections"`
	Photos      []Entry `json:"photos"`
}

// Load reads a scrape output directory's metadata.json.
func Load(dir string) (*Collection, error) {
	path := filepath.Join(dir, scraper.MetadataFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var doc metadataDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &Collection{Dir: dir, Venue: doc.Venue, Entries: doc.Photos}, nil
}

// Stats aggregates the collection for display.
type Stats struct {
	Venue       string
	Total       int
	Downloaded  int
	Failed      int
	MetaOnly    int
	Sections    []SectionStats
	WithSeat    int
	WithoutSeat int
}

// SectionStats counts one section's photos grouped by row.
type SectionStats struct {
	Section string
	Photos  int
	Rows    []RowStats
}

// RowStats counts one row's photos.
type RowStats struct {
	Row    string
	Photos int
}

// Stats computes per-section and per-row counts in deterministic order.
func (c *Collection) Stats() Stats {
	st := Stats{Venue: c.Venue, Total: len(c.Entries)}

	type rowKey struct{ section, row string }
	rowCounts := make(map[rowKey]int)
	sectionCounts := make(map[string]int)
	for _, e := range c.Entries {
		sectionCounts[e.Section]++
		rowCounts[rowKey{e.Section, displayRow(e.Row)}]++
		if e.Seat != "" {
			st.WithSeat++
		} else {
			st.WithoutSeat++
		}
		switch {
		case e.Download == nil:
			st.MetaOnly++
		case e.Download.Status == scraper.DownloadSucceeded:
			st.Downloaded++
		case e.Download.Status == scraper.DownloadFailed:
			st.Failed++
		}
	}

	sections := make([]string, 0, len(sectionCounts))
	for s := range sectionCounts {
		sections = append(sections, s)
	}
	sort.Strings(sections)

	for _, section := range sections {
		secStats := SectionStats{Section: section, Photos: sectionCounts[section]}
		var rows []string
		for key := range rowCounts {
			if key.section == section {
				rows = append(rows, key.row)
			}
		}
		sort.Strings(rows)
		for _, row := range rows {
			secStats.Rows = append(secStats.Rows, RowStats{
				Row:    row,
				Photos: rowCounts[rowKey{section, row}],
			})
		}
		st.Sections = append(st.Sections, secStats)
	}
	return st
}

// Sections returns the distinct section IDs in sorted order.
func (c *Collection) Sections() []string {
	seen := make(map[string]struct{})
	for _, e := range c.Entries {
		seen[e.Section] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Filter narrows a search; empty fields match everything. Matching is
// case-insensitive and exact per field.
type Filter struct {
	Section string
	Row     string
	Seat    string
}

// Search returns entries matching the filter, in metadata order.
func (c *Collection) Search(f Filter) []Entry {
	var out []Entry
	for _, e := range c.Entries {
		if f.Section != "" && !strings.EqualFold(e.Section, f.Section) {
			continue
		}
		if f.Row != "" && !strings.EqualFold(e.Row, f.Row) {
			continue
		}
		if f.Seat != "" && !strings.EqualFold(e.Seat, f.Seat) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func displayRow(row string) string {
	if row == "" {
		return "unknown"
	}
	return row
}
