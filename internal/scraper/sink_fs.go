package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// Artifact filenames written at the output root.
const (
	MetadataFile = "metadata.json"
	SummaryFile  = "summary_by_section.json"
)

var invalidFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// FileSystemSink writes images into the section/row directory layout and the
// metadata/summary artifacts at the output root. Images are written to a
// temporary file and renamed so failed downloads never leave partial files.
type FileSystemSink struct {
	root   string
	logger *zap.Logger
}

// NewFileSystemSink returns a sink rooted at dir, creating it if needed.
func NewFileSystemSink(root string, logger *zap.Logger) (*FileSystemSink, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", root, err)
	}
	return &FileSystemSink{root: root, logger: logger}, nil
}

// Root returns the output root directory.
func (s *FileSystemSink) Root() string { return s.root }

// ImagePath is the target path for a photo's image file, relative layout
// section_<id>/row_<label>/section_<id>_row_<label>[_seat_<label>]_<id><ext>.
func (s *FileSystemSink) ImagePath(photo Photo) string {
	sectionDir := "section_" + safeLabel(photo.Section)
	rowDir := "row_unknown"
	if photo.Row != "" {
		rowDir = "row_" + safeLabel(photo.Row)
	}

	parts := []string{sectionDir, rowDir}
	if photo.Seat != "" {
		parts = append(parts, "seat_"+safeLabel(photo.Seat))
	}
	name := strings.Join(parts, "_") + "_" + safeLabel(photo.ID) + imageExt(photo.ImageURL)
	return filepath.Join(s.root, sectionDir, rowDir, name)
}

// SaveImage writes the image bytes for photo and returns the final path and
// size. The write goes through a temp file in the target directory followed
// by an atomic rename.
func (s *FileSystemSink) SaveImage(ctx context.Context, photo Photo, body []byte) (string, int64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, fmt.Errorf("context canceled: %w", err)
	}
	if len(body) == 0 {
		return "", 0, fmt.Errorf("empty image body for photo %s", photo.ID)
	}
	target := s.ImagePath(photo)
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return "", 0, fmt.Errorf("create image dir for %s: %w", target, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".tmp*")
	if err != nil {
		return "", 0, fmt.Errorf("create temp file for %s: %w", target, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", 0, fmt.Errorf("write image %s: %w", target, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", 0, fmt.Errorf("close temp file %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return "", 0, fmt.Errorf("rename image into place %s: %w", target, err)
	}
	return target, int64(len(body)), nil
}

type metadataEntry struct {
	Photo
	Download *DownloadRecord `json:"download,omitempty"`
}

type metadataDocument struct {
	Venue       string          `json:"venue"`
	TotalPhotos int             `json:"total_photos"`
	Sections    int             `json:"sections"`
	Photos      []metadataEntry `json:"photos"`
}

// SaveMetadata writes metadata.json: the full, ordered photo list with each
// photo's download outcome. Content is stable across runs over an unchanged
// dataset.
func (s *FileSystemSink) SaveMetadata(ctx context.Context, session Session, results []Result) error {
	doc := metadataDocument{
		Venue:       session.Venue,
		TotalPhotos: len(results),
		Photos:      make([]metadataEntry, 0, len(results)),
	}
	sections := make(map[string]struct{})
	for _, res := range results {
		sections[res.Photo.Section] = struct{}{}
		doc.Photos = append(doc.Photos, metadataEntry{Photo: res.Photo, Download: res.Download})
	}
	doc.Sections = len(sections)

	return s.writeJSON(ctx, filepath.Join(s.root, MetadataFile), doc)
}

type summaryPhoto struct {
	PhotoID  string `json:"photo_id"`
	Seat     string `json:"seat,omitempty"`
	ImageURL string `json:"image_url"`
}

type summarySection struct {
	Rows map[string][]summaryPhoto `json:"rows"`
}

// SaveSummary writes summary_by_section.json: section -> row -> photo list.
func (s *FileSystemSink) SaveSummary(ctx context.Context, results []Result) error {
	summary := make(map[string]summarySection)
	for _, res := range results {
		p := res.Photo
		sec, ok := summary[p.Section]
		if !ok {
			sec = summarySection{Rows: make(map[string][]summaryPhoto)}
		}
		row := p.Row
		if row == "" {
			row = "unknown"
		}
		sec.Rows[row] = append(sec.Rows[row], summaryPhoto{
			PhotoID:  p.ID,
			Seat:     p.Seat,
			ImageURL: p.ImageURL,
		})
		summary[p.Section] = sec
	}
	return s.writeJSON(ctx, filepath.Join(s.root, SummaryFile), summary)
}

func (s *FileSystemSink) writeJSON(ctx context.Context, target string, payload any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(target), err)
	}
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s into place: %w", target, err)
	}
	s.logger.Debug("wrote artifact", zap.String("path", target), zap.Int("bytes", len(data)))
	return nil
}

func safeLabel(raw string) string {
	out := invalidFilenameChars.ReplaceAllString(raw, "_")
	out = strings.Trim(out, "_")
	if out == "" {
		return "unknown"
	}
	return out
}

func imageExt(imageURL string) string {
	u, err := url.Parse(imageURL)
	if err != nil {
		return ".jpg"
	}
	ext := strings.ToLower(path.Ext(u.Path))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return ext
	default:
		return ".jpg"
	}
}
