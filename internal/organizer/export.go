package organizer

import (
	"encoding/csv"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/avfms/seatview-scraper/internal/scraper"
)

// WriteCSV emits one line per photo: location, URLs, and download outcome.
func (c *Collection) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	header := []string{"photo_id", "section", "row", "seat", "image_url", "page_url", "event", "contributor", "status", "local_path", "bytes"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, e := range c.Entries {
		status, localPath, bytes := "", "", ""
		if e.Download != nil {
			status = string(e.Download.Status)
			localPath = e.Download.LocalPath
			if e.Download.Bytes > 0 {
				bytes = strconv.FormatInt(e.Download.Bytes, 10)
			}
		}
		record := []string{
			e.ID, e.Section, e.Row, e.Seat,
			e.ImageURL, e.PageURL, e.Event, e.Contributor,
			status, localPath, bytes,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row for %s: %w", e.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// Tree prints the section/row hierarchy with per-row photo counts.
func (c *Collection) Tree(w io.Writer) error {
	stats := c.Stats()
	if _, err := fmt.Fprintf(w, "%s (%d photos)\n", c.Venue, stats.Total); err != nil {
		return fmt.Errorf("write tree: %w", err)
	}
	for i, sec := range stats.Sections {
		branch, indent := "├──", "│   "
		if i == len(stats.Sections)-1 {
			branch, indent = "└──", "    "
		}
		if _, err := fmt.Fprintf(w, "%s section %s (%d)\n", branch, sec.Section, sec.Photos); err != nil {
			return fmt.Errorf("write tree: %w", err)
		}
		for j, row := range sec.Rows {
			rowBranch := "├──"
			if j == len(sec.Rows)-1 {
				rowBranch = "└──"
			}
			if _, err := fmt.Fprintf(w, "%s%s row %s (%d)\n", indent, rowBranch, row.Row, row.Photos); err != nil {
				return fmt.Errorf("write tree: %w", err)
			}
		}
	}
	return nil
}

var galleryTemplate = template.Must(template.New("gallery").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Venue}} seat views</title>
<style>
body { font-family: sans-serif; margin: 2rem; background: #fafafa; }
h1 { margin-bottom: 0; }
.count { color: #666; margin-top: 0.25rem; }
h2 { margin-top: 2rem; border-bottom: 1px solid #ddd; padding-bottom: 0.25rem; }
.grid { display: grid; grid-template-columns: repeat(auto-fill, minmax(220px, 1fr)); gap: 1rem; }
.card { background: #fff; border: 1px solid #e0e0e0; border-radius: 6px; padding: 0.5rem; }
.card img { width: 100%; height: 160px; object-fit: cover; border-radius: 4px; }
.card .loc { font-size: 0.85rem; color: #333; margin-top: 0.5rem; }
</style>
</head>
<body>
<h1>{{.Venue}}</h1>
<p class="count">{{.Total}} photos across {{len .Sections}} sections</p>
{{range .Sections}}
<h2>Section {{.Section}}</h2>
<div class="grid">
{{range .Photos}}
<div class="card">
<a href="{{.Href}}"><img src="{{.Href}}" alt="Section {{.Section}} row {{.Row}}" loading="lazy"></a>
<div class="loc">Row {{.Row}}{{if .Seat}}, seat {{.Seat}}{{end}}</div>
</div>
{{end}}
</div>
{{end}}
</body>
</html>
`))

type galleryPhoto struct {
	Href    string
	Section string
	Row     string
	Seat    string
}

type gallerySection struct {
	Section string
	Photos  []galleryPhoto
}

type galleryData struct {
	Venue    string
	Total    int
	Sections []gallerySection
}

// WriteGallery renders a static HTML gallery next to the downloaded images.
// Cards link to local files when the download succeeded, remote URLs
// otherwise.
func (c *Collection) WriteGallery(path string) error {
	data := galleryData{Venue: c.Venue, Total: len(c.Entries)}

	bySection := make(map[string][]galleryPhoto)
	for _, e := range c.Entries {
		href := e.ImageURL
		if e.Download != nil && e.Download.Status == scraper.DownloadSucceeded && e.Download.LocalPath != "" {
			if rel, err := filepath.Rel(filepath.Dir(path), e.Download.LocalPath); err == nil {
				href = filepath.ToSlash(rel)
			}
		}
		bySection[e.Section] = append(bySection[e.Section], galleryPhoto{
			Href:    href,
			Section: e.Section,
			Row:     displayRow(e.Row),
			Seat:    e.Seat,
		})
	}
	for _, section := range c.Sections() {
		data.Sections = append(data.Sections, gallerySection{
			Section: section,
			Photos:  bySection[section],
		})
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create gallery %s: %w", path, err)
	}
	if err := galleryTemplate.Execute(f, data); err != nil {
		_ = f.Close()
		return fmt.Errorf("render gallery: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close gallery: %w", err)
	}
	return nil
}

// Flatten copies every downloaded image into dest as a single flat directory.
// Filenames already encode section/row/seat so nothing is lost.
func (c *Collection) Flatten(dest string, logger *zap.Logger) (int, error) {
	if err := os.MkdirAll(dest, 0o750); err != nil {
		return 0, fmt.Errorf("create flat dir %s: %w", dest, err)
	}
	copied := 0
	for _, e := range c.Entries {
		if e.Download == nil || e.Download.Status != scraper.DownloadSucceeded || e.Download.LocalPath == "" {
			continue
		}
		src := e.Download.LocalPath
		target := filepath.Join(dest, filepath.Base(src))
		if err := copyFile(src, target); err != nil {
			logger.Warn("flatten copy failed",
				zap.String("photo_id", e.ID),
				zap.Error(err),
			)
			continue
		}
		copied++
	}
	return copied, nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy to %s: %w", dest, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dest, err)
	}
	return nil
}
