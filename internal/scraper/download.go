package scraper

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"go.uber.org/zap"

	"github.com/avfms/seatview-scraper/internal/metrics"
)

// Downloader fetches one photo's image bytes and lands them in the sink. It
// never mutates shared state; outcomes travel back to the pipeline as
// DownloadRecords.
type Downloader struct {
	fetcher Fetcher
	sink    Sink
	clock   Clock
	logger  *zap.Logger
}

// NewDownloader constructs a Downloader.
func NewDownloader(fetcher Fetcher, sink Sink, clock Clock, logger *zap.Logger) *Downloader {
	return &Downloader{fetcher: fetcher, sink: sink, clock: clock, logger: logger}
}

// Download retrieves photo's image and writes it to disk. The returned record
// is terminal: succeeded, or failed with the classified error recorded.
func (d *Downloader) Download(ctx context.Context, photo Photo) DownloadRecord {
	rec := DownloadRecord{
		PhotoID:     photo.ID,
		Status:      DownloadPending,
		LastAttempt: d.clock.Now(),
	}

	page, err := d.fetcher.Fetch(ctx, photo.ImageURL)
	if err != nil {
		metrics.ObserveFetch("image", string(FetchKindOf(err)), 0)
		var fe *FetchError
		if errors.As(err, &fe) {
			rec.Attempts = fe.Attempts
		}
		rec.Status = DownloadFailed
		rec.Error = err.Error()
		rec.LastAttempt = d.clock.Now()
		d.logger.Warn("image download failed",
			zap.String("photo_id", photo.ID),
			zap.String("url", photo.ImageURL),
			zap.Error(err),
		)
		return rec
	}

	metrics.ObserveFetch("image", "ok", page.Duration)
	rec.Attempts = page.Attempts
	path, size, err := d.sink.SaveImage(ctx, photo, page.Body)
	if err != nil {
		rec.Status = DownloadFailed
		rec.Error = err.Error()
		rec.LastAttempt = d.clock.Now()
		d.logger.Error("image write failed",
			zap.String("photo_id", photo.ID),
			zap.Error(err),
		)
		return rec
	}

	rec.Status = DownloadSucceeded
	rec.LocalPath = path
	rec.Bytes = size
	rec.Checksum = contentDigest(page.Body)
	rec.Error = ""
	rec.LastAttempt = d.clock.Now()
	return rec
}

// contentDigest is the hex SHA-256 of the image bytes, recorded so a
// collection can be audited for corruption after the fact.
func contentDigest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
