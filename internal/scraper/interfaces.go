package scraper

import (
	"context"
	"time"
)

// Fetcher retrieves a URL, applying pacing and transient-failure retries
// internally. Errors are always *FetchError.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (Page, error)
}

// Renderer fetches a page through a real browser. Used as the fallback
// strategy when the plain fetcher is blocked.
type Renderer interface {
	Render(ctx context.Context, rawURL string) (Page, error)
	Close(ctx context.Context) error
}

// RetryPolicy decides whether a failed attempt is worth repeating and how
// long to wait before it.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// Pacer injects the mandatory delay before each outbound request. Passed
// explicitly into the fetcher so no package-level timer state exists.
type Pacer interface {
	Wait(ctx context.Context) error
}

// ResumeStore is the cross-run set of already-downloaded photos. Only the
// pipeline mutates it; download workers report outcomes back and the pipeline
// performs the single authoritative update.
type ResumeStore interface {
	Known(photoID string) bool
	Record(photoID string, rec DownloadRecord) error
	Get(photoID string) (DownloadRecord, bool)
}

// Sink persists pipeline output: image bytes into the section/row layout and
// the metadata/summary artifacts at the end of a run.
type Sink interface {
	ImagePath(photo Photo) string
	SaveImage(ctx context.Context, photo Photo, body []byte) (string, int64, error)
	SaveMetadata(ctx context.Context, session Session, results []Result) error
	SaveSummary(ctx context.Context, results []Result) error
}

// Clock returns the current time (swappable for tests).
type Clock interface {
	Now() time.Time
}
