package scraper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/avfms/seatview-scraper/internal/metrics"
)

// ErrBlocked is returned from Run when the site refuses the scraper and no
// fallback strategy is available. The caller should suggest enabling the
// headless mode rather than retrying blindly.
var ErrBlocked = errors.New("blocked by site: switch strategy (enable headless fallback) and retry")

// PipelineConfig holds the per-run knobs of the orchestrator.
type PipelineConfig struct {
	Venue                string
	BaseURL              string
	Concurrency          int
	MaxSections          int
	MaxPhotosPerSection  int
	MaxPagesPerSection   int
	SkipDownload         bool
	FetchDetails         bool
	FormatErrorThreshold int
}

func (c *PipelineConfig) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.MaxPagesPerSection <= 0 {
		c.MaxPagesPerSection = 50
	}
	if c.FormatErrorThreshold <= 0 {
		c.FormatErrorThreshold = 3
	}
}

// RunSummary is the user-visible outcome of one pipeline run.
type RunSummary struct {
	SessionID string        `json:"session_id"`
	Venue     string        `json:"venue"`
	Stage     Stage         `json:"stage"`
	Sections  int           `json:"sections"`
	Counters  Counters      `json:"counters"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Pipeline drives a scrape run: section discovery, per-section photo
// discovery, bounded concurrent downloads, and persistence. It owns the
// in-memory photo set and is the single writer to the resume store and the
// session counters; workers only report outcomes back.
type Pipeline struct {
	cfg        PipelineConfig
	site       Site
	fetcher    Fetcher
	renderer   Renderer
	parser     *Parser
	downloader *Downloader
	store      ResumeStore
	sink       Sink
	clock      Clock
	logger     *zap.Logger
	pool       *workerPool

	mu      sync.Mutex
	session Session
}

// NewPipeline wires the orchestrator. renderer may be nil when the headless
// fallback is disabled.
func NewPipeline(
	cfg PipelineConfig,
	fetcher Fetcher,
	renderer Renderer,
	store ResumeStore,
	sink Sink,
	clock Clock,
	logger *zap.Logger,
) *Pipeline {
	cfg.applyDefaults()
	metrics.Init()
	site := Site{BaseURL: cfg.BaseURL}
	return &Pipeline{
		cfg:        cfg,
		site:       site,
		fetcher:    fetcher,
		renderer:   renderer,
		parser:     NewParser(site),
		downloader: NewDownloader(fetcher, sink, clock, logger),
		store:      store,
		sink:       sink,
		clock:      clock,
		logger:     logger,
		pool:       newWorkerPool(cfg.Concurrency),
	}
}

// Snapshot returns the current session state for progress reporting.
func (p *Pipeline) Snapshot() Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

func (p *Pipeline) setStage(stage Stage) {
	p.mu.Lock()
	p.session.Stage = stage
	p.mu.Unlock()
	p.logger.Info("pipeline stage", zap.String("stage", string(stage)))
}

func (p *Pipeline) addCounters(delta Counters) {
	p.mu.Lock()
	p.session.Counters.Discovered += delta.Discovered
	p.session.Counters.Downloaded += delta.Downloaded
	p.session.Counters.Skipped += delta.Skipped
	p.session.Counters.Failed += delta.Failed
	p.mu.Unlock()
}

// Run executes the full pipeline. It returns a summary in every case; the
// error is non-nil only when the run reached the Failed terminal state.
func (p *Pipeline) Run(ctx context.Context) (RunSummary, error) {
	start := p.clock.Now()
	p.mu.Lock()
	p.session = Session{
		ID:        uuid.NewString(),
		Venue:     p.cfg.Venue,
		StartedAt: start,
		Stage:     StageInit,
	}
	p.mu.Unlock()

	summary := func(stage Stage, sections int) RunSummary {
		snap := p.Snapshot()
		return RunSummary{
			SessionID: snap.ID,
			Venue:     snap.Venue,
			Stage:     stage,
			Sections:  sections,
			Counters:  snap.Counters,
			Elapsed:   p.clock.Now().Sub(start),
		}
	}

	sections, err := p.discoverSections(ctx)
	if err != nil {
		p.setStage(StageFailed)
		return summary(StageFailed, 0), err
	}

	// An abort (user interrupt) drains in-flight work and still aggregates
	// and persists whatever completed; runErr keeps the run non-zero.
	photos, runErr := p.discoverPhotos(ctx, sections)
	if runErr != nil && len(photos) == 0 {
		p.setStage(StageFailed)
		return summary(StageFailed, len(sections)), runErr
	}
	p.addCounters(Counters{Discovered: len(photos)})
	for range photos {
		metrics.CountPhoto("discovered")
	}

	if runErr == nil && p.cfg.FetchDetails {
		p.enrichDetails(ctx, photos)
	}

	var results []Result
	if runErr == nil {
		results, runErr = p.download(ctx, photos)
	} else {
		results = make([]Result, len(photos))
		for i, photo := range photos {
			results[i] = Result{Photo: photo}
		}
	}

	p.setStage(StagePersist)
	sortResults(results)
	if err := p.persist(context.WithoutCancel(ctx), results); err != nil {
		p.setStage(StageFailed)
		return summary(StageFailed, len(sections)), fmt.Errorf("persist: %w", err)
	}

	if runErr != nil {
		p.setStage(StageFailed)
		return summary(StageFailed, len(sections)), runErr
	}
	p.setStage(StageDone)
	return summary(StageDone, len(sections)), nil
}

func (p *Pipeline) discoverSections(ctx context.Context) ([]Section, error) {
	p.setStage(StageDiscoverSections)

	url := p.site.SectionsURL(p.cfg.Venue)
	page, err := p.fetchPage(ctx, url, "listing")
	if err != nil {
		if IsBlocked(err) && p.renderer == nil {
			return nil, fmt.Errorf("%w: %v", ErrBlocked, err)
		}
		return nil, fmt.Errorf("discover sections: %w", err)
	}

	sections, err := p.parser.ParseSections(page.Body)
	switch {
	case err == nil:
	case IsEmptyResult(err):
		p.logger.Warn("venue has no sections", zap.String("venue", p.cfg.Venue))
		return nil, nil
	default:
		return nil, fmt.Errorf("discover sections: %w", err)
	}

	if p.cfg.MaxSections > 0 && len(sections) > p.cfg.MaxSections {
		p.logger.Info("truncating section list",
			zap.Int("found", len(sections)),
			zap.Int("cap", p.cfg.MaxSections),
		)
		sections = sections[:p.cfg.MaxSections]
	}
	p.logger.Info("sections discovered", zap.Int("count", len(sections)))
	return sections, nil
}

type sectionOutcome struct {
	photos          []Photo
	incompleteAfter bool
	err             error
}

func (p *Pipeline) discoverPhotos(ctx context.Context, sections []Section) ([]Photo, error) {
	p.setStage(StageDiscoverPhotos)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var abort abortState
	outcomes := make([]sectionOutcome, len(sections))
	p.pool.run(runCtx, len(sections), func(taskCtx context.Context, i int) {
		outcomes[i] = p.collectSection(taskCtx, sections[i])
		if IsBlocked(outcomes[i].err) && p.renderer == nil {
			abort.set(ErrBlocked)
			cancel()
		}
	})
	if err := abort.get(); err != nil {
		return nil, err
	}

	// Merge in section (admission) order so the first-discovered duplicate
	// wins deterministically regardless of completion order.
	var photos []Photo
	seen := make(map[string]struct{})
	formatErrors := 0
	incomplete := 0
	for i, out := range outcomes {
		if out.incompleteAfter {
			incomplete++
		}
		if out.err != nil {
			if IsUnexpectedFormat(out.err) {
				formatErrors++
				p.logger.Warn("section incomplete: unexpected page format",
					zap.String("section", sections[i].ID),
					zap.Error(out.err),
				)
				if formatErrors >= p.cfg.FormatErrorThreshold {
					return nil, fmt.Errorf("site structure changed: %d sections unparseable: %w",
						formatErrors, out.err)
				}
				continue
			}
			if IsBlocked(out.err) {
				return nil, ErrBlocked
			}
			p.logger.Warn("section discovery failed",
				zap.String("section", sections[i].ID),
				zap.Error(out.err),
			)
			continue
		}
		for _, photo := range out.photos {
			if _, dup := seen[photo.ID]; dup {
				continue
			}
			seen[photo.ID] = struct{}{}
			photos = append(photos, photo)
		}
	}
	p.logger.Info("photos discovered",
		zap.Int("count", len(photos)),
		zap.Int("incomplete_sections", incomplete),
	)
	if err := ctx.Err(); err != nil {
		// Completed sections survive; the caller persists them and
		// reports the canceled run.
		return photos, fmt.Errorf("discovery canceled: %w", err)
	}
	return photos, nil
}

// enrichDetails visits each photo's own page for the event name, contributor,
// and a better-quality image URL. Detail pages are optional flavor: a failed
// or unparseable page leaves the listing-derived photo untouched.
func (p *Pipeline) enrichDetails(ctx context.Context, photos []Photo) {
	p.pool.run(ctx, len(photos), func(taskCtx context.Context, i int) {
		if photos[i].PageURL == "" {
			return
		}
		page, err := p.fetchPage(taskCtx, photos[i].PageURL, "detail")
		if err != nil {
			p.logger.Debug("photo detail fetch failed",
				zap.String("photo_id", photos[i].ID),
				zap.Error(err),
			)
			return
		}
		enriched, err := p.parser.ParsePhotoDetails(page.Body, photos[i])
		if err != nil {
			return
		}
		photos[i] = enriched
	})
}

// collectSection walks one section's listing pages until the pagination is
// exhausted or a cap is hit.
func (p *Pipeline) collectSection(ctx context.Context, section Section) sectionOutcome {
	var photos []Photo
	pageURL := section.URL
	for pageNum := 1; pageNum <= p.cfg.MaxPagesPerSection; pageNum++ {
		page, err := p.fetchPage(ctx, pageURL, "listing")
		if err != nil {
			// Results from earlier pages are kept; the section is
			// just incomplete.
			if len(photos) > 0 && !IsBlocked(err) {
				p.logger.Warn("pagination stopped early",
					zap.String("section", section.ID),
					zap.Int("page", pageNum),
					zap.Error(err),
				)
				return sectionOutcome{photos: photos, incompleteAfter: true}
			}
			return sectionOutcome{err: err}
		}

		listing, err := p.parser.ParsePhotoListing(page.Body, pageURL)
		if err != nil {
			if IsEmptyResult(err) {
				break
			}
			if len(photos) > 0 {
				return sectionOutcome{photos: photos, incompleteAfter: true}
			}
			return sectionOutcome{err: err}
		}

		now := p.clock.Now()
		for i := range listing.Photos {
			listing.Photos[i].DiscoveredAt = now
		}
		photos = append(photos, listing.Photos...)
		p.logger.Debug("listing page parsed",
			zap.String("section", section.ID),
			zap.Int("page", pageNum),
			zap.Int("photos", len(listing.Photos)),
		)

		if p.cfg.MaxPhotosPerSection > 0 && len(photos) >= p.cfg.MaxPhotosPerSection {
			photos = photos[:p.cfg.MaxPhotosPerSection]
			break
		}
		if listing.NextPage == "" || listing.NextPage == pageURL {
			break
		}
		pageURL = listing.NextPage
	}
	return sectionOutcome{photos: photos}
}

func (p *Pipeline) download(ctx context.Context, photos []Photo) ([]Result, error) {
	results := make([]Result, len(photos))
	for i, photo := range photos {
		results[i] = Result{Photo: photo}
	}
	if p.cfg.SkipDownload {
		p.logger.Info("skip-download mode: metadata only")
		return results, nil
	}

	p.setStage(StageDownload)

	// Resolve resume decisions up front; only unknown or missing photos
	// reach the worker pool.
	var pending []int
	for i, photo := range photos {
		if prior, ok := p.resumeRecord(photo); ok {
			results[i].Download = &prior
			p.addCounters(Counters{Skipped: 1})
			metrics.CountPhoto("skipped")
			continue
		}
		pending = append(pending, i)
	}

	p.pool.run(ctx, len(pending), func(taskCtx context.Context, j int) {
		idx := pending[j]
		metrics.DownloadStarted()
		defer metrics.DownloadFinished()
		rec := p.downloader.Download(taskCtx, photos[idx])
		results[idx].Download = &rec
	})

	var runErr error
	if err := ctx.Err(); err != nil {
		// Drained workers have already reported; their outcomes are
		// recorded below and persisted by the caller.
		runErr = fmt.Errorf("download canceled: %w", err)
	}

	// Single authoritative update pass: counters and the resume store are
	// only touched here, after workers have reported back.
	for _, j := range pending {
		rec := results[j].Download
		if rec == nil {
			continue
		}
		switch rec.Status {
		case DownloadSucceeded:
			p.addCounters(Counters{Downloaded: 1})
			metrics.CountPhoto("downloaded")
			if err := p.store.Record(results[j].Photo.ID, *rec); err != nil {
				p.logger.Warn("resume store update failed",
					zap.String("photo_id", results[j].Photo.ID),
					zap.Error(err),
				)
			}
		case DownloadFailed:
			p.addCounters(Counters{Failed: 1})
			metrics.CountPhoto("failed")
		}
	}
	return results, runErr
}

// resumeRecord returns the prior run's record when the photo is already known
// and its file still exists on disk.
func (p *Pipeline) resumeRecord(photo Photo) (DownloadRecord, bool) {
	if !p.store.Known(photo.ID) {
		return DownloadRecord{}, false
	}
	prior, ok := p.store.Get(photo.ID)
	if !ok {
		return DownloadRecord{}, false
	}
	path := prior.LocalPath
	if path == "" {
		path = p.sink.ImagePath(photo)
	}
	if _, err := os.Stat(path); err != nil {
		return DownloadRecord{}, false
	}
	prior.LocalPath = path
	return prior, true
}

func (p *Pipeline) persist(ctx context.Context, results []Result) error {
	session := p.Snapshot()
	if err := p.sink.SaveMetadata(ctx, session, results); err != nil {
		return err
	}
	return p.sink.SaveSummary(ctx, results)
}

// fetchPage retrieves an HTML page, promoting to the headless renderer when
// the plain fetcher is blocked and a renderer is available. kind labels the
// fetch metrics (listing, detail).
func (p *Pipeline) fetchPage(ctx context.Context, url, kind string) (Page, error) {
	page, err := p.fetcher.Fetch(ctx, url)
	if err == nil {
		metrics.ObserveFetch(kind, "ok", page.Duration)
		return page, nil
	}
	if !IsBlocked(err) || p.renderer == nil {
		metrics.ObserveFetch(kind, string(FetchKindOf(err)), 0)
		return Page{}, err
	}

	p.logger.Warn("blocked; promoting to headless fetch", zap.String("url", url))
	metrics.CountHeadlessFallback()
	page, rerr := p.renderer.Render(ctx, url)
	if rerr != nil {
		metrics.ObserveFetch(kind, "blocked", 0)
		return Page{}, fmt.Errorf("headless fallback failed: %w (original: %v)", rerr, err)
	}
	metrics.ObserveFetch(kind, "ok_headless", page.Duration)
	return page, nil
}

// sortResults orders the final aggregation by section, row, seat, then photo
// ID so output is reproducible regardless of fetch completion order.
func sortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i].Photo, results[j].Photo
		if a.Section != b.Section {
			return a.Section < b.Section
		}
		if a.Row != b.Row {
			return a.Row < b.Row
		}
		if a.Seat != b.Seat {
			return a.Seat < b.Seat
		}
		return a.ID < b.ID
	})
}

// abortState latches the first abort-worthy error observed by workers.
type abortState struct {
	mu  sync.Mutex
	err error
}

func (a *abortState) set(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err == nil {
		a.err = err
	}
}

func (a *abortState) get() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}
