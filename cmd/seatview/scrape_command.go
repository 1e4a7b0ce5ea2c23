package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/avfms/seatview-scraper/internal/api"
	"github.com/avfms/seatview-scraper/internal/clock/system"
	"github.com/avfms/seatview-scraper/internal/config"
	"github.com/avfms/seatview-scraper/internal/logging"
	"github.com/avfms/seatview-scraper/internal/resume"
	"github.com/avfms/seatview-scraper/internal/scraper"
)

const lockFile = ".seatview.lock"

func newScrapeCommand(cmdCtx *commandContext) *cobra.Command {
	var (
		venue        string
		outputDir    string
		maxSections  int
		maxPhotos    int
		async        bool
		concurrency  int
		skipDownload bool
		details      bool
		headless     bool
		minDelay     float64
		maxDelay     float64
		metricsAddr  string
		jsonOut      bool
	)

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Collect all seat-view photos for a venue",
		Long: `Discovers every seating section of a venue, walks each section's photo
listings, and downloads the seat-view images into a section/row directory
tree. Re-runs skip photos already on disk.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			applyScrapeFlags(cmd, &cfg, outputDir, maxSections, maxPhotos, async,
				concurrency, skipDownload, details, headless, minDelay, maxDelay, metricsAddr)

			// JSON summaries go to stdout; keep logs out of the way.
			var logger *zap.Logger
			if jsonOut {
				logger, err = logging.NewQuiet()
			} else {
				logger, err = cmdCtx.ensureLogger()
			}
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			return runScrape(cmd.Context(), cfg, venue, jsonOut, logger)
		},
	}

	cmd.Flags().StringVar(&venue, "venue", "", "venue slug or alias (e.g. madison-square-garden, msg)")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory (default venue_photos/<venue>)")
	cmd.Flags().IntVar(&maxSections, "max-sections", 0, "stop after this many sections (0 = all)")
	cmd.Flags().IntVar(&maxPhotos, "max-photos-per-section", 0, "cap photos collected per section (0 = all)")
	cmd.Flags().BoolVar(&async, "async", false, "run fetches and downloads in a bounded worker pool instead of one at a time")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "worker pool size when --async is set")
	cmd.Flags().BoolVar(&skipDownload, "skip-download", false, "collect metadata only, no image downloads")
	cmd.Flags().BoolVar(&details, "details", false, "visit each photo's page for event and contributor info")
	cmd.Flags().BoolVar(&headless, "headless", false, "enable the headless browser fallback for blocked fetches")
	cmd.Flags().Float64Var(&minDelay, "min-delay", 0, "minimum seconds between requests")
	cmd.Flags().Float64Var(&maxDelay, "max-delay", 0, "maximum seconds between requests")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address for the status/metrics listener (e.g. :9090)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the run summary as JSON instead of a table")
	_ = cmd.MarkFlagRequired("venue")

	return cmd
}

func applyScrapeFlags(
	cmd *cobra.Command,
	cfg *config.Config,
	outputDir string,
	maxSections, maxPhotos int,
	async bool,
	concurrency int,
	skipDownload, details, headless bool,
	minDelay, maxDelay float64,
	metricsAddr string,
) {
	if cmd.Flags().Changed("output") {
		cfg.Scrape.OutputDir = outputDir
	}
	if cmd.Flags().Changed("max-sections") {
		cfg.Scrape.MaxSections = maxSections
	}
	if cmd.Flags().Changed("max-photos-per-section") {
		cfg.Scrape.MaxPhotosPerSection = maxPhotos
	}
	if cmd.Flags().Changed("async") {
		cfg.Scrape.Async = async
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Scrape.Concurrency = concurrency
		// An explicit worker count implies concurrent mode.
		if !cmd.Flags().Changed("async") {
			cfg.Scrape.Async = true
		}
	}
	if cmd.Flags().Changed("skip-download") {
		cfg.Scrape.SkipDownload = skipDownload
	}
	if cmd.Flags().Changed("details") {
		cfg.Scrape.FetchDetails = details
	}
	if cmd.Flags().Changed("headless") {
		cfg.Headless.Enabled = headless
	}
	if cmd.Flags().Changed("min-delay") {
		cfg.Scrape.MinDelaySeconds = minDelay
	}
	if cmd.Flags().Changed("max-delay") {
		cfg.Scrape.MaxDelaySeconds = maxDelay
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.Metrics.Addr = metricsAddr
	}
}

func runScrape(ctx context.Context, cfg config.Config, venueArg string, jsonOut bool, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	venue := scraper.ResolveVenue(venueArg)
	outputDir := filepath.Join(cfg.Scrape.OutputDir, venue)

	sink, err := scraper.NewFileSystemSink(outputDir, logger)
	if err != nil {
		return err
	}

	// One writer per output directory; a second concurrent run would race
	// on metadata.json and the resume index.
	runLock := flock.New(filepath.Join(outputDir, lockFile))
	locked, err := runLock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another scrape is already running against %s", outputDir)
	}
	defer func() { _ = runLock.Unlock() }()

	store, closeStore, err := openResumeStore(ctx, cfg, outputDir, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	pacer := scraper.NewJitterPacer(cfg.MinDelay(), cfg.MaxDelay())
	retry := scraper.NewExponentialRetryPolicy(cfg.HTTP.MaxRetries)
	fetcher := scraper.NewCollyFetcher(scraper.FetcherConfig{
		UserAgents:     cfg.HTTP.UserAgents,
		RequestTimeout: cfg.HTTPTimeout(),
		Concurrency:    cfg.Workers(),
	}, pacer, retry, logger)

	var renderer scraper.Renderer
	if cfg.Headless.Enabled {
		cr, rerr := scraper.NewChromedpRenderer(scraper.RendererConfig{
			Enabled:     true,
			MaxParallel: cfg.Headless.MaxParallel,
			NavTimeout:  time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
			DomainQPS:   cfg.Headless.DomainQPS,
		}, logger)
		if rerr != nil {
			return fmt.Errorf("start headless renderer: %w", rerr)
		}
		defer func() { _ = cr.Close(context.Background()) }()
		renderer = cr
	}

	pipeline := scraper.NewPipeline(scraper.PipelineConfig{
		Venue:               venue,
		BaseURL:             cfg.Scrape.BaseURL,
		Concurrency:         cfg.Workers(),
		MaxSections:         cfg.Scrape.MaxSections,
		MaxPhotosPerSection: cfg.Scrape.MaxPhotosPerSection,
		MaxPagesPerSection:  cfg.Scrape.MaxPagesPerSection,
		SkipDownload:        cfg.Scrape.SkipDownload,
		FetchDetails:        cfg.Scrape.FetchDetails,
	}, fetcher, renderer, store, sink, system.New(), logger)

	if cfg.Metrics.Addr != "" {
		statusServer := api.NewServer(pipeline, logger)
		go func() {
			if serveErr := statusServer.ListenAndServe(ctx, cfg.Metrics.Addr); serveErr != nil {
				logger.Warn("status server stopped", zap.Error(serveErr))
			}
		}()
	}

	summary, err := pipeline.Run(ctx)
	if jsonOut {
		if printErr := printRunSummaryJSON(summary, outputDir); printErr != nil {
			return printErr
		}
	} else {
		printRunSummary(summary, outputDir)
	}
	if err != nil {
		if errors.Is(err, scraper.ErrBlocked) && !cfg.Headless.Enabled {
			return fmt.Errorf("%w (re-run with --headless)", err)
		}
		return err
	}
	return nil
}

func openResumeStore(
	ctx context.Context,
	cfg config.Config,
	outputDir string,
	logger *zap.Logger,
) (scraper.ResumeStore, func(), error) {
	switch cfg.Resume.Backend {
	case "sqlite":
		store, err := resume.OpenSQLiteStore(ctx, outputDir)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		store, err := resume.OpenMetadataStore(outputDir, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
}

func printRunSummary(summary scraper.RunSummary, outputDir string) {
	rows := [][]string{
		{"Venue", summary.Venue},
		{"Output", outputDir},
		{"Stage", string(summary.Stage)},
		{"Sections", strconv.Itoa(summary.Sections)},
		{"Discovered", strconv.Itoa(summary.Counters.Discovered)},
		{"Downloaded", strconv.Itoa(summary.Counters.Downloaded)},
		{"Skipped", strconv.Itoa(summary.Counters.Skipped)},
		{"Failed", strconv.Itoa(summary.Counters.Failed)},
		{"Elapsed", summary.Elapsed.Round(time.Second).String()},
	}
	fmt.Println(renderTable([]string{"Run", "Value"}, rows, []columnAlignment{alignLeft, alignLeft}))
}

func printRunSummaryJSON(summary scraper.RunSummary, outputDir string) error {
	out := struct {
		scraper.RunSummary
		OutputDir string `json:"output_dir"`
	}{RunSummary: summary, OutputDir: outputDir}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
