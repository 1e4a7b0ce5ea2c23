// Package metrics exposes Prometheus collectors for the scraper.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	photosTotal           *prometheus.CounterVec
	fetchesTotal          *prometheus.CounterVec
	fetchDurationSeconds  *prometheus.HistogramVec
	headlessFallbackTotal prometheus.Counter
	activeDownloads       prometheus.Gauge

	once sync.Once
)

// Init registers the collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		photosTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seatview_photos_total",
				Help: "Photo outcomes per run, labeled by result (discovered, downloaded, skipped, failed).",
			},
			[]string{"result"},
		)

		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seatview_fetches_total",
				Help: "HTTP fetches issued, labeled by kind (listing, detail, image) and outcome.",
			},
			[]string{"kind", "outcome"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "seatview_fetch_duration_seconds",
				Help:    "Fetch latency, labeled by kind.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"kind"},
		)

		headlessFallbackTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "seatview_headless_fallback_total",
				Help: "Pages fetched through the headless browser after a block.",
			},
		)

		activeDownloads = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "seatview_active_downloads",
				Help: "Downloads currently in flight.",
			},
		)
	})
}

// CountPhoto records one photo outcome (discovered, downloaded, skipped,
// failed).
func CountPhoto(result string) {
	if photosTotal == nil {
		return
	}
	photosTotal.WithLabelValues(result).Inc()
}

// ObserveFetch records one completed fetch attempt sequence.
func ObserveFetch(kind, outcome string, took time.Duration) {
	if fetchesTotal == nil {
		return
	}
	fetchesTotal.WithLabelValues(kind, outcome).Inc()
	fetchDurationSeconds.WithLabelValues(kind).Observe(took.Seconds())
}

// CountHeadlessFallback records one headless promotion.
func CountHeadlessFallback() {
	if headlessFallbackTotal == nil {
		return
	}
	headlessFallbackTotal.Inc()
}

// DownloadStarted increments the in-flight downloads gauge.
func DownloadStarted() {
	if activeDownloads != nil {
		activeDownloads.Inc()
	}
}

// DownloadFinished decrements the in-flight downloads gauge.
func DownloadFinished() {
	if activeDownloads != nil {
		activeDownloads.Dec()
	}
}
