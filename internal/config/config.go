// Package config loads and validates scraper configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper. Flags, the
// optional YAML file, and AVFMS_-prefixed environment variables all land
// here.
type Config struct {
	Scrape   ScrapeConfig   `mapstructure:"scrape"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Resume   ResumeConfig   `mapstructure:"resume"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ScrapeConfig governs the discovery/download pipeline.
type ScrapeConfig struct {
	BaseURL             string  `mapstructure:"base_url"`
	OutputDir           string  `mapstructure:"output_dir"`
	Async               bool    `mapstructure:"async"`
	Concurrency         int     `mapstructure:"concurrency"`
	MaxSections         int     `mapstructure:"max_sections"`
	MaxPhotosPerSection int     `mapstructure:"max_photos_per_section"`
	MaxPagesPerSection  int     `mapstructure:"max_pages_per_section"`
	MinDelaySeconds     float64 `mapstructure:"min_delay_seconds"`
	MaxDelaySeconds     float64 `mapstructure:"max_delay_seconds"`
	SkipDownload        bool    `mapstructure:"skip_download"`
	FetchDetails        bool    `mapstructure:"fetch_details"`
}

// HTTPConfig configures the fetcher's client and retry behavior.
type HTTPConfig struct {
	TimeoutSeconds   int      `mapstructure:"timeout_seconds"`
	MaxRetries       int      `mapstructure:"max_retries"`
	BackoffInitialMs int      `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int      `mapstructure:"backoff_max_ms"`
	UserAgents       []string `mapstructure:"user_agents"`
}

// HeadlessConfig configures the browser fallback used when the plain
// fetcher is blocked.
type HeadlessConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	MaxParallel   int     `mapstructure:"max_parallel"`
	NavTimeoutSec int     `mapstructure:"nav_timeout_seconds"`
	DomainQPS     float64 `mapstructure:"domain_qps"`
}

// ResumeConfig selects the resume backend.
type ResumeConfig struct {
	Backend string `mapstructure:"backend"` // "metadata" or "sqlite"
}

// MetricsConfig controls the optional status/metrics HTTP listener.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"` // empty disables the listener
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AVFMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scrape.base_url", "https://aviewfrommyseat.com")
	v.SetDefault("scrape.output_dir", "venue_photos")
	v.SetDefault("scrape.async", false)
	v.SetDefault("scrape.concurrency", 4)
	v.SetDefault("scrape.max_sections", 0)
	v.SetDefault("scrape.max_photos_per_section", 0)
	v.SetDefault("scrape.max_pages_per_section", 50)
	v.SetDefault("scrape.min_delay_seconds", 1.0)
	v.SetDefault("scrape.max_delay_seconds", 3.0)
	v.SetDefault("scrape.skip_download", false)
	v.SetDefault("scrape.fetch_details", false)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_initial_ms", 500)
	v.SetDefault("http.backoff_max_ms", 8000)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.domain_qps", 0.5)
	v.SetDefault("resume.backend", "metadata")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Scrape.OutputDir == "" {
		return fmt.Errorf("scrape.output_dir must be set")
	}
	if c.Scrape.Concurrency <= 0 {
		return fmt.Errorf("scrape.concurrency must be > 0")
	}
	if c.Scrape.MinDelaySeconds < 0 || c.Scrape.MaxDelaySeconds < 0 {
		return fmt.Errorf("scrape delays must be >= 0")
	}
	if c.Scrape.MaxDelaySeconds < c.Scrape.MinDelaySeconds {
		return fmt.Errorf("scrape.max_delay_seconds must be >= scrape.min_delay_seconds")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries <= 0 {
		return fmt.Errorf("http.max_retries must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	switch c.Resume.Backend {
	case "metadata", "sqlite":
	default:
		return fmt.Errorf("resume.backend must be %q or %q", "metadata", "sqlite")
	}
	return nil
}

// Workers reports how many fetch/download tasks may run at once. Without
// async mode the pipeline stays strictly sequential.
func (c Config) Workers() int {
	if !c.Scrape.Async {
		return 1
	}
	return c.Scrape.Concurrency
}

// HTTPTimeout converts the fetch timeout into a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// MinDelay is the lower bound of the politeness window.
func (c Config) MinDelay() time.Duration {
	return time.Duration(c.Scrape.MinDelaySeconds * float64(time.Second))
}

// MaxDelay is the upper bound of the politeness window.
func (c Config) MaxDelay() time.Duration {
	return time.Duration(c.Scrape.MaxDelaySeconds * float64(time.Second))
}
