package scraper

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// FetcherConfig controls the colly-backed fetcher.
type FetcherConfig struct {
	UserAgents     []string
	RequestTimeout time.Duration
	MaxBodyBytes   int
	Concurrency    int
}

// CollyFetcher implements Fetcher on a colly collector. Each fetch clones the
// base collector, waits on the pacer, and retries transient failures per the
// policy. The returned error is always a *FetchError.
type CollyFetcher struct {
	baseCollector *colly.Collector
	pacer         Pacer
	retry         RetryPolicy
	userAgents    []string
	logger        *zap.Logger
}

// Browser-like headers; without them the site answers 403 to obvious bots.
var defaultHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.9",
	"Connection":                "keep-alive",
	"Upgrade-Insecure-Requests": "1",
}

// NewCollyFetcher constructs a configured fetcher.
func NewCollyFetcher(cfg FetcherConfig, pacer Pacer, retry RetryPolicy, logger *zap.Logger) *CollyFetcher {
	base := colly.NewCollector(
		colly.Async(false),
		colly.IgnoreRobotsTxt(),
	)
	base.AllowURLRevisit = true
	if cfg.MaxBodyBytes > 0 {
		base.MaxBodySize = cfg.MaxBodyBytes
	}
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	base.SetRequestTimeout(timeout)
	base.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   16,
		MaxConnsPerHost:       maxInt(2, cfg.Concurrency*2),
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ForceAttemptHTTP2:     true,
	})

	return &CollyFetcher{
		baseCollector: base,
		pacer:         pacer,
		retry:         retry,
		userAgents:    cfg.UserAgents,
		logger:        logger,
	}
}

// Fetch retrieves rawURL, pacing and retrying internally.
func (f *CollyFetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return Page{}, &FetchError{Kind: FetchFatal, URL: rawURL, Attempts: 0, Err: err}
	}

	var lastErr *FetchError
	for attempt := 0; ; attempt++ {
		if err := f.pacer.Wait(ctx); err != nil {
			return Page{}, &FetchError{Kind: FetchFatal, URL: rawURL, Attempts: attempt, Err: err}
		}

		page, err := f.fetchOnce(ctx, rawURL)
		if err == nil {
			page.Attempts = attempt + 1
			return page, nil
		}

		lastErr = err
		lastErr.Attempts = attempt + 1
		// The caller's context decides run cancellation; a per-attempt
		// timeout leaves it intact and stays retryable.
		if ctxErr := ctx.Err(); ctxErr != nil {
			lastErr.Err = fmt.Errorf("%w (canceled: %v)", lastErr.Err, ctxErr)
			return Page{}, lastErr
		}
		if !f.retry.ShouldRetry(lastErr, attempt+1) {
			return Page{}, lastErr
		}

		backoff := f.retry.Backoff(attempt)
		f.logger.Warn("transient fetch failure, backing off",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(lastErr.Err),
		)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			lastErr.Err = fmt.Errorf("%w (canceled: %v)", lastErr.Err, ctx.Err())
			return Page{}, lastErr
		case <-timer.C:
		}
	}
}

func (f *CollyFetcher) fetchOnce(ctx context.Context, rawURL string) (Page, *FetchError) {
	collector := f.baseCollector.Clone()
	collector.UserAgent = f.pickUserAgent()

	resultCh := make(chan fetchResult, 1)
	var once sync.Once
	send := func(res fetchResult) {
		once.Do(func() { resultCh <- res })
	}

	collector.OnRequest(func(r *colly.Request) {
		for k, v := range defaultHeaders {
			r.Headers.Set(k, v)
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		headers := http.Header{}
		if r.Headers != nil {
			for k, v := range *r.Headers {
				cp := make([]string, len(v))
				copy(cp, v)
				headers[k] = cp
			}
		}
		send(fetchResult{page: Page{
			URL:        rawURL,
			FinalURL:   r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    headers,
			Body:       append([]byte(nil), r.Body...),
		}})
	})
	collector.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		send(fetchResult{status: status, err: err})
	})

	// Visit also returns the HTTP error for non-2xx statuses; the OnError
	// callback has already recorded the status by then, so the channel is
	// consulted first and visitErr only matters when nothing arrived.
	start := time.Now()
	visitErr := collector.Visit(rawURL)
	collector.Wait()

	select {
	case res := <-resultCh:
		if err := ctx.Err(); err != nil {
			return Page{}, &FetchError{Kind: FetchFatal, URL: rawURL, Err: err}
		}
		if res.err != nil {
			return Page{}, &FetchError{
				Kind:       classifyFailure(res.status, res.err),
				URL:        rawURL,
				StatusCode: res.status,
				Err:        res.err,
			}
		}
		res.page.Duration = time.Since(start)
		return res.page, nil
	default:
		if visitErr != nil {
			return Page{}, &FetchError{Kind: FetchFatal, URL: rawURL, Err: visitErr}
		}
		return Page{}, &FetchError{Kind: FetchTransient, URL: rawURL, Err: errors.New("fetch produced no result")}
	}
}

func (f *CollyFetcher) pickUserAgent() string {
	if len(f.userAgents) == 0 {
		return "seatview-scraper/1.0"
	}
	return f.userAgents[rand.IntN(len(f.userAgents))]
}

// classifyFailure maps an HTTP status or transport error onto the fetch
// taxonomy.
func classifyFailure(status int, err error) FetchKind {
	switch {
	case status == http.StatusForbidden || status == http.StatusTooManyRequests:
		return FetchBlocked
	case status == http.StatusNotFound:
		return FetchNotFound
	case status >= 500:
		return FetchTransient
	case status >= 400:
		return FetchFatal
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return FetchTransient
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return FetchTransient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FetchTransient
	}
	return FetchFatal
}

type fetchResult struct {
	page   Page
	status int
	err    error
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
