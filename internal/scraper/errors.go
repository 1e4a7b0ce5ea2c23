package scraper

import (
	"errors"
	"fmt"
)

// FetchKind classifies a failed fetch so callers can decide between retrying,
// recording a per-photo failure, or aborting the run.
type FetchKind string

// Fetch failure classes.
const (
	// FetchBlocked covers 403/429 responses: the site is refusing us and
	// retrying the same way will not help. Surfaced immediately so the
	// orchestrator can switch to the headless strategy or stop.
	FetchBlocked FetchKind = "blocked"
	// FetchNotFound covers 404. Never retried.
	FetchNotFound FetchKind = "not_found"
	// FetchTransient covers timeouts, connection errors, and 5xx. Retried
	// with backoff inside the fetcher up to the attempt cap.
	FetchTransient FetchKind = "transient"
	// FetchFatal covers malformed URLs and unrecoverable protocol errors.
	FetchFatal FetchKind = "fatal"
)

// FetchError is the classified failure returned by a Fetcher once local
// retries are exhausted (or immediately, for non-retryable kinds).
type FetchError struct {
	Kind       FetchKind
	URL        string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s: %s (status %d, %d attempts): %v",
			e.URL, e.Kind, e.StatusCode, e.Attempts, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s (%d attempts): %v", e.URL, e.Kind, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// FetchKindOf returns the classification of err, or "" if err is not a
// FetchError.
func FetchKindOf(err error) FetchKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// IsBlocked reports whether err is a blocked-by-site fetch failure.
func IsBlocked(err error) bool { return FetchKindOf(err) == FetchBlocked }

// IsNotFound reports whether err is a 404 fetch failure.
func IsNotFound(err error) bool { return FetchKindOf(err) == FetchNotFound }

// ParseKind distinguishes a legitimately empty page from a page whose
// structure no longer matches what the parser expects.
type ParseKind string

// Parse failure classes.
const (
	// ParseEmptyResult means the page parsed cleanly but held no data, e.g.
	// a section with zero photos. The pipeline continues.
	ParseEmptyResult ParseKind = "empty_result"
	// ParseUnexpectedFormat means expected structural markers are absent:
	// the site layout changed. The current section is abandoned.
	ParseUnexpectedFormat ParseKind = "unexpected_format"
)

// ParseError reports a parsing failure with its classification.
type ParseError struct {
	Kind ParseKind
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse: %s: %s", e.Kind, e.Msg)
}

// IsEmptyResult reports whether err marks a page with legitimately no data.
func IsEmptyResult(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe) && pe.Kind == ParseEmptyResult
}

// IsUnexpectedFormat reports whether err marks a structural parsing failure.
func IsUnexpectedFormat(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe) && pe.Kind == ParseUnexpectedFormat
}

func emptyResult(format string, args ...any) error {
	return &ParseError{Kind: ParseEmptyResult, Msg: fmt.Sprintf(format, args...)}
}

func unexpectedFormat(format string, args ...any) error {
	return &ParseError{Kind: ParseUnexpectedFormat, Msg: fmt.Sprintf(format, args...)}
}
