package scraper

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFetchErrorClassification(t *testing.T) {
	t.Parallel()

	blocked := &FetchError{Kind: FetchBlocked, URL: "https://x.test", StatusCode: 403, Attempts: 1}
	require.True(t, IsBlocked(blocked))
	require.False(t, IsNotFound(blocked))
	require.Equal(t, FetchBlocked, FetchKindOf(blocked))

	// Classification survives wrapping.
	wrapped := fmt.Errorf("discover sections: %w", blocked)
	require.True(t, IsBlocked(wrapped))

	require.Equal(t, FetchKind(""), FetchKindOf(errors.New("plain")))
	require.False(t, IsBlocked(nil))
}

func TestFetchErrorUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	fe := &FetchError{Kind: FetchTransient, URL: "https://x.test", Attempts: 3, Err: cause}
	require.ErrorIs(t, fe, cause)
	require.Contains(t, fe.Error(), "transient")
	require.Contains(t, fe.Error(), "3 attempts")
}

func TestParseErrorClassification(t *testing.T) {
	t.Parallel()

	empty := emptyResult("no photos on %s", "page")
	require.True(t, IsEmptyResult(empty))
	require.False(t, IsUnexpectedFormat(empty))

	format := unexpectedFormat("missing grid")
	require.True(t, IsUnexpectedFormat(format))
	require.True(t, IsUnexpectedFormat(fmt.Errorf("section 101: %w", format)))

	require.False(t, IsEmptyResult(errors.New("other")))
}
