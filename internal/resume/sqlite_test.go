package resume

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/avfms/seatview-scraper/internal/scraper"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLiteStore(context.Background(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	require.False(t, store.Known("1001"))

	rec := scraper.DownloadRecord{
		PhotoID:     "1001",
		LocalPath:   "/out/section_101/row_5/1001.jpg",
		Status:      scraper.DownloadSucceeded,
		Bytes:       2048,
		Checksum:    "deadbeef",
		Attempts:    2,
		LastAttempt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.Record("1001", rec))
	require.True(t, store.Known("1001"))

	got, ok := store.Get("1001")
	require.True(t, ok)
	require.Equal(t, rec.PhotoID, got.PhotoID)
	require.Equal(t, rec.LocalPath, got.LocalPath)
	require.Equal(t, rec.Status, got.Status)
	require.Equal(t, rec.Bytes, got.Bytes)
	require.Equal(t, rec.Checksum, got.Checksum)
	require.Equal(t, rec.Attempts, got.Attempts)
	require.True(t, rec.LastAttempt.Equal(got.LastAttempt))
}

func TestSQLiteStoreFailedRecordsNotKnown(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	require.NoError(t, store.Record("13", scraper.DownloadRecord{
		PhotoID: "13", Status: scraper.DownloadFailed, Attempts: 3, Error: "blocked",
	}))

	require.False(t, store.Known("13"), "failed downloads are retried next run")
	got, ok := store.Get("13")
	require.True(t, ok, "the record itself is still inspectable")
	require.Equal(t, scraper.DownloadFailed, got.Status)
	require.Equal(t, "blocked", got.Error)
}

func TestSQLiteStoreUpsert(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	require.NoError(t, store.Record("7", scraper.DownloadRecord{
		PhotoID: "7", Status: scraper.DownloadFailed, Attempts: 3,
	}))
	require.NoError(t, store.Record("7", scraper.DownloadRecord{
		PhotoID: "7", Status: scraper.DownloadSucceeded, LocalPath: "/out/7.jpg", Attempts: 1, Bytes: 5,
	}))

	require.True(t, store.Known("7"))
	got, _ := store.Get("7")
	require.Equal(t, scraper.DownloadSucceeded, got.Status)
	require.Equal(t, int64(5), got.Bytes)

	n, err := store.Count()
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestSQLiteStoreReopenPersists(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := OpenSQLiteStore(context.Background(), dir)
	require.NoError(t, err)
	require.NoError(t, store.Record("42", scraper.DownloadRecord{
		PhotoID: "42", Status: scraper.DownloadSucceeded, LocalPath: "/out/42.jpg",
	}))
	require.NoError(t, store.Close())

	reopened, err := OpenSQLiteStore(context.Background(), dir)
	require.NoError(t, err)
	defer reopened.Close()
	require.True(t, reopened.Known("42"))
}
