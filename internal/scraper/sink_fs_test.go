package scraper

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestSink(t *testing.T) *FileSystemSink {
	t.Helper()
	sink, err := NewFileSystemSink(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	return sink
}

func TestImagePathLayout(t *testing.T) {
	t.Parallel()

	sink := newTestSink(t)

	withSeat := sink.ImagePath(Photo{
		ID: "1001", Section: "101", Row: "5", Seat: "12",
		ImageURL: "https://x.test/photos/1001.jpg",
	})
	require.Equal(t,
		filepath.Join(sink.Root(), "section_101", "row_5", "section_101_row_5_seat_12_1001.jpg"),
		withSeat,
	)

	rowOnly := sink.ImagePath(Photo{
		ID: "1002", Section: "101", Row: "5",
		ImageURL: "https://x.test/photos/1002.png",
	})
	require.Equal(t,
		filepath.Join(sink.Root(), "section_101", "row_5", "section_101_row_5_1002.png"),
		rowOnly,
	)

	noRow := sink.ImagePath(Photo{ID: "1003", Section: "101", ImageURL: "https://x.test/1003.webp"})
	require.Contains(t, noRow, filepath.Join("section_101", "row_unknown"))

	// Hostile labels cannot escape the output root.
	hostile := sink.ImagePath(Photo{ID: "1", Section: "../../etc", Row: "a/b"})
	require.True(t, strings.HasPrefix(filepath.Clean(hostile), sink.Root()))
}

func TestSaveImageWritesAtomically(t *testing.T) {
	t.Parallel()

	sink := newTestSink(t)
	photo := Photo{ID: "1001", Section: "101", Row: "5", ImageURL: "https://x.test/1001.jpg"}

	path, size, err := sink.SaveImage(context.Background(), photo, []byte("jpegbytes"))
	require.NoError(t, err)
	require.Equal(t, int64(9), size)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, []byte("jpegbytes"), data)

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestSaveImageRejectsEmptyBody(t *testing.T) {
	t.Parallel()

	sink := newTestSink(t)
	_, _, err := sink.SaveImage(context.Background(), Photo{ID: "1", Section: "s"}, nil)
	require.Error(t, err)
}

func TestSaveMetadataStableAcrossRuns(t *testing.T) {
	t.Parallel()

	sink := newTestSink(t)
	session := Session{ID: "run-1", Venue: "The+Garden"}
	results := []Result{
		{
			Photo: Photo{ID: "1", Section: "101", Row: "5", ImageURL: "https://x.test/1.jpg", DiscoveredAt: time.Now()},
			Download: &DownloadRecord{
				PhotoID: "1", Status: DownloadSucceeded, LocalPath: "/out/1.jpg",
				Bytes: 10, Attempts: 1, LastAttempt: time.Now(),
			},
		},
		{Photo: Photo{ID: "2", Section: "102", Row: "1", ImageURL: "https://x.test/2.jpg"}},
	}

	require.NoError(t, sink.SaveMetadata(context.Background(), session, results))
	first, err := os.ReadFile(filepath.Join(sink.Root(), MetadataFile))
	require.NoError(t, err)

	// Second run over the same data, different timestamps, different session.
	results[0].Photo.DiscoveredAt = time.Now().Add(time.Hour)
	results[0].Download.LastAttempt = time.Now().Add(time.Hour)
	require.NoError(t, sink.SaveMetadata(context.Background(), Session{ID: "run-2", Venue: "The+Garden"}, results))
	second, err := os.ReadFile(filepath.Join(sink.Root(), MetadataFile))
	require.NoError(t, err)

	require.Equal(t, string(first), string(second), "metadata must be byte-identical across re-runs")

	var doc map[string]any
	require.NoError(t, json.Unmarshal(first, &doc))
	require.Equal(t, "The+Garden", doc["venue"])
	require.Equal(t, float64(2), doc["total_photos"])
	require.Equal(t, float64(2), doc["sections"])
}

func TestSaveSummaryGroupsBySectionAndRow(t *testing.T) {
	t.Parallel()

	sink := newTestSink(t)
	results := []Result{
		{Photo: Photo{ID: "1", Section: "101", Row: "5", Seat: "12", ImageURL: "https://x.test/1.jpg"}},
		{Photo: Photo{ID: "2", Section: "101", Row: "5", ImageURL: "https://x.test/2.jpg"}},
		{Photo: Photo{ID: "3", Section: "101", Row: "6", ImageURL: "https://x.test/3.jpg"}},
		{Photo: Photo{ID: "4", Section: "102", ImageURL: "https://x.test/4.jpg"}},
	}
	require.NoError(t, sink.SaveSummary(context.Background(), results))

	data, err := os.ReadFile(filepath.Join(sink.Root(), SummaryFile))
	require.NoError(t, err)

	var summary map[string]struct {
		Rows map[string][]struct {
			PhotoID  string `json:"photo_id"`
			Seat     string `json:"seat"`
			ImageURL string `json:"image_url"`
		} `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(data, &summary))

	require.Len(t, summary, 2)
	require.Len(t, summary["101"].Rows["5"], 2)
	require.Len(t, summary["101"].Rows["6"], 1)
	require.Equal(t, "12", summary["101"].Rows["5"][0].Seat)
	require.Len(t, summary["102"].Rows["unknown"], 1, "rowless photos land in the unknown bucket")
}
