package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/avfms/seatview-scraper/internal/scraper"
)

type staticSource struct{ session scraper.Session }

func (s staticSource) Snapshot() scraper.Session { return s.session }

func newTestServer() *Server {
	return NewServer(staticSource{session: scraper.Session{
		ID:        "run-1",
		Venue:     "The+Garden",
		Stage:     scraper.StageDownload,
		StartedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Counters:  scraper.Counters{Discovered: 40, Downloaded: 12, Skipped: 3, Failed: 1},
	}}, zap.NewNop())
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	newTestServer().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestStatusSnapshot(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	newTestServer().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "run-1", body.SessionID)
	require.Equal(t, "The+Garden", body.Venue)
	require.Equal(t, scraper.StageDownload, body.Stage)
	require.Equal(t, 40, body.Counters.Discovered)
	require.Equal(t, 1, body.Counters.Failed)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	newTestServer().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestUnknownRouteReturns404(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	newTestServer().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
