package openmeteo_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/race-weather-etl/internal/adapter/openmeteo"
	"github.com/couchcryptid/race-weather-etl/internal/config"
	"github.com/couchcryptid/race-weather-etl/internal/domain"
	"github.com/couchcryptid/race-weather-etl/internal/observability"
)

const hourlyBody = `{
	"hourly": {
		"time": ["2024-11-10T10:00", "2024-11-10T11:00"],
		"wind_speed_10m": [18.52, 20.0],
		"wind_direction_10m": [270.0, 280.0],
		"wind_gusts_10m": [37.04, 40.0]
	}
}`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newClient(t *testing.T, baseURL string) *openmeteo.Client {
	t.Helper()
	t.Setenv("OPENMETEO_BASE_URL", baseURL)
	t.Setenv("FETCH_RETRY_DELAY", "1ms")
	t.Setenv("FETCH_TIMEOUT", "2s")

	cfg, err := config.Load()
	require.NoError(t, err)

	c, err := openmeteo.NewClient(cfg, clockwork.NewRealClock(), testLogger(), observability.NewMetricsForTesting())
	require.NoError(t, err)
	return c
}

func raceTime(t *testing.T, h, m int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)
	return time.Date(2024, time.November, 10, h, m, 0, 0, loc)
}

func TestFetch_SelectsNearestHour(t *testing.T) {
	var query atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query.Store(r.URL.Query())
		w.Write([]byte(hourlyBody))
	}))
	defer srv.Close()

	c := newClient(t, srv.URL)

	// 10:40 is 40min from 10:00 and 20min from 11:00: the 11:00 entry wins.
	got := c.Fetch(t.Context(), 45.0, -1.0, raceTime(t, 10, 40))
	assert.Equal(t, domain.FetchOK, got.Status)
	assert.InDelta(t, 20.0, got.Obs.WindSpeed, 1e-9)
	assert.InDelta(t, 280.0, got.Obs.WindDirection, 1e-9)
	assert.InDelta(t, 40.0, got.Obs.WindGust, 1e-9)

	q := query.Load().(url.Values)
	assert.Equal(t, []string{"2024-11-10"}, q["start_date"])
	assert.Equal(t, []string{"2024-11-10"}, q["end_date"])
	assert.Equal(t, []string{"Europe/Paris"}, q["timezone"])
	assert.Equal(t, []string{"45"}, q["latitude"])
	assert.Equal(t, []string{"-1"}, q["longitude"])
}

func TestFetch_TiePrefersEarlierHour(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(hourlyBody))
	}))
	defer srv.Close()

	c := newClient(t, srv.URL)

	got := c.Fetch(t.Context(), 45.0, -1.0, raceTime(t, 10, 30))
	assert.Equal(t, domain.FetchOK, got.Status)
	assert.InDelta(t, 18.52, got.Obs.WindSpeed, 1e-9)
}

func TestFetch_EmptyHourlySeriesIsNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"hourly":{"time":[],"wind_speed_10m":[],"wind_direction_10m":[],"wind_gusts_10m":[]}}`))
	}))
	defer srv.Close()

	c := newClient(t, srv.URL)

	got := c.Fetch(t.Context(), 45.0, -1.0, raceTime(t, 10, 40))
	assert.Equal(t, domain.FetchNoData, got.Status)
}

func TestFetch_NullReadingsAreNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{
			"hourly": {
				"time": ["2024-11-10T10:00"],
				"wind_speed_10m": [null],
				"wind_direction_10m": [270.0],
				"wind_gusts_10m": [37.04]
			}
		}`))
	}))
	defer srv.Close()

	c := newClient(t, srv.URL)

	got := c.Fetch(t.Context(), 45.0, -1.0, raceTime(t, 10, 0))
	assert.Equal(t, domain.FetchNoData, got.Status)
}

func TestFetch_RetriesThenDegradesToFailed(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newClient(t, srv.URL)

	got := c.Fetch(t.Context(), 45.0, -1.0, raceTime(t, 10, 40))
	assert.Equal(t, domain.FetchFailed, got.Status)
	assert.Equal(t, int64(3), hits.Load(), "default config allows 3 attempts")
}

func TestFetch_RecoversWithinRetryBudget(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(hourlyBody))
	}))
	defer srv.Close()

	c := newClient(t, srv.URL)

	got := c.Fetch(t.Context(), 45.0, -1.0, raceTime(t, 10, 40))
	assert.Equal(t, domain.FetchOK, got.Status)
	assert.Equal(t, int64(2), hits.Load())
}

func TestFetch_MalformedPayloadDegradesToFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"hourly": "not-a-series"`))
	}))
	defer srv.Close()

	c := newClient(t, srv.URL)

	got := c.Fetch(t.Context(), 45.0, -1.0, raceTime(t, 10, 40))
	assert.Equal(t, domain.FetchFailed, got.Status)
}

func TestFetch_TruncatedSeriesDegradesToFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{
			"hourly": {
				"time": ["2024-11-10T10:00", "2024-11-10T11:00"],
				"wind_speed_10m": [18.52],
				"wind_direction_10m": [270.0],
				"wind_gusts_10m": [37.04]
			}
		}`))
	}))
	defer srv.Close()

	c := newClient(t, srv.URL)

	got := c.Fetch(t.Context(), 45.0, -1.0, raceTime(t, 10, 40))
	assert.Equal(t, domain.FetchFailed, got.Status)
}
