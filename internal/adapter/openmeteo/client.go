// Package openmeteo fetches archived hourly wind observations from the
// Open-Meteo archive API.
package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"

	"github.com/couchcryptid/race-weather-etl/internal/config"
	"github.com/couchcryptid/race-weather-etl/internal/domain"
	"github.com/couchcryptid/race-weather-etl/internal/observability"
)

// hourlyTimeLayout is the timestamp format of the archive's hourly series.
const hourlyTimeLayout = "2006-01-02T15:04"

// Client fetches nearest-hour wind observations. A failed fetch never
// propagates as an error: after the configured attempts it degrades to an
// absent observation so one flaky coordinate cannot stall the pipeline.
type Client struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	baseURL    string
	timezone   string
	loc        *time.Location
	attempts   int
	retryDelay time.Duration
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates an archive API client from the pipeline configuration.
func NewClient(cfg *config.Config, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) (*Client, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	settings := gobreaker.Settings{
		Name:        "openmeteo",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && ratio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state changed", "client", name, "from", from.String(), "to", to.String())
		},
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.FetchTimeout},
		breaker:    gobreaker.NewCircuitBreaker(settings),
		baseURL:    cfg.WeatherBaseURL,
		timezone:   cfg.RaceTimezone,
		loc:        loc,
		attempts:   cfg.FetchAttempts,
		retryDelay: cfg.FetchRetryDelay,
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
	}, nil
}

// Fetch retrieves the hourly observation nearest to ts for the given
// coordinate, querying the single calendar day containing ts.
func (c *Client) Fetch(ctx context.Context, lat, lon float64, ts time.Time) domain.FetchResult {
	start := time.Now()
	defer func() {
		c.metrics.FetchDuration.Observe(time.Since(start).Seconds())
	}()

	for attempt := 1; attempt <= c.attempts; attempt++ {
		if attempt > 1 {
			c.metrics.FetchRetries.Inc()
			if !sleepWithContext(ctx, c.clock, c.retryDelay) {
				break
			}
		}

		result, err := c.fetchOnce(ctx, lat, lon, ts)
		if err == nil {
			c.metrics.FetchResults.WithLabelValues(result.Status.String()).Inc()
			return result
		}

		c.logger.Warn("weather fetch attempt failed",
			"attempt", attempt,
			"lat", lat,
			"lon", lon,
			"time", ts,
			"error", err,
		)
		if ctx.Err() != nil {
			break
		}
	}

	result := domain.FetchResult{Status: domain.FetchFailed}
	c.metrics.FetchResults.WithLabelValues(result.Status.String()).Inc()
	return result
}

func (c *Client) fetchOnce(ctx context.Context, lat, lon float64, ts time.Time) (domain.FetchResult, error) {
	day := ts.In(c.loc).Format("2006-01-02")
	params := url.Values{
		"latitude":   {strconv.FormatFloat(lat, 'f', -1, 64)},
		"longitude":  {strconv.FormatFloat(lon, 'f', -1, 64)},
		"start_date": {day},
		"end_date":   {day},
		"hourly":     {"wind_speed_10m,wind_direction_10m,wind_gusts_10m"},
		"timezone":   {c.timezone},
	}

	resp, err := c.breaker.Execute(func() (any, error) {
		return c.doRequest(ctx, c.baseURL+"?"+params.Encode())
	})
	if err != nil {
		return domain.FetchResult{}, err
	}
	hourly := resp.(*archiveResponse).Hourly

	if len(hourly.Time) == 0 {
		// The archive has no data for this day/coordinate. Not an error.
		return domain.FetchResult{Status: domain.FetchNoData}, nil
	}

	times := make([]time.Time, len(hourly.Time))
	for i, s := range hourly.Time {
		t, err := time.ParseInLocation(hourlyTimeLayout, s, c.loc)
		if err != nil {
			return domain.FetchResult{}, fmt.Errorf("parse hourly timestamp %q: %w", s, err)
		}
		times[i] = t
	}

	idx := domain.NearestIndex(times, ts)
	if idx >= len(hourly.WindSpeed10M) || idx >= len(hourly.WindDirection10M) || idx >= len(hourly.WindGusts10M) {
		return domain.FetchResult{}, fmt.Errorf("hourly series length mismatch at index %d", idx)
	}

	speed := hourly.WindSpeed10M[idx]
	direction := hourly.WindDirection10M[idx]
	gust := hourly.WindGusts10M[idx]
	if speed == nil || direction == nil || gust == nil {
		// The hour exists but carries null readings.
		return domain.FetchResult{Status: domain.FetchNoData}, nil
	}

	return domain.FetchResult{
		Status: domain.FetchOK,
		Obs: domain.Observation{
			WindSpeed:     *speed,
			WindDirection: *direction,
			WindGust:      *gust,
		},
	}, nil
}

func (c *Client) doRequest(ctx context.Context, fullURL string) (*archiveResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("archive request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("archive API error: status %d", resp.StatusCode)
	}

	var parsed archiveResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &parsed, nil
}

// Archive API response types. Readings are pointers because the archive
// returns JSON nulls for hours with no measurement.

type archiveResponse struct {
	Hourly hourlySeries `json:"hourly"`
}

type hourlySeries struct {
	Time             []string   `json:"time"`
	WindSpeed10M     []*float64 `json:"wind_speed_10m"`
	WindDirection10M []*float64 `json:"wind_direction_10m"`
	WindGusts10M     []*float64 `json:"wind_gusts_10m"`
}

func sleepWithContext(ctx context.Context, clock clockwork.Clock, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
