package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/race-weather-etl/internal/chunkstore"
	"github.com/couchcryptid/race-weather-etl/internal/config"
	"github.com/couchcryptid/race-weather-etl/internal/domain"
	"github.com/couchcryptid/race-weather-etl/internal/observability"
)

// WeatherFetcher retrieves the nearest-hour observation for one coordinate
// and timestamp. Implementations degrade failures to an absent result.
type WeatherFetcher interface {
	Fetch(ctx context.Context, lat, lon float64, ts time.Time) domain.FetchResult
}

// FetchStage drains the fetch-request list in fixed-size windows, persisting
// each completed window as one chunk artifact. A window is all-or-nothing:
// interruption mid-window leaves no artifact, and the next run re-fetches
// that window from its start offset.
type FetchStage struct {
	store      *chunkstore.Store
	fetcher    WeatherFetcher
	pool       pond.ResultPool[domain.WindRow]
	windowSize int
	cooldown   time.Duration
	loc        *time.Location
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics

	windowsDone atomic.Int64
}

// NewFetchStage creates the chunk processor. Per-row fetches within a window
// fan out over a bounded worker pool; results are re-associated with their
// request by submission order before the window is persisted.
func NewFetchStage(
	store *chunkstore.Store,
	fetcher WeatherFetcher,
	cfg *config.Config,
	clock clockwork.Clock,
	logger *slog.Logger,
	metrics *observability.Metrics,
) (*FetchStage, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return &FetchStage{
		store:      store,
		fetcher:    fetcher,
		pool:       pond.NewResultPool[domain.WindRow](cfg.FetchConcurrency),
		windowSize: cfg.WindowSize,
		cooldown:   cfg.Cooldown,
		loc:        loc,
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
	}, nil
}

// WindowsCompleted returns the number of windows persisted by this run.
func (s *FetchStage) WindowsCompleted() int64 {
	return s.windowsDone.Load()
}

// Run processes all unfetched request rows, resuming from the offset implied
// by existing chunk artifacts. Rerunning over a fully fetched request list
// writes nothing.
func (s *FetchStage) Run(ctx context.Context, requests []domain.FetchRequest) error {
	total := len(requests)

	next, err := s.store.NextStart()
	if err != nil {
		return err
	}
	if next > total {
		return fmt.Errorf("resume offset %d beyond request count %d: artifacts belong to a different request list", next, total)
	}
	if next == total {
		s.logger.Info("all request rows already fetched", "rows", total)
		return nil
	}

	s.logger.Info("fetch stage started",
		"rows", total,
		"resume_offset", next,
		"window_size", s.windowSize,
	)
	s.metrics.FetchRunning.Set(1)
	defer s.metrics.FetchRunning.Set(0)

	for start := next; start < total; start += s.windowSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := min(start+s.windowSize, total)
		bounds := chunkstore.Bounds{Start: start, End: end}

		windowStart := time.Now()
		rows, err := s.fetchWindow(ctx, requests[start:end])
		if err != nil {
			return fmt.Errorf("window %s: %w", bounds, err)
		}
		// Never persist a window that was cut short by cancellation.
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := s.store.Write(bounds, rows); err != nil {
			return err
		}
		s.metrics.ChunksWritten.Inc()
		s.metrics.WindowDuration.Observe(time.Since(windowStart).Seconds())
		s.windowsDone.Add(1)
		s.logger.Info("window completed", "bounds", bounds.String(), "remaining", total-end)

		if end < total {
			if !sleepWithContext(ctx, s.clock, s.cooldown) {
				return ctx.Err()
			}
		}
	}

	s.logger.Info("fetch stage finished", "windows", s.windowsDone.Load())
	return nil
}

// fetchWindow fans the window's rows out over the worker pool and collects
// results in submission order.
func (s *FetchStage) fetchWindow(ctx context.Context, requests []domain.FetchRequest) ([]domain.WindRow, error) {
	group := s.pool.NewGroupContext(ctx)
	for _, req := range requests {
		group.SubmitErr(func() (domain.WindRow, error) {
			return s.fetchRow(ctx, req)
		})
	}
	return group.Wait()
}

func (s *FetchStage) fetchRow(ctx context.Context, req domain.FetchRequest) (domain.WindRow, error) {
	row := domain.WindRow{FetchRequest: req}

	ts, err := domain.ParseLocalTime(req.TimeLocal, s.loc)
	if err != nil {
		// A malformed request list is corrupt input, not a transient failure.
		return row, err
	}

	result := s.fetcher.Fetch(ctx, req.Latitude, req.Longitude, ts)
	if result.Status != domain.FetchOK {
		s.logger.Debug("no observation for row",
			"sailor", req.Sailor,
			"time", req.TimeLocal,
			"status", result.Status.String(),
		)
		return row, nil
	}

	row.WindSpeed = &result.Obs.WindSpeed
	row.WindDirection = &result.Obs.WindDirection
	row.WindGust = &result.Obs.WindGust
	return row, nil
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
