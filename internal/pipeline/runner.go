package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/couchcryptid/race-weather-etl/internal/chunkstore"
	"github.com/couchcryptid/race-weather-etl/internal/config"
	"github.com/couchcryptid/race-weather-etl/internal/dataset"
	"github.com/couchcryptid/race-weather-etl/internal/domain"
	"github.com/couchcryptid/race-weather-etl/internal/observability"
	"github.com/couchcryptid/race-weather-etl/internal/warehouse"
)

// Publisher delivers enriched rows to a downstream sink.
type Publisher interface {
	PublishBatch(ctx context.Context, rows []domain.EnrichedRow) error
}

// WarehouseLoader persists enriched rows into the dimensional store.
type WarehouseLoader interface {
	Load(ctx context.Context, rows []domain.EnrichedRow) (warehouse.LoadStats, error)
}

// RunProgress is a point-in-time snapshot of how far a run has advanced.
type RunProgress struct {
	Stage            string
	WindowsCompleted int64
	ResumeOffset     int
	TotalRows        int
}

// Runner wires the pipeline stages over the configured artifact locations.
// Each stage method is independently invocable so an operator can rerun any
// step; rerunning a completed stage is a no-op for fetch and an idempotent
// overwrite for the others.
type Runner struct {
	cfg       *config.Config
	store     *chunkstore.Store
	fetch     *FetchStage
	loader    WarehouseLoader
	publisher Publisher
	logger    *slog.Logger
	metrics   *observability.Metrics

	mu        sync.Mutex
	stage     string
	totalRows atomic.Int64
}

// NewRunner assembles the stage orchestrator. publisher may be nil when no
// downstream sink is configured.
func NewRunner(
	cfg *config.Config,
	store *chunkstore.Store,
	fetch *FetchStage,
	loader WarehouseLoader,
	publisher Publisher,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *Runner {
	return &Runner{
		cfg:       cfg,
		store:     store,
		fetch:     fetch,
		loader:    loader,
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
		stage:     "idle",
	}
}

func (r *Runner) setStage(name string) {
	r.mu.Lock()
	r.stage = name
	r.mu.Unlock()
}

// PrepareRequests projects the report dataset down to the fetch-request list
// and writes it to the configured request file.
func (r *Runner) PrepareRequests(_ context.Context) error {
	r.setStage("prepare")
	defer r.setStage("idle")

	reports, err := dataset.ReadReports(r.cfg.ReportFile)
	if err != nil {
		return fmt.Errorf("reading report dataset: %w", err)
	}
	if err := dataset.WriteRequests(r.cfg.RequestFile, reports); err != nil {
		return fmt.Errorf("writing request list: %w", err)
	}
	r.logger.Info("request list written", "path", r.cfg.RequestFile, "rows", len(reports))
	return nil
}

// Fetch resumes the windowed weather fetch over the request list.
func (r *Runner) Fetch(ctx context.Context) error {
	r.setStage("fetch")
	defer r.setStage("idle")

	requests, err := dataset.ReadRequests(r.cfg.RequestFile)
	if err != nil {
		return fmt.Errorf("reading request list: %w", err)
	}
	r.totalRows.Store(int64(len(requests)))

	return r.fetch.Run(ctx, requests)
}

// Merge combines all chunk artifacts into the single wind dataset.
func (r *Runner) Merge(_ context.Context) error {
	r.setStage("merge")
	defer r.setStage("idle")

	rows, err := r.store.Merge(r.cfg.WindFile)
	if err != nil {
		return fmt.Errorf("merging chunks: %w", err)
	}
	r.logger.Info("wind dataset written", "path", r.cfg.WindFile, "rows", rows)
	return nil
}

// Enrich joins the wind dataset back onto the report dataset and writes the
// enriched output. When a sink is configured the enriched rows are also
// published downstream.
func (r *Runner) Enrich(ctx context.Context) error {
	r.setStage("enrich")
	defer r.setStage("idle")

	wind, err := dataset.ReadWind(r.cfg.WindFile)
	if err != nil {
		return fmt.Errorf("reading wind dataset: %w", err)
	}
	reports, err := dataset.ReadReports(r.cfg.ReportFile)
	if err != nil {
		return fmt.Errorf("reading report dataset: %w", err)
	}

	enriched := domain.Enrich(wind, reports)
	if err := dataset.WriteEnriched(r.cfg.EnrichedFile, enriched); err != nil {
		return fmt.Errorf("writing enriched dataset: %w", err)
	}
	r.logger.Info("enriched dataset written",
		"path", r.cfg.EnrichedFile,
		"wind_rows", len(wind),
		"enriched_rows", len(enriched),
	)

	if r.publisher != nil {
		if err := r.publisher.PublishBatch(ctx, enriched); err != nil {
			return fmt.Errorf("publishing enriched rows: %w", err)
		}
	}
	return nil
}

// Load upserts the enriched dataset into the dimensional warehouse.
func (r *Runner) Load(ctx context.Context) error {
	r.setStage("load")
	defer r.setStage("idle")

	rows, err := dataset.ReadEnriched(r.cfg.EnrichedFile)
	if err != nil {
		return fmt.Errorf("reading enriched dataset: %w", err)
	}

	stats, err := r.loader.Load(ctx, rows)
	if err != nil {
		return err
	}
	r.logger.Info("warehouse load finished", "inserted", stats.Inserted, "skipped", stats.Skipped)
	return nil
}

// Run executes the full pipeline end to end: prepare, fetch, merge, enrich,
// load. An interrupted run picks up from the last completed window on the
// next invocation.
func (r *Runner) Run(ctx context.Context) error {
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"prepare", r.PrepareRequests},
		{"fetch", r.Fetch},
		{"merge", r.Merge},
		{"enrich", r.Enrich},
		{"load", r.Load},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			return fmt.Errorf("%s stage: %w", step.name, err)
		}
	}
	return nil
}

// Offset reports the resume offset implied by existing chunk artifacts and
// the size of the request list.
func (r *Runner) Offset() (next, total int, err error) {
	next, err = r.store.NextStart()
	if err != nil {
		return 0, 0, err
	}
	requests, err := dataset.ReadRequests(r.cfg.RequestFile)
	if err != nil {
		return next, 0, err
	}
	return next, len(requests), nil
}

// CheckReadiness reports whether the run has made durable progress. A run is
// ready once at least one window has been persisted in this process.
func (r *Runner) CheckReadiness(_ context.Context) error {
	if r.fetch.WindowsCompleted() == 0 {
		return errors.New("no windows completed yet")
	}
	return nil
}

// Progress snapshots the current stage and fetch position.
func (r *Runner) Progress(_ context.Context) RunProgress {
	r.mu.Lock()
	stage := r.stage
	r.mu.Unlock()

	next, _ := r.store.NextStart()
	return RunProgress{
		Stage:            stage,
		WindowsCompleted: r.fetch.WindowsCompleted(),
		ResumeOffset:     next,
		TotalRows:        int(r.totalRows.Load()),
	}
}
