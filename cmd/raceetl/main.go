// Command raceetl runs the race weather enrichment pipeline: it derives
// fetch requests from the parsed leaderboard dataset, fetches historical wind
// observations in resumable windows, merges the chunk artifacts, joins them
// back onto the reports, and loads the result into the dimensional warehouse.
//
// Each stage is a subcommand so an interrupted run can be resumed or any
// step replayed on its own; `raceetl run` executes the whole pipeline.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	httpadapter "github.com/couchcryptid/race-weather-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/race-weather-etl/internal/adapter/kafka"
	"github.com/couchcryptid/race-weather-etl/internal/adapter/openmeteo"
	"github.com/couchcryptid/race-weather-etl/internal/chunkstore"
	"github.com/couchcryptid/race-weather-etl/internal/config"
	"github.com/couchcryptid/race-weather-etl/internal/observability"
	"github.com/couchcryptid/race-weather-etl/internal/pipeline"
	"github.com/couchcryptid/race-weather-etl/internal/warehouse"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds the wired pipeline plus the resources that need closing when a
// command finishes.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	runner *pipeline.Runner

	closers []func() error
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Error("close error", "error", err)
		}
	}
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	store, err := chunkstore.New(cfg.ChunksDir, cfg.ChunkPrefix, logger)
	if err != nil {
		return nil, err
	}

	fetcher, err := openmeteo.NewClient(cfg, clock, logger, metrics)
	if err != nil {
		return nil, err
	}

	stage, err := pipeline.NewFetchStage(store, fetcher, cfg, clock, logger, metrics)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}

	db, err := warehouse.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db.Close)
	loader := warehouse.NewLoader(db, logger, metrics)

	var publisher pipeline.Publisher
	if cfg.KafkaEnabled() {
		writer := kafkaadapter.NewWriter(cfg, logger, metrics)
		a.closers = append(a.closers, writer.Close)
		publisher = writer
		logger.Info("kafka sink enabled", "topic", cfg.KafkaSinkTopic)
	}

	a.runner = pipeline.NewRunner(cfg, store, stage, loader, publisher, logger, metrics)
	return a, nil
}

// withApp wraps a stage function with config loading, signal handling, and
// resource cleanup.
func withApp(fn func(ctx context.Context, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := fn(ctx, a); err != nil {
			a.logger.Error("run failed", "error", err)
			return err
		}
		return nil
	}
}

// statusAdapter bridges the runner's progress snapshot to the HTTP payload.
type statusAdapter struct {
	runner *pipeline.Runner
}

func (s statusAdapter) CheckReadiness(ctx context.Context) error {
	return s.runner.CheckReadiness(ctx)
}

func (s statusAdapter) Progress(ctx context.Context) httpadapter.Progress {
	p := s.runner.Progress(ctx)
	return httpadapter.Progress{
		Stage:            p.Stage,
		WindowsCompleted: p.WindowsCompleted,
		ResumeOffset:     p.ResumeOffset,
		TotalRows:        p.TotalRows,
	}
}

// serveDuring exposes health, readiness, progress, and metrics endpoints
// while fn runs, when HTTP_ADDR is configured.
func serveDuring(ctx context.Context, a *app, fn func(context.Context) error) error {
	if a.cfg.HTTPAddr == "" {
		return fn(ctx)
	}

	srv := httpadapter.NewServer(a.cfg.HTTPAddr, statusAdapter{runner: a.runner}, a.logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("http server shutdown error", "error", err)
		}
	}()

	return fn(ctx)
}

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "raceetl",
		Short:         "Resumable weather enrichment pipeline for race leaderboard data",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("loading %s: %w", envFile, err)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "environment file to load before reading config")

	root.AddCommand(
		&cobra.Command{
			Use:   "requests",
			Short: "Derive the fetch-request list from the report dataset",
			RunE: withApp(func(ctx context.Context, a *app) error {
				return a.runner.PrepareRequests(ctx)
			}),
		},
		&cobra.Command{
			Use:   "fetch",
			Short: "Fetch wind observations in resumable windows",
			RunE: withApp(func(ctx context.Context, a *app) error {
				return serveDuring(ctx, a, a.runner.Fetch)
			}),
		},
		&cobra.Command{
			Use:   "merge",
			Short: "Merge chunk artifacts into the wind dataset",
			RunE: withApp(func(ctx context.Context, a *app) error {
				return a.runner.Merge(ctx)
			}),
		},
		&cobra.Command{
			Use:   "enrich",
			Short: "Join wind observations onto the report dataset",
			RunE: withApp(func(ctx context.Context, a *app) error {
				return a.runner.Enrich(ctx)
			}),
		},
		&cobra.Command{
			Use:   "load",
			Short: "Load the enriched dataset into the warehouse",
			RunE: withApp(func(ctx context.Context, a *app) error {
				return a.runner.Load(ctx)
			}),
		},
		&cobra.Command{
			Use:   "run",
			Short: "Run the full pipeline end to end",
			RunE: withApp(func(ctx context.Context, a *app) error {
				return serveDuring(ctx, a, a.runner.Run)
			}),
		},
		&cobra.Command{
			Use:   "offset",
			Short: "Print the resume offset implied by existing chunk artifacts",
			RunE: withApp(func(_ context.Context, a *app) error {
				next, total, err := a.runner.Offset()
				if err != nil {
					return err
				}
				fmt.Printf("resume offset %d of %d request rows\n", next, total)
				return nil
			}),
		},
	)
	return root
}
