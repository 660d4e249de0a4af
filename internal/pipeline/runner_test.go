package pipeline_test

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/race-weather-etl/internal/chunkstore"
	"github.com/couchcryptid/race-weather-etl/internal/config"
	"github.com/couchcryptid/race-weather-etl/internal/dataset"
	"github.com/couchcryptid/race-weather-etl/internal/domain"
	"github.com/couchcryptid/race-weather-etl/internal/observability"
	"github.com/couchcryptid/race-weather-etl/internal/pipeline"
	"github.com/couchcryptid/race-weather-etl/internal/warehouse"
)

type mockLoader struct {
	rows []domain.EnrichedRow
}

func (m *mockLoader) Load(_ context.Context, rows []domain.EnrichedRow) (warehouse.LoadStats, error) {
	m.rows = append(m.rows, rows...)
	return warehouse.LoadStats{Inserted: len(rows)}, nil
}

type mockPublisher struct {
	batches [][]domain.EnrichedRow
}

func (m *mockPublisher) PublishBatch(_ context.Context, rows []domain.EnrichedRow) error {
	m.batches = append(m.batches, rows)
	return nil
}

func writeReports(t *testing.T, path string, reports []domain.ReportRow) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := csv.NewWriter(f)
	require.NoError(t, w.Write([]string{
		"Time in France", "Latitude", "Longitude", "Sailor", "Nation", "Team", "Sail", "Ranking",
		"Heading 30min", "Heading Last Report", "Heading 24h",
		"Speed 30min", "Speed Last Report", "Speed 24h",
		"VMG 30min", "VMG Last Report", "VMG 24h",
		"Dist 30min", "Dist Last Report", "Dist 24h",
		"DTF", "DTL",
	}))
	ff := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	for _, r := range reports {
		require.NoError(t, w.Write([]string{
			r.TimeLocal, ff(r.Latitude), ff(r.Longitude), r.Sailor, r.Nation, r.Team, r.Sail,
			strconv.Itoa(r.Ranking),
			strconv.Itoa(r.Heading30Min), strconv.Itoa(r.HeadingLastReport), strconv.Itoa(r.Heading24H),
			ff(r.Speed30Min), ff(r.SpeedLastReport), ff(r.Speed24H),
			ff(r.VMG30Min), ff(r.VMGLastReport), ff(r.VMG24H),
			ff(r.Dist30Min), ff(r.DistLastReport), ff(r.Dist24H),
			ff(r.DTF), ff(r.DTL),
		}))
	}
	w.Flush()
	require.NoError(t, w.Error())
}

func sampleReports() []domain.ReportRow {
	base := domain.ReportRow{
		TimeLocal:         "2024-11-10 10:00:00",
		Nation:            "FRA",
		Team:              "Team Alpha",
		Sail:              "12",
		Ranking:           1,
		Heading30Min:      100,
		HeadingLastReport: 110,
		Heading24H:        120,
		Speed30Min:        18.52,
		SpeedLastReport:   20.3,
		Speed24H:          19.1,
		VMG30Min:          15.5,
		VMGLastReport:     16.1,
		VMG24H:            14.9,
		Dist30Min:         9.3,
		DistLastReport:    10.1,
		Dist24H:           440.2,
		DTF:               12034.5,
		DTL:               0,
	}
	a := base
	a.Sailor = "Sailor A"
	a.Latitude = 45.00004
	a.Longitude = -1.5
	b := base
	b.Sailor = "Sailor B"
	b.Latitude = 44.99996
	b.Longitude = -2.25
	b.Ranking = 2
	return []domain.ReportRow{a, b}
}

func newRunner(t *testing.T, loader pipeline.WarehouseLoader, publisher pipeline.Publisher) (*pipeline.Runner, *config.Config) {
	t.Helper()

	dir := t.TempDir()
	cfg := testConfig(filepath.Join(dir, "chunks"))
	cfg.ReportFile = filepath.Join(dir, "reports.csv")
	cfg.RequestFile = filepath.Join(dir, "requests.csv")
	cfg.WindFile = filepath.Join(dir, "wind.csv")
	cfg.EnrichedFile = filepath.Join(dir, "enriched.csv")

	writeReports(t, cfg.ReportFile, sampleReports())

	store, err := chunkstore.New(cfg.ChunksDir, cfg.ChunkPrefix, testLogger())
	require.NoError(t, err)
	stage, err := pipeline.NewFetchStage(store, &stubFetcher{}, cfg, clockwork.NewRealClock(), testLogger(), observability.NewMetricsForTesting())
	require.NoError(t, err)

	return pipeline.NewRunner(cfg, store, stage, loader, publisher, testLogger(), observability.NewMetricsForTesting()), cfg
}

func TestRunner_Run_EndToEnd(t *testing.T) {
	loader := &mockLoader{}
	publisher := &mockPublisher{}
	runner, cfg := newRunner(t, loader, publisher)

	require.NoError(t, runner.Run(context.Background()))

	// Every intermediate artifact exists.
	for _, path := range []string{cfg.RequestFile, cfg.WindFile, cfg.EnrichedFile} {
		_, err := os.Stat(path)
		assert.NoError(t, err, path)
	}

	enriched, err := dataset.ReadEnriched(cfg.EnrichedFile)
	require.NoError(t, err)
	require.Len(t, enriched, 2)
	assert.Equal(t, "Sailor A", enriched[0].Sailor)
	assert.Equal(t, 45.0, enriched[0].Latitude)

	assert.Len(t, loader.rows, 2)
	require.Len(t, publisher.batches, 1)
	assert.Len(t, publisher.batches[0], 2)
}

func TestRunner_Run_SecondRunFetchesNothing(t *testing.T) {
	loader := &mockLoader{}
	runner, cfg := newRunner(t, loader, nil)

	require.NoError(t, runner.Run(context.Background()))

	next, total, err := runner.Offset()
	require.NoError(t, err)
	assert.Equal(t, total, next)

	// Rerunning is idempotent end to end.
	require.NoError(t, runner.Run(context.Background()))
	enriched, err := dataset.ReadEnriched(cfg.EnrichedFile)
	require.NoError(t, err)
	assert.Len(t, enriched, 2)
}

func TestRunner_Enrich_NilPublisher(t *testing.T) {
	runner, _ := newRunner(t, &mockLoader{}, nil)

	require.NoError(t, runner.PrepareRequests(context.Background()))
	require.NoError(t, runner.Fetch(context.Background()))
	require.NoError(t, runner.Merge(context.Background()))
	require.NoError(t, runner.Enrich(context.Background()))
}

func TestRunner_CheckReadiness(t *testing.T) {
	runner, _ := newRunner(t, &mockLoader{}, nil)

	require.Error(t, runner.CheckReadiness(context.Background()))

	require.NoError(t, runner.PrepareRequests(context.Background()))
	require.NoError(t, runner.Fetch(context.Background()))

	assert.NoError(t, runner.CheckReadiness(context.Background()))

	p := runner.Progress(context.Background())
	assert.Equal(t, "idle", p.Stage)
	assert.Equal(t, int64(1), p.WindowsCompleted)
	assert.Equal(t, 2, p.ResumeOffset)
	assert.Equal(t, 2, p.TotalRows)
}
