package warehouse_test

import (
	"database/sql"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/race-weather-etl/internal/domain"
	"github.com/couchcryptid/race-weather-etl/internal/observability"
	"github.com/couchcryptid/race-weather-etl/internal/warehouse"
)

func newLoader(t *testing.T) (*warehouse.Loader, *sql.DB) {
	t.Helper()
	db, err := warehouse.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return warehouse.NewLoader(db, logger, observability.NewMetricsForTesting()), db
}

func enrichedRow(sailor, timeLocal string, ranking int) domain.EnrichedRow {
	return domain.EnrichedRow{
		ReportRow: domain.ReportRow{
			TimeLocal: timeLocal,
			Latitude:  45.0,
			Longitude: -1.0,
			Sailor:    sailor,
			Nation:    "FRA",
			Team:      "Macif",
			Sail:      "FRA 30",
			Ranking:   ranking,

			Heading30Min: 220, HeadingLastReport: 225, Heading24H: 230,
			Speed30Min: 18.2, SpeedLastReport: 19.1, Speed24H: 17.5,
			VMG30Min: 15.0, VMGLastReport: 15.5, VMG24H: 14.2,
			Dist30Min: 9.1, DistLastReport: 4.8, Dist24H: 420.0,
			DTF: 23100.5, DTL: 0,
		},
		WindSpeed:     10.0,
		WindDirection: 270,
		WindGust:      20.0,
	}
}

func count(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestLoad_InsertsDimensionsAndFact(t *testing.T) {
	loader, db := newLoader(t)

	stats, err := loader.Load(t.Context(), []domain.EnrichedRow{
		enrichedRow("Dalin", "2024-11-10 22:00:00", 1),
	})
	require.NoError(t, err)
	assert.Equal(t, warehouse.LoadStats{Inserted: 1, Skipped: 0}, stats)

	for _, table := range []string{"sailors", "times", "positions", "performances", "conditions", "fact_race"} {
		assert.Equal(t, 1, count(t, db, table), table)
	}

	var ranking int
	require.NoError(t, db.QueryRow("SELECT ranking FROM fact_race").Scan(&ranking))
	assert.Equal(t, 1, ranking)
}

func TestLoad_SecondRunInsertsNothing(t *testing.T) {
	loader, db := newLoader(t)

	rows := []domain.EnrichedRow{
		enrichedRow("Dalin", "2024-11-10 22:00:00", 1),
		enrichedRow("Simon", "2024-11-10 22:00:00", 2),
	}

	first, err := loader.Load(t.Context(), rows)
	require.NoError(t, err)
	assert.Equal(t, warehouse.LoadStats{Inserted: 2, Skipped: 0}, first)

	second, err := loader.Load(t.Context(), rows)
	require.NoError(t, err)
	assert.Equal(t, warehouse.LoadStats{Inserted: 0, Skipped: 2}, second)

	assert.Equal(t, 2, count(t, db, "fact_race"))
	assert.Equal(t, 2, count(t, db, "sailors"))
	assert.Equal(t, 1, count(t, db, "times"), "both rows share one timestamp")
	assert.Equal(t, 1, count(t, db, "positions"), "both rows share one position")
}

func TestLoad_DimensionsDeduplicateAcrossRows(t *testing.T) {
	loader, db := newLoader(t)

	// Same sailor at two timestamps: two facts, one sailor row.
	rows := []domain.EnrichedRow{
		enrichedRow("Dalin", "2024-11-10 22:00:00", 1),
		enrichedRow("Dalin", "2024-11-11 02:00:00", 1),
	}

	stats, err := loader.Load(t.Context(), rows)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Inserted)

	assert.Equal(t, 1, count(t, db, "sailors"))
	assert.Equal(t, 2, count(t, db, "times"))
	assert.Equal(t, 2, count(t, db, "fact_race"))
}

func TestLoad_DuplicateRowWithinRunIsSkipped(t *testing.T) {
	loader, db := newLoader(t)

	row := enrichedRow("Dalin", "2024-11-10 22:00:00", 1)
	stats, err := loader.Load(t.Context(), []domain.EnrichedRow{row, row})
	require.NoError(t, err)

	assert.Equal(t, warehouse.LoadStats{Inserted: 1, Skipped: 1}, stats)
	assert.Equal(t, 1, count(t, db, "fact_race"))
}

func TestLoad_FactKeyIncludesAllDimensions(t *testing.T) {
	loader, db := newLoader(t)

	a := enrichedRow("Dalin", "2024-11-10 22:00:00", 1)
	b := a
	b.WindSpeed = 12.3 // different conditions dimension: distinct fact

	stats, err := loader.Load(t.Context(), []domain.EnrichedRow{a, b})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Inserted)
	assert.Equal(t, 2, count(t, db, "conditions"))
	assert.Equal(t, 2, count(t, db, "fact_race"))
}

func TestLoad_ReferentialIntegrity(t *testing.T) {
	loader, db := newLoader(t)

	_, err := loader.Load(t.Context(), []domain.EnrichedRow{
		enrichedRow("Dalin", "2024-11-10 22:00:00", 1),
	})
	require.NoError(t, err)

	// Every fact's dimension references resolve.
	var dangling int
	require.NoError(t, db.QueryRow(`
		SELECT COUNT(*) FROM fact_race f
		LEFT JOIN sailors s ON s.id = f.sailor_id
		LEFT JOIN times t ON t.id = f.time_id
		LEFT JOIN positions p ON p.id = f.position_id
		LEFT JOIN performances pf ON pf.id = f.performance_id
		LEFT JOIN conditions c ON c.id = f.conditions_id
		WHERE s.id IS NULL OR t.id IS NULL OR p.id IS NULL OR pf.id IS NULL OR c.id IS NULL
	`).Scan(&dangling))
	assert.Zero(t, dangling)
}
