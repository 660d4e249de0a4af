package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/race-weather-etl/internal/domain"
	"github.com/couchcryptid/race-weather-etl/internal/observability"
)

// Loader performs the dimensional load. Each enriched row is applied in its
// own transaction: every dimension is looked up or created by natural key,
// then the fact is inserted only if no fact with the same five dimension
// references exists. Reloading the same dataset inserts nothing.
type Loader struct {
	db      *sql.DB
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewLoader creates a dimensional loader over an open warehouse.
func NewLoader(db *sql.DB, logger *slog.Logger, metrics *observability.Metrics) *Loader {
	return &Loader{db: db, logger: logger, metrics: metrics}
}

// LoadStats summarizes one load run.
type LoadStats struct {
	Inserted int
	Skipped  int
}

// Load applies all rows in dataset order. Storage errors are fatal for the
// run: the failing row's transaction rolls back and the error propagates.
func (l *Loader) Load(ctx context.Context, rows []domain.EnrichedRow) (LoadStats, error) {
	var stats LoadStats
	for i, row := range rows {
		inserted, err := l.loadRow(ctx, row)
		if err != nil {
			return stats, fmt.Errorf("load row %d: %w", i, err)
		}
		if inserted {
			stats.Inserted++
			l.metrics.FactsInserted.Inc()
		} else {
			stats.Skipped++
			l.metrics.FactsSkipped.Inc()
			l.logger.Info("fact already exists, skipping",
				"sailor", row.Sailor,
				"time", row.TimeLocal,
			)
		}
	}
	l.logger.Info("load complete", "inserted", stats.Inserted, "skipped", stats.Skipped)
	return stats, nil
}

// loadRow resolves dimensions and inserts the fact inside one transaction,
// so a crash mid-row never leaves a fact referencing an uncommitted
// dimension. Reports whether a new fact was inserted.
func (l *Loader) loadRow(ctx context.Context, row domain.EnrichedRow) (bool, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	sailorID, err := l.lookupOrCreate(ctx, tx, "sailors",
		`SELECT id FROM sailors WHERE name = ?`,
		[]any{row.Sailor},
		`INSERT INTO sailors (name, nation, team, sail) VALUES (?, ?, ?, ?)`,
		[]any{row.Sailor, row.Nation, row.Team, row.Sail},
	)
	if err != nil {
		return false, err
	}

	timeID, err := l.lookupOrCreate(ctx, tx, "times",
		`SELECT id FROM times WHERE timestamp = ?`,
		[]any{row.TimeLocal},
		`INSERT INTO times (timestamp) VALUES (?)`,
		[]any{row.TimeLocal},
	)
	if err != nil {
		return false, err
	}

	positionID, err := l.lookupOrCreate(ctx, tx, "positions",
		`SELECT id FROM positions WHERE latitude = ? AND longitude = ?`,
		[]any{row.Latitude, row.Longitude},
		`INSERT INTO positions (latitude, longitude) VALUES (?, ?)`,
		[]any{row.Latitude, row.Longitude},
	)
	if err != nil {
		return false, err
	}

	perfKey := []any{
		row.Heading30Min, row.HeadingLastReport, row.Heading24H,
		row.Speed30Min, row.SpeedLastReport, row.Speed24H,
		row.VMG30Min, row.VMGLastReport, row.VMG24H,
		row.Dist30Min, row.DistLastReport, row.Dist24H,
		row.DTF, row.DTL,
	}
	performanceID, err := l.lookupOrCreate(ctx, tx, "performances",
		`SELECT id FROM performances
		 WHERE heading_30min = ? AND heading_last_report = ? AND heading_24h = ?
		   AND speed_30min = ? AND speed_last_report = ? AND speed_24h = ?
		   AND vmg_30min = ? AND vmg_last_report = ? AND vmg_24h = ?
		   AND dist_30min = ? AND dist_last_report = ? AND dist_24h = ?
		   AND dtf = ? AND dtl = ?`,
		perfKey,
		`INSERT INTO performances (
			heading_30min, heading_last_report, heading_24h,
			speed_30min, speed_last_report, speed_24h,
			vmg_30min, vmg_last_report, vmg_24h,
			dist_30min, dist_last_report, dist_24h,
			dtf, dtl
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		perfKey,
	)
	if err != nil {
		return false, err
	}

	conditionsID, err := l.lookupOrCreate(ctx, tx, "conditions",
		`SELECT id FROM conditions WHERE wind_speed = ? AND wind_direction = ? AND wind_gust = ?`,
		[]any{row.WindSpeed, row.WindDirection, row.WindGust},
		`INSERT INTO conditions (wind_speed, wind_direction, wind_gust) VALUES (?, ?, ?)`,
		[]any{row.WindSpeed, row.WindDirection, row.WindGust},
	)
	if err != nil {
		return false, err
	}

	inserted, err := l.insertFact(ctx, tx, factKey{
		sailorID:      sailorID,
		timeID:        timeID,
		positionID:    positionID,
		performanceID: performanceID,
		conditionsID:  conditionsID,
	}, row.Ranking)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

type factKey struct {
	sailorID      int64
	timeID        int64
	positionID    int64
	performanceID int64
	conditionsID  int64
}

// lookupOrCreate queries a dimension by natural key and inserts it on miss.
// Safe under the single-writer assumption; the UNIQUE constraints back it up.
func (l *Loader) lookupOrCreate(ctx context.Context, tx *sql.Tx, table, selectSQL string, selectArgs []any, insertSQL string, insertArgs []any) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, selectSQL, selectArgs...).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("lookup %s: %w", table, err)
	}

	res, err := tx.ExecContext(ctx, insertSQL, insertArgs...)
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", table, err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read %s id: %w", table, err)
	}
	l.metrics.DimensionsCreated.WithLabelValues(table).Inc()
	return id, nil
}

// insertFact inserts the fact unless one with the same dimension references
// already exists. Reports whether a row was inserted.
func (l *Loader) insertFact(ctx context.Context, tx *sql.Tx, key factKey, ranking int) (bool, error) {
	var existing int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM fact_race
		 WHERE sailor_id = ? AND time_id = ? AND position_id = ? AND performance_id = ? AND conditions_id = ?`,
		key.sailorID, key.timeID, key.positionID, key.performanceID, key.conditionsID,
	).Scan(&existing)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("lookup fact: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO fact_race (sailor_id, time_id, position_id, performance_id, conditions_id, ranking)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		key.sailorID, key.timeID, key.positionID, key.performanceID, key.conditionsID, ranking,
	)
	if err != nil {
		return false, fmt.Errorf("insert fact: %w", err)
	}
	return true, nil
}
