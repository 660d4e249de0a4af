// Package dataset reads and writes the tabular artifacts exchanged between
// pipeline stages: the parsed report dataset, the fetch-request list, the
// consolidated wind dataset, and the enriched dataset.
//
// All files are CSV with a header row. Column names match the upstream
// parser's output, so artifacts remain interchangeable with files produced
// by earlier revisions of the pipeline. Writers go through a temp file and
// rename so a killed run never leaves a half-written artifact behind.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/couchcryptid/race-weather-etl/internal/domain"
)

// Column names shared across artifacts.
const (
	colTime = "Time in France"
	colLat  = "Latitude"
	colLon  = "Longitude"

	colSailor  = "Sailor"
	colNation  = "Nation"
	colTeam    = "Team"
	colSail    = "Sail"
	colRanking = "Ranking"

	colHeading30Min = "Heading 30min"
	colHeadingLast  = "Heading Last Report"
	colHeading24H   = "Heading 24h"
	colSpeed30Min   = "Speed 30min"
	colSpeedLast    = "Speed Last Report"
	colSpeed24H     = "Speed 24h"
	colVMG30Min     = "VMG 30min"
	colVMGLast      = "VMG Last Report"
	colVMG24H       = "VMG 24h"
	colDist30Min    = "Dist 30min"
	colDistLast     = "Dist Last Report"
	colDist24H      = "Dist 24h"
	colDTF          = "DTF"
	colDTL          = "DTL"

	colWindSpeed = "Wind Speed"
	colWindDir   = "Wind Direction"
	colWindGust  = "Wind Gust"
)

var (
	requestHeader = []string{colTime, colLat, colLon, colSailor}

	windHeader = []string{colTime, colLat, colLon, colSailor, colWindSpeed, colWindDir, colWindGust}

	reportHeader = []string{
		colTime, colLat, colLon, colSailor, colNation, colTeam, colSail, colRanking,
		colHeading30Min, colHeadingLast, colHeading24H,
		colSpeed30Min, colSpeedLast, colSpeed24H,
		colVMG30Min, colVMGLast, colVMG24H,
		colDist30Min, colDistLast, colDist24H,
		colDTF, colDTL,
	}

	enrichedHeader = []string{
		colTime, colLat, colLon, colSailor, colWindSpeed, colWindDir, colWindGust,
		colNation, colTeam, colSail, colRanking,
		colHeading30Min, colHeadingLast, colHeading24H,
		colSpeed30Min, colSpeedLast, colSpeed24H,
		colVMG30Min, colVMGLast, colVMG24H,
		colDist30Min, colDistLast, colDist24H,
		colDTF, colDTL,
	}
)

// WindHeader returns the column set of a wind chunk artifact. The chunk
// store uses it to emit and verify artifact schemas.
func WindHeader() []string {
	out := make([]string, len(windHeader))
	copy(out, windHeader)
	return out
}

// columns maps header names to record indices for one parsed file.
type columns map[string]int

func indexHeader(header, required []string) (columns, error) {
	cols := make(columns, len(header))
	for i, name := range header {
		cols[name] = i
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}
	return cols, nil
}

func (c columns) str(record []string, name string) string {
	return record[c[name]]
}

func (c columns) float(record []string, name string) (float64, error) {
	v, err := strconv.ParseFloat(record[c[name]], 64)
	if err != nil {
		return 0, fmt.Errorf("column %q: %w", name, err)
	}
	return v, nil
}

func (c columns) int(record []string, name string) (int, error) {
	v, err := strconv.Atoi(record[c[name]])
	if err != nil {
		return 0, fmt.Errorf("column %q: %w", name, err)
	}
	return v, nil
}

// optFloat parses an optional float column; empty string means absent.
func (c columns) optFloat(record []string, name string) (*float64, error) {
	s := record[c[name]]
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("column %q: %w", name, err)
	}
	return &v, nil
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func formatFixed(v float64, p int) string { return strconv.FormatFloat(v, 'f', p, 64) }

func formatOptFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

// readAll opens a CSV file and decodes every data row through decode.
func readAll[T any](path string, required []string, decode func(columns, []string) (T, error)) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	cols, err := indexHeader(header, required)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var out []T
	for line := 2; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		row, err := decode(cols, record)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		out = append(out, row)
	}
	return out, nil
}

// writeAll writes a header and records to path atomically (temp + rename).
func writeAll(path string, header []string, records [][]string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		tmp.Close()
		return fmt.Errorf("write header: %w", err)
	}
	if err := w.WriteAll(records); err != nil {
		tmp.Close()
		return fmt.Errorf("write rows: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// ReadReports loads the parsed leaderboard dataset.
func ReadReports(path string) ([]domain.ReportRow, error) {
	return readAll(path, reportHeader, decodeReportRow)
}

func decodeReportRow(cols columns, record []string) (domain.ReportRow, error) {
	var (
		row domain.ReportRow
		err error
	)

	row.TimeLocal = cols.str(record, colTime)
	row.Sailor = cols.str(record, colSailor)
	row.Nation = cols.str(record, colNation)
	row.Team = cols.str(record, colTeam)
	row.Sail = cols.str(record, colSail)

	if row.Latitude, err = cols.float(record, colLat); err != nil {
		return row, err
	}
	if row.Longitude, err = cols.float(record, colLon); err != nil {
		return row, err
	}
	if row.Ranking, err = cols.int(record, colRanking); err != nil {
		return row, err
	}
	if row.Heading30Min, err = cols.int(record, colHeading30Min); err != nil {
		return row, err
	}
	if row.HeadingLastReport, err = cols.int(record, colHeadingLast); err != nil {
		return row, err
	}
	if row.Heading24H, err = cols.int(record, colHeading24H); err != nil {
		return row, err
	}

	floats := []struct {
		dst  *float64
		name string
	}{
		{&row.Speed30Min, colSpeed30Min},
		{&row.SpeedLastReport, colSpeedLast},
		{&row.Speed24H, colSpeed24H},
		{&row.VMG30Min, colVMG30Min},
		{&row.VMGLastReport, colVMGLast},
		{&row.VMG24H, colVMG24H},
		{&row.Dist30Min, colDist30Min},
		{&row.DistLastReport, colDistLast},
		{&row.Dist24H, colDist24H},
		{&row.DTF, colDTF},
		{&row.DTL, colDTL},
	}
	for _, f := range floats {
		if *f.dst, err = cols.float(record, f.name); err != nil {
			return row, err
		}
	}
	return row, nil
}

// ReadRequests loads a fetch-request list.
func ReadRequests(path string) ([]domain.FetchRequest, error) {
	return readAll(path, requestHeader, decodeRequest)
}

func decodeRequest(cols columns, record []string) (domain.FetchRequest, error) {
	var (
		req domain.FetchRequest
		err error
	)
	req.TimeLocal = cols.str(record, colTime)
	req.Sailor = cols.str(record, colSailor)
	if req.Latitude, err = cols.float(record, colLat); err != nil {
		return req, err
	}
	if req.Longitude, err = cols.float(record, colLon); err != nil {
		return req, err
	}
	return req, nil
}

// WriteRequests derives the fetch-request list from report rows and writes
// it to path. Row order is preserved: chunk bounds index into this file.
func WriteRequests(path string, reports []domain.ReportRow) error {
	records := make([][]string, len(reports))
	for i, r := range reports {
		records[i] = []string{r.TimeLocal, formatFloat(r.Latitude), formatFloat(r.Longitude), r.Sailor}
	}
	return writeAll(path, requestHeader, records)
}

// ReadWind loads a consolidated wind dataset or a single chunk artifact.
func ReadWind(path string) ([]domain.WindRow, error) {
	return readAll(path, windHeader, decodeWindRow)
}

// decodeWindRow decodes one wind CSV record.
func decodeWindRow(cols columns, record []string) (domain.WindRow, error) {
	var (
		row domain.WindRow
		err error
	)
	row.TimeLocal = cols.str(record, colTime)
	row.Sailor = cols.str(record, colSailor)
	if row.Latitude, err = cols.float(record, colLat); err != nil {
		return row, err
	}
	if row.Longitude, err = cols.float(record, colLon); err != nil {
		return row, err
	}
	if row.WindSpeed, err = cols.optFloat(record, colWindSpeed); err != nil {
		return row, err
	}
	if row.WindDirection, err = cols.optFloat(record, colWindDir); err != nil {
		return row, err
	}
	if row.WindGust, err = cols.optFloat(record, colWindGust); err != nil {
		return row, err
	}
	return row, nil
}

// EncodeWindRow encodes one wind row in WindHeader column order. Absent
// observations become empty cells.
func EncodeWindRow(w domain.WindRow) []string {
	return []string{
		w.TimeLocal,
		formatFloat(w.Latitude),
		formatFloat(w.Longitude),
		w.Sailor,
		formatOptFloat(w.WindSpeed),
		formatOptFloat(w.WindDirection),
		formatOptFloat(w.WindGust),
	}
}

// WriteEnriched writes the joined dataset. Coordinates are emitted at join
// precision and wind speeds at one decimal, matching the values the loader
// will key dimensions on.
func WriteEnriched(path string, rows []domain.EnrichedRow) error {
	records := make([][]string, len(rows))
	for i, r := range rows {
		records[i] = []string{
			r.TimeLocal,
			formatFixed(r.Latitude, 4),
			formatFixed(r.Longitude, 4),
			r.Sailor,
			formatFixed(r.WindSpeed, 1),
			formatFloat(r.WindDirection),
			formatFixed(r.WindGust, 1),
			r.Nation,
			r.Team,
			r.Sail,
			strconv.Itoa(r.Ranking),
			strconv.Itoa(r.Heading30Min),
			strconv.Itoa(r.HeadingLastReport),
			strconv.Itoa(r.Heading24H),
			formatFloat(r.Speed30Min),
			formatFloat(r.SpeedLastReport),
			formatFloat(r.Speed24H),
			formatFloat(r.VMG30Min),
			formatFloat(r.VMGLastReport),
			formatFloat(r.VMG24H),
			formatFloat(r.Dist30Min),
			formatFloat(r.DistLastReport),
			formatFloat(r.Dist24H),
			formatFloat(r.DTF),
			formatFloat(r.DTL),
		}
	}
	return writeAll(path, enrichedHeader, records)
}

// ReadEnriched loads the joined dataset for the dimensional loader.
func ReadEnriched(path string) ([]domain.EnrichedRow, error) {
	return readAll(path, enrichedHeader, decodeEnrichedRow)
}

func decodeEnrichedRow(cols columns, record []string) (domain.EnrichedRow, error) {
	report, err := decodeReportRow(cols, record)
	if err != nil {
		return domain.EnrichedRow{}, err
	}
	row := domain.EnrichedRow{ReportRow: report}
	if row.WindSpeed, err = cols.float(record, colWindSpeed); err != nil {
		return row, err
	}
	if row.WindDirection, err = cols.float(record, colWindDir); err != nil {
		return row, err
	}
	if row.WindGust, err = cols.float(record, colWindGust); err != nil {
		return row, err
	}
	return row, nil
}
