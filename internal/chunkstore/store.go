// Package chunkstore manages the write-once wind chunk artifacts that make
// the fetch stage resumable.
//
// Each artifact is a CSV file covering a contiguous [start,end) slice of the
// fetch-request list, named <prefix>_chunk_<start>_<end>.csv. The bounds in
// the name are the only checkpoint ledger: a restarted run recovers its
// position purely by listing the directory, so there is no separate state
// file to drift out of sync. Artifacts are never mutated or overwritten
// after creation.
package chunkstore

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"

	"github.com/couchcryptid/race-weather-etl/internal/dataset"
	"github.com/couchcryptid/race-weather-etl/internal/domain"
)

// boundsRe extracts the [start,end) bounds encoded in an artifact name.
var boundsRe = regexp.MustCompile(`_chunk_(\d+)_(\d+)\.csv$`)

// ErrSchemaMismatch is returned by Merge when an artifact's header differs
// from the first artifact's header.
var ErrSchemaMismatch = errors.New("chunk schema mismatch")

// Bounds is the half-open row range [Start,End) an artifact covers.
type Bounds struct {
	Start int
	End   int
}

func (b Bounds) String() string {
	return fmt.Sprintf("[%d,%d)", b.Start, b.End)
}

// Store reads and writes chunk artifacts in a single directory.
type Store struct {
	dir    string
	prefix string
	logger *slog.Logger
}

// New creates the artifact directory if needed and returns a store over it.
func New(dir, prefix string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create chunks dir: %w", err)
	}
	return &Store{dir: dir, prefix: prefix, logger: logger}, nil
}

func (s *Store) path(b Bounds) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_chunk_%d_%d.csv", s.prefix, b.Start, b.End))
}

// List returns the bounds of all existing artifacts for this store's prefix,
// sorted by ascending start then end. Sorting is over the numeric bounds,
// not filenames, so resumption is robust to out-of-order creation.
func (s *Store) List() ([]Bounds, error) {
	pattern := filepath.Join(s.dir, s.prefix+"_chunk_*.csv")
	names, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}

	var out []Bounds
	for _, name := range names {
		m := boundsRe.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		start, _ := strconv.Atoi(m[1])
		end, _ := strconv.Atoi(m[2])
		out = append(out, Bounds{Start: start, End: end})
	}

	slices.SortFunc(out, func(a, b Bounds) int {
		if a.Start != b.Start {
			return a.Start - b.Start
		}
		return a.End - b.End
	})
	return out, nil
}

// NextStart returns the offset the next window should begin at: max(end)
// over all artifacts, or 0 when none exist. A fully completed window is
// never reprocessed and no row is skipped.
func (s *Store) NextStart() (int, error) {
	bounds, err := s.List()
	if err != nil {
		return 0, err
	}
	next := 0
	for _, b := range bounds {
		if b.End > next {
			next = b.End
		}
	}
	return next, nil
}

// Write persists one completed window as a new artifact. The write is
// all-or-nothing: rows are written to a temp file which is renamed into
// place, so an interrupted run leaves no partial artifact.
func (s *Store) Write(b Bounds, rows []domain.WindRow) error {
	if got, want := len(rows), b.End-b.Start; got != want {
		return fmt.Errorf("chunk %s: %d rows for %d offsets", b, got, want)
	}

	tmp, err := os.CreateTemp(s.dir, fmt.Sprintf(".%s_chunk_%d_%d-*", s.prefix, b.Start, b.End))
	if err != nil {
		return fmt.Errorf("create temp chunk: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(dataset.WindHeader()); err != nil {
		tmp.Close()
		return fmt.Errorf("write chunk header: %w", err)
	}
	for _, row := range rows {
		if err := w.Write(dataset.EncodeWindRow(row)); err != nil {
			tmp.Close()
			return fmt.Errorf("write chunk row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush chunk %s: %w", b, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp chunk: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(b)); err != nil {
		return fmt.Errorf("rename chunk %s into place: %w", b, err)
	}

	s.logger.Info("chunk written", "bounds", b.String(), "rows", len(rows))
	return nil
}

// Merge streams every artifact, in ascending bounds order, into a single
// consolidated CSV at dst. The header comes from the first artifact; an
// artifact with a different header aborts the merge with ErrSchemaMismatch
// rather than silently coercing columns. Rows are copied one at a time so
// memory stays bounded regardless of the total dataset size.
//
// Returns the number of data rows written.
func (s *Store) Merge(dst string) (int, error) {
	bounds, err := s.List()
	if err != nil {
		return 0, err
	}
	if len(bounds) == 0 {
		return 0, fmt.Errorf("no chunk artifacts in %s", s.dir)
	}

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(dst)+".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("create temp merge file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	var header []string
	rows := 0

	for _, b := range bounds {
		n, h, err := s.appendArtifact(w, b, header)
		if err != nil {
			tmp.Close()
			return 0, err
		}
		if header == nil {
			header = h
		}
		rows += n
		s.logger.Info("chunk merged", "bounds", b.String(), "rows", n)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("flush merge output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close temp merge file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return 0, fmt.Errorf("rename merge output into place: %w", err)
	}
	return rows, nil
}

// appendArtifact copies one artifact's rows into the merge writer. The
// header is emitted only when wantHeader is nil (first artifact); otherwise
// the artifact's header must match wantHeader exactly.
func (s *Store) appendArtifact(w *csv.Writer, b Bounds, wantHeader []string) (int, []string, error) {
	f, err := os.Open(s.path(b))
	if err != nil {
		return 0, nil, fmt.Errorf("open chunk %s: %w", b, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return 0, nil, fmt.Errorf("read chunk %s header: %w", b, err)
	}

	if wantHeader == nil {
		if err := w.Write(header); err != nil {
			return 0, nil, fmt.Errorf("write merged header: %w", err)
		}
	} else if !slices.Equal(header, wantHeader) {
		return 0, nil, fmt.Errorf("chunk %s: %w: got %v, want %v", b, ErrSchemaMismatch, header, wantHeader)
	}

	rows := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, nil, fmt.Errorf("read chunk %s: %w", b, err)
		}
		if err := w.Write(record); err != nil {
			return 0, nil, fmt.Errorf("write merged row: %w", err)
		}
		rows++
	}
	return rows, header, nil
}
