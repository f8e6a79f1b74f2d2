package checkpoint

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/Sternrassler/collabgraph/internal/collab"
	"github.com/Sternrassler/collabgraph/internal/roster"
	"github.com/rs/zerolog"
)

// ErrBadHeader is returned when an existing edge table lacks required columns.
var ErrBadHeader = errors.New("edge table header is missing required columns")

// CSVStore keeps the edge table as a CSV file.
//
// An artist with no rows leaves no trace and is harvested again next run.
// A crash in the middle of Append can leave a partial artist in the file;
// the next run treats that artist as processed.
type CSVStore struct {
	path   string
	logger zerolog.Logger
}

// NewCSVStore returns a store backed by the CSV file at path. The file is
// created on the first Append.
func NewCSVStore(path string, logger zerolog.Logger) *CSVStore {
	return &CSVStore{
		path:   path,
		logger: logger.With().Str("backend", BackendCSV).Str("path", path).Logger(),
	}
}

// AlreadyProcessed scans the edge table once. A missing file is an empty set.
func (s *CSVStore) AlreadyProcessed(ctx context.Context) (map[string]struct{}, error) {
	processed := make(map[string]struct{})
	rows := 0
	err := s.scan(ctx, func(fields []string, col map[string]int) error {
		rows++
		if id := fields[col["primary_artist_id"]]; id != "" {
			processed[id] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug().Int("rows", rows).Int("artists", len(processed)).Msg("Scanned edge table")
	return processed, nil
}

// Append writes the artist's rows with one write call, preceded by the header
// when the file is new or empty. Zero rows writes nothing.
func (s *CSVStore) Append(ctx context.Context, artist roster.Artist, rows []collab.Row) error {
	if len(rows) == 0 {
		s.logger.Debug().Str("artist_id", artist.ID).Msg("No rows to append")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open edge table: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat edge table: %w", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if info.Size() == 0 {
		if err := w.Write(Columns); err != nil {
			return fmt.Errorf("encode header: %w", err)
		}
	}
	for _, r := range rows {
		if err := w.Write(record(r)); err != nil {
			return fmt.Errorf("encode row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("encode rows: %w", err)
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("append rows for %s: %w", artist.ID, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync edge table: %w", err)
	}

	s.logger.Debug().
		Str("artist_id", artist.ID).
		Int("rows", len(rows)).
		Int("bytes", buf.Len()).
		Msg("Appended rows")
	return nil
}

// Rows reads the whole edge table.
func (s *CSVStore) Rows(ctx context.Context) ([]collab.Row, error) {
	var rows []collab.Row
	err := s.scan(ctx, func(fields []string, col map[string]int) error {
		count, err := strconv.Atoi(fields[col["collaboration_count"]])
		if err != nil {
			return fmt.Errorf("parse collaboration_count %q: %w", fields[col["collaboration_count"]], err)
		}
		tracks, ids := collab.SplitEvidence(fields[col["tracks"]], fields[col["track_ids"]])
		rows = append(rows, collab.Row{
			PrimaryID: fields[col["primary_artist_id"]],
			Primary:   fields[col["primary_artist"]],
			FirstID:   fields[col["first_artist_id"]],
			First:     fields[col["first_artist"]],
			SecondID:  fields[col["second_artist_id"]],
			Second:    fields[col["second_artist"]],
			Count:     count,
			Tracks:    tracks,
			TrackIDs:  ids,
		})
		return nil
	})
	return rows, err
}

// Close is a no-op; the file is opened per call.
func (s *CSVStore) Close() error {
	return nil
}

// scan calls fn for every data row. Short rows, as left by an interrupted
// append, are skipped.
func (s *CSVStore) scan(ctx context.Context, fn func(fields []string, col map[string]int) error) error {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open edge table: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.ReuseRecord = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read edge table header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimPrefix(strings.TrimSpace(name), "\ufeff")] = i
	}
	for _, name := range Columns {
		if _, ok := col[name]; !ok {
			return fmt.Errorf("%w: %s", ErrBadHeader, name)
		}
	}

	line := 1
	for {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		line++
		if err != nil {
			return fmt.Errorf("read edge table line %d: %w", line, err)
		}
		if len(fields) < len(header) {
			s.logger.Warn().Int("line", line).Int("fields", len(fields)).Msg("Skipping short row")
			continue
		}
		if line%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := fn(fields, col); err != nil {
			return fmt.Errorf("edge table line %d: %w", line, err)
		}
	}
}
