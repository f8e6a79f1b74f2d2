// Package checkpoint persists per-artist edge rows and reports which primary
// artists are already done, so an interrupted harvest resumes where it
// stopped.
//
// Two backends exist. The CSV store is the edge table itself and is scanned
// once at startup. The SQLite store keeps an explicit processed_artists index
// and also remembers artists that produced no rows.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Sternrassler/collabgraph/internal/collab"
	"github.com/Sternrassler/collabgraph/internal/roster"
	"github.com/rs/zerolog"
)

// Backend names.
const (
	BackendCSV    = "csv"
	BackendSQLite = "sqlite"
)

// ErrUnknownBackend is returned by Open for an unsupported backend name.
var ErrUnknownBackend = errors.New("unknown checkpoint backend")

// Columns of the edge table, in order.
var Columns = []string{
	"primary_artist_id",
	"primary_artist",
	"first_artist_id",
	"first_artist",
	"second_artist_id",
	"second_artist",
	"collaboration_count",
	"tracks",
	"track_ids",
}

// Store is an append-only record of processed artists and their edges.
type Store interface {
	// AlreadyProcessed returns the ids of primary artists already stored.
	AlreadyProcessed(ctx context.Context) (map[string]struct{}, error)

	// Append stores all rows of one artist in a single operation.
	Append(ctx context.Context, artist roster.Artist, rows []collab.Row) error

	// Rows returns every stored row in insertion order.
	Rows(ctx context.Context) ([]collab.Row, error)

	Close() error
}

// Config selects and locates a store.
type Config struct {
	// Backend is BackendCSV (default) or BackendSQLite.
	Backend string

	// CSVPath is the edge table written by the CSV backend.
	CSVPath string

	// SQLitePath is the database file of the SQLite backend.
	SQLitePath string
}

// Open creates the store described by cfg.
func Open(ctx context.Context, cfg Config, logger zerolog.Logger) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendCSV:
		if cfg.CSVPath == "" {
			return nil, fmt.Errorf("checkpoint: csv path is required")
		}
		return NewCSVStore(cfg.CSVPath, logger), nil
	case BackendSQLite:
		if cfg.SQLitePath == "" {
			return nil, fmt.Errorf("checkpoint: sqlite path is required")
		}
		return NewSQLiteStore(ctx, cfg.SQLitePath, logger)
	default:
		return nil, fmt.Errorf("checkpoint: %w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// record converts a row into edge table fields.
func record(r collab.Row) []string {
	return []string{
		r.PrimaryID,
		r.Primary,
		r.FirstID,
		r.First,
		r.SecondID,
		r.Second,
		fmt.Sprint(r.Count),
		r.JoinTracks(),
		r.JoinTrackIDs(),
	}
}
