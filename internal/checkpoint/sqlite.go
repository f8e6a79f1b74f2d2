package checkpoint

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Sternrassler/collabgraph/internal/collab"
	"github.com/Sternrassler/collabgraph/internal/roster"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps edges and the processed artist index in SQLite. Each
// artist is committed in one transaction, and artists without collaborations
// are still marked processed.
type SQLiteStore struct {
	db     *sql.DB
	runID  string
	logger zerolog.Logger
}

// NewSQLiteStore opens or creates the database at path. Every store instance
// gets a fresh run id that tags the rows it writes.
func NewSQLiteStore(ctx context.Context, path string, logger zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer at a time.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = FULL",
		"PRAGMA journal_mode = WAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS processed_artists (
			artist_id TEXT PRIMARY KEY,
			artist_name TEXT NOT NULL,
			run_id TEXT NOT NULL,
			edge_count INTEGER NOT NULL,
			processed_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS edges (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			primary_artist_id TEXT NOT NULL REFERENCES processed_artists(artist_id),
			primary_artist TEXT NOT NULL,
			first_artist_id TEXT NOT NULL,
			first_artist TEXT NOT NULL,
			second_artist_id TEXT NOT NULL,
			second_artist TEXT NOT NULL,
			collaboration_count INTEGER NOT NULL,
			tracks TEXT NOT NULL,
			track_ids TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_edges_primary ON edges(primary_artist_id);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	runID := uuid.NewString()
	return &SQLiteStore{
		db:     db,
		runID:  runID,
		logger: logger.With().Str("backend", BackendSQLite).Str("run_id", runID).Logger(),
	}, nil
}

// RunID identifies the rows written through this store instance.
func (s *SQLiteStore) RunID() string {
	return s.runID
}

// AlreadyProcessed returns every artist in processed_artists, including those
// that produced no edges.
func (s *SQLiteStore) AlreadyProcessed(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT artist_id FROM processed_artists`)
	if err != nil {
		return nil, fmt.Errorf("failed to query processed artists: %w", err)
	}
	defer rows.Close()

	processed := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan processed artist: %w", err)
		}
		processed[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate processed artists: %w", err)
	}
	return processed, nil
}

// Append marks the artist processed and inserts its rows in one transaction.
// Appending an artist twice fails.
func (s *SQLiteStore) Append(ctx context.Context, artist roster.Artist, rows []collab.Row) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO processed_artists (artist_id, artist_name, run_id, edge_count, processed_at)
		VALUES (?, ?, ?, ?, ?)
	`, artist.ID, artist.Name, s.runID, len(rows), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to mark artist %s processed: %w", artist.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO edges (run_id, primary_artist_id, primary_artist, first_artist_id, first_artist,
			second_artist_id, second_artist, collaboration_count, tracks, track_ids)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare edge insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		_, err := stmt.ExecContext(ctx, s.runID, r.PrimaryID, r.Primary, r.FirstID, r.First,
			r.SecondID, r.Second, r.Count, r.JoinTracks(), r.JoinTrackIDs())
		if err != nil {
			return fmt.Errorf("failed to insert edge %s-%s: %w", r.FirstID, r.SecondID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit artist %s: %w", artist.ID, err)
	}

	s.logger.Debug().Str("artist_id", artist.ID).Int("rows", len(rows)).Msg("Committed rows")
	return nil
}

// Rows returns all edges in insertion order.
func (s *SQLiteStore) Rows(ctx context.Context) ([]collab.Row, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT primary_artist_id, primary_artist, first_artist_id, first_artist,
			second_artist_id, second_artist, collaboration_count, tracks, track_ids
		FROM edges
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer rows.Close()

	var out []collab.Row
	for rows.Next() {
		var r collab.Row
		var tracks, ids string
		if err := rows.Scan(&r.PrimaryID, &r.Primary, &r.FirstID, &r.First,
			&r.SecondID, &r.Second, &r.Count, &tracks, &ids); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		r.Tracks, r.TrackIDs = collab.SplitEvidence(tracks, ids)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate edges: %w", err)
	}
	return out, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
