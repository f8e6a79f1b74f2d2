// Package graphsink exports the collaboration graph to Neo4j as Artist nodes
// joined by COLLABORATED_WITH relationships.
package graphsink

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/collabgraph/internal/collab"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rs/zerolog"
)

// DefaultBatchSize is the number of nodes or relationships written per
// transaction.
const DefaultBatchSize = 500

// Config holds the Neo4j connection settings.
type Config struct {
	URI      string
	User     string
	Password string
	Database string

	// BatchSize defaults to DefaultBatchSize.
	BatchSize int

	// Timeout bounds connection setup. Defaults to 10s.
	Timeout time.Duration
}

// Stats reports what an export wrote.
type Stats struct {
	Artists int
	Edges   int
}

// Sink writes collaboration graphs to Neo4j.
type Sink struct {
	driver    neo4j.DriverWithContext
	database  string
	batchSize int
	logger    zerolog.Logger
}

// New connects to Neo4j and verifies connectivity.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (*Sink, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("graphsink: uri is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""), func(c *neo4j.Config) {
		c.SocketConnectTimeout = timeout
	})
	if err != nil {
		return nil, fmt.Errorf("graphsink: init driver: %w", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("graphsink: verify connectivity: %w", err)
	}

	return &Sink{
		driver:    driver,
		database:  cfg.Database,
		batchSize: batchSize,
		logger:    logger,
	}, nil
}

// Close releases the driver.
func (s *Sink) Close(ctx context.Context) error {
	if s == nil || s.driver == nil {
		return nil
	}
	return s.driver.Close(ctx)
}

// Export merges rows into one edge per artist pair and upserts the artists
// and their relationships. Re-exporting the same rows is idempotent.
func (s *Sink) Export(ctx context.Context, rows []collab.Row) (Stats, error) {
	artists, edges := buildParams(rows, time.Now().UTC())

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.database,
	})
	defer session.Close(ctx)

	if res, err := session.Run(ctx, `CREATE CONSTRAINT artist_id_unique IF NOT EXISTS FOR (a:Artist) REQUIRE a.id IS UNIQUE`, nil); err != nil {
		s.logger.Warn().Err(err).Msg("Schema init failed, continuing")
	} else if _, err := res.Consume(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Schema init failed, continuing")
	}

	var stats Stats
	for start := 0; start < len(artists); start += s.batchSize {
		batch := artists[start:min(start+s.batchSize, len(artists))]
		if err := s.write(ctx, session, upsertArtists, map[string]any{"artists": batch}); err != nil {
			return stats, fmt.Errorf("graphsink: write artists: %w", err)
		}
		stats.Artists += len(batch)
	}

	for start := 0; start < len(edges); start += s.batchSize {
		batch := edges[start:min(start+s.batchSize, len(edges))]
		if err := s.write(ctx, session, upsertEdges, map[string]any{"edges": batch}); err != nil {
			return stats, fmt.Errorf("graphsink: write edges: %w", err)
		}
		stats.Edges += len(batch)
	}

	s.logger.Info().
		Int("artists", stats.Artists).
		Int("edges", stats.Edges).
		Msg("Graph exported")
	return stats, nil
}

const upsertArtists = `
UNWIND $artists AS a
MERGE (n:Artist {id: a.id})
SET n.name = a.name, n.synced_at = a.synced_at
`

// Endpoints are matched in canonical order so the undirected MERGE always
// sees the same pair.
const upsertEdges = `
UNWIND $edges AS e
MATCH (a:Artist {id: e.a})
MATCH (b:Artist {id: e.b})
MERGE (a)-[r:COLLABORATED_WITH]-(b)
SET r.count = e.count, r.tracks = e.tracks, r.track_ids = e.track_ids, r.synced_at = e.synced_at
`

func (s *Sink) write(ctx context.Context, session neo4j.SessionWithContext, query string, params map[string]any) error {
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	return err
}

// buildParams converts rows into the UNWIND parameter lists.
func buildParams(rows []collab.Row, now time.Time) ([]map[string]any, []map[string]any) {
	merged, names := collab.Merge(rows)
	syncedAt := now.Format(time.RFC3339Nano)

	artists := make([]map[string]any, 0, len(names))
	added := make(map[string]struct{}, len(names))
	addArtist := func(id string) {
		if _, ok := added[id]; ok {
			return
		}
		added[id] = struct{}{}
		name := names[id]
		if name == "" {
			name = id
		}
		artists = append(artists, map[string]any{"id": id, "name": name, "synced_at": syncedAt})
	}

	edges := make([]map[string]any, 0, len(merged))
	for _, e := range merged {
		addArtist(e.Key.A)
		addArtist(e.Key.B)
		edges = append(edges, map[string]any{
			"a":         e.Key.A,
			"b":         e.Key.B,
			"count":     int64(e.Weight()),
			"tracks":    e.Evidence,
			"track_ids": e.TrackIDs,
			"synced_at": syncedAt,
		})
	}
	return artists, edges
}
