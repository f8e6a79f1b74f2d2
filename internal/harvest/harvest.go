// Package harvest enumerates an artist's releases and their tracks through the
// Spotify client.
package harvest

import (
	"context"
	"fmt"

	"github.com/Sternrassler/collabgraph/pkg/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	releasesHarvested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collab_releases_harvested_total",
		Help: "Releases discovered across all artists",
	})

	tracksHarvested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collab_tracks_harvested_total",
		Help: "Unique tracks retrieved across all artists",
	})

	unresolvedReleases = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collab_unresolved_releases_total",
		Help: "Releases whose tracks could not be retrieved",
	})
)

// Release is an album or single owned by the harvested artist.
type Release struct {
	ID             string
	Name           string
	OwningArtistID string
}

// Credit is one credited artist on a track, in credit order.
type Credit struct {
	ID   string
	Name string
}

// Track is a track with its credits. ID is empty when the API returned null.
type Track struct {
	ID      string
	Name    string
	Credits []Credit
}

// API is the subset of the Spotify client used for harvesting.
// *client.Client satisfies it.
type API interface {
	ArtistAlbums(ctx context.Context, artistID string, offset, limit int) (client.Paging[client.SimplifiedAlbum], error)
	Albums(ctx context.Context, ids []string) ([]*client.Album, error)
	AlbumTracks(ctx context.Context, albumID string, offset, limit int) (client.Paging[client.SimplifiedTrack], error)
}

// Config holds harvesting limits.
type Config struct {
	// PageSize is the limit for the artist album listing.
	PageSize int

	// MaxAlbums caps the releases harvested per artist. Zero means no cap.
	MaxAlbums int

	// BatchSize is the number of releases per /albums multi-get.
	BatchSize int

	// TrackPageSize is the limit for per-album track pages.
	TrackPageSize int
}

// DefaultConfig returns the limits used against the public API.
func DefaultConfig() Config {
	return Config{
		PageSize:      50,
		MaxAlbums:     300,
		BatchSize:     client.MaxAlbumIDs,
		TrackPageSize: 50,
	}
}

// Validate checks the harvesting limits.
func (c Config) Validate() error {
	if c.PageSize < 1 || c.PageSize > 50 {
		return fmt.Errorf("page_size must be between 1 and 50 (got %d)", c.PageSize)
	}
	if c.MaxAlbums < 0 {
		return fmt.Errorf("max_albums must not be negative (got %d)", c.MaxAlbums)
	}
	if c.BatchSize < 1 || c.BatchSize > client.MaxAlbumIDs {
		return fmt.Errorf("batch_size must be between 1 and %d (got %d)", client.MaxAlbumIDs, c.BatchSize)
	}
	if c.TrackPageSize < 1 || c.TrackPageSize > 50 {
		return fmt.Errorf("track_page_size must be between 1 and 50 (got %d)", c.TrackPageSize)
	}
	return nil
}

// Harvester retrieves releases and tracks for one artist at a time.
type Harvester struct {
	api    API
	config Config
	logger zerolog.Logger
}

// New creates a harvester.
func New(api API, cfg Config, logger zerolog.Logger) (*Harvester, error) {
	if api == nil {
		return nil, fmt.Errorf("harvest: api is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("harvest: %w", err)
	}
	return &Harvester{api: api, config: cfg, logger: logger}, nil
}

// Config returns the harvesting limits.
func (h *Harvester) Config() Config {
	return h.config
}
