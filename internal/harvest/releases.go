package harvest

import (
	"context"
	"fmt"

	"github.com/Sternrassler/collabgraph/pkg/client"
	"github.com/Sternrassler/collabgraph/pkg/pagination"
)

// Releases returns the artist's albums and singles, deduplicated and in
// discovery order, capped at MaxAlbums. Exhausted retries or a client error
// on any page fail the whole call.
func (h *Harvester) Releases(ctx context.Context, artistID string) ([]Release, error) {
	p := &pagination.Paginator[client.SimplifiedAlbum]{
		Name:     "artist-albums",
		PageSize: h.config.PageSize,
		MaxItems: h.config.MaxAlbums,
		ID:       func(a client.SimplifiedAlbum) string { return a.ID },
		Fetch: func(ctx context.Context, offset, limit int) (pagination.Page[client.SimplifiedAlbum], error) {
			page, err := h.api.ArtistAlbums(ctx, artistID, offset, limit)
			if err != nil {
				return pagination.Page[client.SimplifiedAlbum]{}, err
			}
			return pagination.Page[client.SimplifiedAlbum]{Items: page.Items, HasNext: page.HasNext()}, nil
		},
	}

	var releases []Release
	for album, err := range p.Items(h.logger.WithContext(ctx)) {
		if err != nil {
			return nil, fmt.Errorf("list releases for %s: %w", artistID, err)
		}
		if album.ID == "" {
			h.logger.Debug().Str("artist_id", artistID).Str("release", album.Name).Msg("Skipping release without id")
			continue
		}
		releases = append(releases, Release{
			ID:             album.ID,
			Name:           album.Name,
			OwningArtistID: artistID,
		})
	}

	releasesHarvested.Add(float64(len(releases)))
	h.logger.Debug().
		Str("artist_id", artistID).
		Int("releases", len(releases)).
		Msg("Releases harvested")

	return releases, nil
}
