package harvest

import (
	"context"
	"fmt"

	"github.com/Sternrassler/collabgraph/pkg/client"
	"github.com/Sternrassler/collabgraph/pkg/pagination"
	"github.com/hashicorp/go-multierror"
)

// TrackHarvest is the result of harvesting the tracks of one artist's releases.
type TrackHarvest struct {
	// Tracks holds every retrieved track once, in release and track order.
	// Tracks without an id are kept; the extractor skips them.
	Tracks []Track

	// Unresolved lists releases whose tracks are missing or incomplete.
	Unresolved []string

	// Err aggregates the failures behind Unresolved. Nil when complete.
	Err error

	// Batches is the number of /albums requests issued.
	Batches int
}

// Tracks retrieves the tracks of releases in batches of BatchSize. A failed
// batch or secondary page fetch is recorded in the result and skipped; only
// cancellation of ctx aborts the harvest.
func (h *Harvester) Tracks(ctx context.Context, releases []Release) (*TrackHarvest, error) {
	result := &TrackHarvest{}
	var errs *multierror.Error

	ids := uniqueReleaseIDs(releases)
	seen := make(map[string]struct{})

	addTracks := func(items []client.SimplifiedTrack) {
		for _, item := range items {
			if item.ID != "" {
				if _, dup := seen[item.ID]; dup {
					continue
				}
				seen[item.ID] = struct{}{}
			}
			result.Tracks = append(result.Tracks, toTrack(item))
		}
	}

	unresolved := func(id string, err error) {
		result.Unresolved = append(result.Unresolved, id)
		errs = multierror.Append(errs, err)
		unresolvedReleases.Inc()
	}

	for start := 0; start < len(ids); start += h.config.BatchSize {
		batch := ids[start:min(start+h.config.BatchSize, len(ids))]
		result.Batches++

		albums, err := h.api.Albums(ctx, batch)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			h.logger.Warn().
				Err(err).
				Int("batch", result.Batches).
				Strs("release_ids", batch).
				Str("error_class", string(client.ClassOf(err))).
				Msg("Track batch failed, skipping its releases")
			for _, id := range batch {
				unresolved(id, fmt.Errorf("batch %d: release %s: %w", result.Batches, id, err))
			}
			continue
		}

		for i, id := range batch {
			var album *client.Album
			if i < len(albums) {
				album = albums[i]
			}
			if album == nil {
				h.logger.Warn().Str("release_id", id).Msg("Release missing from batch response")
				unresolved(id, fmt.Errorf("release %s: missing from batch response", id))
				continue
			}

			addTracks(album.Tracks.Items)

			if !album.Tracks.HasNext() {
				continue
			}
			rest, err := h.remainingTracks(ctx, album)
			addTracks(rest)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				h.logger.Warn().
					Err(err).
					Str("release_id", id).
					Int("tracks_kept", len(album.Tracks.Items)+len(rest)).
					Msg("Remaining tracks could not be fetched")
				unresolved(id, fmt.Errorf("release %s: %w", id, err))
			}
		}
	}

	result.Err = errs.ErrorOrNil()
	tracksHarvested.Add(float64(len(result.Tracks)))

	h.logger.Debug().
		Int("releases", len(ids)).
		Int("batches", result.Batches).
		Int("tracks", len(result.Tracks)).
		Int("unresolved", len(result.Unresolved)).
		Msg("Tracks harvested")

	return result, nil
}

// remainingTracks pages through an album's tracks past its embedded page.
// On error it returns the tracks fetched so far.
func (h *Harvester) remainingTracks(ctx context.Context, album *client.Album) ([]client.SimplifiedTrack, error) {
	p := &pagination.Paginator[client.SimplifiedTrack]{
		Name:        "album-tracks",
		PageSize:    h.config.TrackPageSize,
		StartOffset: album.Tracks.Offset + len(album.Tracks.Items),
		ID:          func(t client.SimplifiedTrack) string { return t.ID },
		Fetch: func(ctx context.Context, offset, limit int) (pagination.Page[client.SimplifiedTrack], error) {
			page, err := h.api.AlbumTracks(ctx, album.ID, offset, limit)
			if err != nil {
				return pagination.Page[client.SimplifiedTrack]{}, err
			}
			return pagination.Page[client.SimplifiedTrack]{Items: page.Items, HasNext: page.HasNext()}, nil
		},
	}
	return p.Collect(h.logger.WithContext(ctx))
}

func uniqueReleaseIDs(releases []Release) []string {
	seen := make(map[string]struct{}, len(releases))
	ids := make([]string, 0, len(releases))
	for _, r := range releases {
		if r.ID == "" {
			continue
		}
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		ids = append(ids, r.ID)
	}
	return ids
}

func toTrack(item client.SimplifiedTrack) Track {
	credits := make([]Credit, 0, len(item.Artists))
	for _, a := range item.Artists {
		credits = append(credits, Credit{ID: a.ID, Name: a.Name})
	}
	return Track{ID: item.ID, Name: item.Name, Credits: credits}
}
