// Package details looks up artist metadata (popularity, followers, genres)
// for a roster through the Spotify multi-get endpoint and writes it as CSV.
package details

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/Sternrassler/collabgraph/internal/roster"
	"github.com/Sternrassler/collabgraph/pkg/client"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
)

// Columns of the details table, in order.
var Columns = []string{"id", "name", "popularity", "followers", "genres"}

// GenreSeparator joins genres in the details table.
const GenreSeparator = ", "

// API is the subset of the Spotify client used for lookups.
type API interface {
	Artists(ctx context.Context, ids []string) ([]*client.Artist, error)
}

// Detail is the metadata of one artist.
type Detail struct {
	ID         string
	Name       string
	Popularity int
	Followers  int
	Genres     []string
}

// Result is the outcome of one lookup over a roster.
type Result struct {
	// Details are in roster order, one per resolved artist.
	Details []Detail

	// Missing lists ids the API did not return or whose batch failed.
	Missing []string

	// Err aggregates the batch failures. Nil when every batch succeeded.
	Err error

	// Batches is the number of /artists requests issued.
	Batches int
}

// Fetcher looks up artists in batches.
type Fetcher struct {
	api       API
	batchSize int
	logger    zerolog.Logger
}

// New returns a fetcher. A zero batchSize means client.MaxArtistIDs.
func New(api API, batchSize int, logger zerolog.Logger) (*Fetcher, error) {
	if api == nil {
		return nil, fmt.Errorf("api is required")
	}
	if batchSize == 0 {
		batchSize = client.MaxArtistIDs
	}
	if batchSize < 1 || batchSize > client.MaxArtistIDs {
		return nil, fmt.Errorf("batch size must be between 1 and %d (got %d)", client.MaxArtistIDs, batchSize)
	}
	return &Fetcher{api: api, batchSize: batchSize, logger: logger}, nil
}

// Fetch looks up every unique roster id. A failed batch is recorded in the
// result and skipped; only cancellation of ctx aborts the lookup.
func (f *Fetcher) Fetch(ctx context.Context, artists []roster.Artist) (*Result, error) {
	result := &Result{}
	var errs *multierror.Error

	ids := make([]string, 0, len(artists))
	names := make(map[string]string, len(artists))
	for _, a := range artists {
		if _, dup := names[a.ID]; dup || a.ID == "" {
			continue
		}
		names[a.ID] = a.Name
		ids = append(ids, a.ID)
	}

	for start := 0; start < len(ids); start += f.batchSize {
		batch := ids[start:min(start+f.batchSize, len(ids))]
		result.Batches++

		found, err := f.api.Artists(ctx, batch)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			f.logger.Warn().
				Err(err).
				Int("batch", result.Batches).
				Int("artists", len(batch)).
				Str("error_class", string(client.ClassOf(err))).
				Msg("Artist batch failed, skipping")
			result.Missing = append(result.Missing, batch...)
			errs = multierror.Append(errs, fmt.Errorf("batch %d: %w", result.Batches, err))
			continue
		}

		for i, id := range batch {
			var a *client.Artist
			if i < len(found) {
				a = found[i]
			}
			if a == nil {
				f.logger.Debug().Str("artist_id", id).Msg("Artist missing from batch response")
				result.Missing = append(result.Missing, id)
				continue
			}
			result.Details = append(result.Details, toDetail(a, names[id]))
		}
	}

	result.Err = errs.ErrorOrNil()
	f.logger.Info().
		Int("artists", len(ids)).
		Int("resolved", len(result.Details)).
		Int("missing", len(result.Missing)).
		Int("batches", result.Batches).
		Msg("Artist details fetched")

	return result, nil
}

// toDetail keeps the roster name when the API returns none. Genres are
// sorted and deduplicated.
func toDetail(a *client.Artist, rosterName string) Detail {
	name := a.Name
	if name == "" {
		name = rosterName
	}

	genres := make([]string, 0, len(a.Genres))
	for _, g := range a.Genres {
		if g = strings.TrimSpace(g); g != "" {
			genres = append(genres, g)
		}
	}
	slices.Sort(genres)

	return Detail{
		ID:         a.ID,
		Name:       name,
		Popularity: a.Popularity,
		Followers:  a.Followers.Total,
		Genres:     slices.Compact(genres),
	}
}

// WriteCSV writes details with a header row.
func WriteCSV(w io.Writer, details []Detail) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write details header: %w", err)
	}
	for _, d := range details {
		record := []string{
			d.ID,
			d.Name,
			strconv.Itoa(d.Popularity),
			strconv.Itoa(d.Followers),
			strings.Join(d.Genres, GenreSeparator),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write details row %s: %w", d.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
