// Package pipeline drives the harvest over a roster: one artist at a time,
// skipping artists already in the checkpoint store, isolating per-artist
// failures, and stopping between artists when interrupted.
package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/Sternrassler/collabgraph/internal/checkpoint"
	"github.com/Sternrassler/collabgraph/internal/collab"
	"github.com/Sternrassler/collabgraph/internal/harvest"
	"github.com/Sternrassler/collabgraph/internal/roster"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	artistsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collab_artists_total",
		Help: "Artists reaching a terminal state",
	}, []string{"state"})

	edgesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collab_edges_written_total",
		Help: "Edge rows appended to the checkpoint store",
	})

	artistDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "collab_artist_duration_seconds",
		Help:    "Time to harvest, extract and persist one artist",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	})
)

// State is an artist's position in the per-artist state machine.
type State string

const (
	StatePending    State = "pending"
	StateHarvesting State = "harvesting"
	StateExtracted  State = "extracted"
	StatePersisted  State = "persisted"
	StateSkipped    State = "skipped"
	StateFailed     State = "failed"
)

// Harvester retrieves an artist's releases and tracks.
// *harvest.Harvester satisfies it.
type Harvester interface {
	Releases(ctx context.Context, artistID string) ([]harvest.Release, error)
	Tracks(ctx context.Context, releases []harvest.Release) (*harvest.TrackHarvest, error)
}

// RequestWindow reports rate-limit budget usage as (requests in window, max).
// *ratelimit.Limiter satisfies it.
type RequestWindow interface {
	InWindow() (int, int)
}

// Config holds driver settings.
type Config struct {
	// Mode selects ego or restricted extraction for the whole run.
	Mode collab.Mode

	// Window, when set, adds the request budget to every progress line.
	Window RequestWindow
}

// Summary reports the outcome of a run.
type Summary struct {
	Total      int
	Skipped    int
	Persisted  int
	Failed     int
	Remaining  int
	Rows       int
	Unresolved int

	// Interrupted is set when the run stopped before the end of the roster.
	Interrupted bool

	Failures []*ArtistError
	Duration time.Duration
}

// Driver runs the pipeline.
type Driver struct {
	harvester Harvester
	store     checkpoint.Store
	mode      collab.Mode
	window    RequestWindow
	logger    zerolog.Logger

	// OnTransition, when set, observes every state change.
	OnTransition func(artist roster.Artist, from, to State)
}

// New creates a driver.
func New(h Harvester, store checkpoint.Store, cfg Config, logger zerolog.Logger) (*Driver, error) {
	if h == nil {
		return nil, fmt.Errorf("pipeline: harvester is required")
	}
	if store == nil {
		return nil, fmt.Errorf("pipeline: store is required")
	}
	mode := cfg.Mode
	if mode == "" {
		mode = collab.ModeEgo
	}
	if _, err := collab.ParseMode(string(mode)); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	return &Driver{
		harvester: h,
		store:     store,
		mode:      mode,
		window:    cfg.Window,
		logger:    logger,
	}, nil
}

// Run processes artists in order. Cancelling ctx stops the run before the
// next artist; the artist in progress is finished on a context detached from
// ctx. Only a failure to read the checkpoint store is returned as an error:
// ctx.Err() if the scan was cut short by cancellation, a *SetupError otherwise.
func (d *Driver) Run(ctx context.Context, artists []roster.Artist) (*Summary, error) {
	start := time.Now()
	summary := &Summary{Total: len(artists)}

	processed, err := d.store.AlreadyProcessed(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &SetupError{Op: "load checkpoint", Err: err}
	}

	var universe map[string]struct{}
	if d.mode == collab.ModeRestricted {
		universe = roster.Universe(artists)
	}

	d.logStart(artists, processed)

	for i, artist := range artists {
		if ctx.Err() != nil {
			summary.Interrupted = true
			summary.Remaining = countRemaining(artists[i:], processed)
			d.logger.Warn().
				Int("remaining", summary.Remaining).
				Str("next_artist_id", artist.ID).
				Msg("Interrupted, stopping before next artist")
			break
		}

		if _, done := processed[artist.ID]; done {
			d.transition(artist, StatePending, StateSkipped)
			summary.Skipped++
			continue
		}

		event := d.logger.Info().
			Str("artist_id", artist.ID).
			Str("artist", artist.Name).
			Int("position", i+1).
			Int("total", len(artists))
		if d.window != nil {
			used, limit := d.window.InWindow()
			event = event.Int("requests_in_window", used).Int("window_max", limit)
		}
		event.Msg("Processing artist")

		rows, unresolved, artistErr := d.processArtist(context.WithoutCancel(ctx), artist, universe)
		summary.Unresolved += unresolved
		if artistErr != nil {
			summary.Failed++
			summary.Failures = append(summary.Failures, artistErr)
			d.logger.Error().
				Err(artistErr.Err).
				Str("artist_id", artist.ID).
				Str("artist", artist.Name).
				Str("phase", string(artistErr.Phase)).
				Msg("Artist failed")
			continue
		}

		processed[artist.ID] = struct{}{}
		summary.Persisted++
		summary.Rows += rows
	}

	summary.Duration = time.Since(start)
	d.logger.Info().
		Int("persisted", summary.Persisted).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Int("rows", summary.Rows).
		Int("unresolved_releases", summary.Unresolved).
		Bool("interrupted", summary.Interrupted).
		Dur("duration", summary.Duration).
		Msg("Run finished")

	return summary, nil
}

// processArtist harvests, extracts and persists one artist. A panic in any
// phase is recovered into an *ArtistError for that phase.
func (d *Driver) processArtist(ctx context.Context, artist roster.Artist, universe map[string]struct{}) (rowCount, unresolved int, artistErr *ArtistError) {
	start := time.Now()
	logger := d.logger.With().Str("artist_id", artist.ID).Str("artist", artist.Name).Logger()

	state := StatePending
	phase := PhaseReleases
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Str("phase", string(phase)).
				Str("stack", string(debug.Stack())).
				Msgf("Recovered panic: %v", r)
			d.transition(artist, state, StateFailed)
			rowCount = 0
			artistErr = &ArtistError{Artist: artist, Phase: phase, Err: fmt.Errorf("%w: %v", ErrPanic, r)}
		}
	}()

	fail := func(err error) *ArtistError {
		d.transition(artist, state, StateFailed)
		return &ArtistError{Artist: artist, Phase: phase, Err: err}
	}

	d.transition(artist, StatePending, StateHarvesting)
	state = StateHarvesting

	releases, err := d.harvester.Releases(ctx, artist.ID)
	if err != nil {
		return 0, 0, fail(err)
	}

	phase = PhaseTracks
	tracks, err := d.harvester.Tracks(ctx, releases)
	if err != nil {
		return 0, 0, fail(err)
	}
	if tracks.Err != nil {
		logger.Warn().
			Err(tracks.Err).
			Strs("unresolved", tracks.Unresolved).
			Msg("Some releases could not be resolved")
	}
	unresolved = len(tracks.Unresolved)

	phase = PhaseExtract
	graph, err := collab.Extract(tracks.Tracks, collab.Options{
		Mode:     d.mode,
		Primary:  artist.ID,
		Universe: universe,
	})
	if err != nil {
		return 0, unresolved, fail(err)
	}
	d.transition(artist, StateHarvesting, StateExtracted)
	state = StateExtracted

	phase = PhasePersist
	rows := graph.Rows(artist)
	if err := d.store.Append(ctx, artist, rows); err != nil {
		return 0, unresolved, fail(err)
	}
	d.transition(artist, StateExtracted, StatePersisted)

	elapsed := time.Since(start)
	edgesWritten.Add(float64(len(rows)))
	artistDuration.Observe(elapsed.Seconds())

	logger.Info().
		Int("releases", len(releases)).
		Int("tracks", graph.TracksSeen).
		Int("tracks_without_id", graph.TracksSkipped).
		Int("rows", len(rows)).
		Int("unresolved_releases", unresolved).
		Dur("duration", elapsed).
		Msg("Artist persisted")

	return len(rows), unresolved, nil
}

func (d *Driver) transition(artist roster.Artist, from, to State) {
	switch to {
	case StatePersisted, StateSkipped, StateFailed:
		artistsTotal.WithLabelValues(string(to)).Inc()
	}
	d.logger.Debug().
		Str("artist_id", artist.ID).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("Artist state")
	if d.OnTransition != nil {
		d.OnTransition(artist, from, to)
	}
}

func (d *Driver) logStart(artists []roster.Artist, processed map[string]struct{}) {
	remaining := countRemaining(artists, processed)
	event := d.logger.Info().
		Str("mode", string(d.mode)).
		Int("artists", len(artists)).
		Int("processed", len(roster.Universe(artists))-remaining).
		Int("remaining", remaining)

	for _, a := range artists {
		if _, done := processed[a.ID]; !done {
			event = event.Str("first_artist_id", a.ID).Str("first_artist", a.Name)
			break
		}
	}
	event.Msg("Starting harvest")
}

// Pending returns the roster artists not in processed, in roster order.
func Pending(artists []roster.Artist, processed map[string]struct{}) []roster.Artist {
	var out []roster.Artist
	seen := make(map[string]struct{})
	for _, a := range artists {
		if _, done := processed[a.ID]; done {
			continue
		}
		if _, dup := seen[a.ID]; dup {
			continue
		}
		seen[a.ID] = struct{}{}
		out = append(out, a)
	}
	return out
}

func countRemaining(artists []roster.Artist, processed map[string]struct{}) int {
	return len(Pending(artists, processed))
}
