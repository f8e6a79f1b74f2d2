package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sternrassler/collabgraph/internal/checkpoint"
	"github.com/Sternrassler/collabgraph/internal/config"
	"github.com/Sternrassler/collabgraph/internal/harvest"
	"github.com/Sternrassler/collabgraph/internal/pipeline"
	"github.com/Sternrassler/collabgraph/internal/roster"
	"github.com/Sternrassler/collabgraph/pkg/cache"
	"github.com/Sternrassler/collabgraph/pkg/client"
	"github.com/Sternrassler/collabgraph/pkg/logging"
	"github.com/Sternrassler/collabgraph/pkg/metrics"
	"github.com/Sternrassler/collabgraph/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newHarvestCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Harvest collaborations for every artist in the roster",
		Long: `Harvest walks the roster in order and, for every artist not yet in the
output, lists its albums and singles, fetches their tracks and appends
the artist's collaboration rows.

Interrupt with Ctrl+C to stop after the current artist; a second Ctrl+C
exits immediately. Rerunning picks up with the first unprocessed artist.

Modes:
  ego         the artist and everyone credited alongside them
  restricted  pairs of roster artists credited on the same track`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHarvest(cmd.Context(), a)
		},
	}

	flags := cmd.Flags()
	flags.String("mode", "ego", "Extraction mode (ego, restricted)")
	flags.String("roster", "", "Roster CSV with name and id columns")
	flags.String("output", "", "Edge table CSV")
	flags.String("backend", "", "Checkpoint backend (csv, sqlite)")
	flags.String("market", "", "Market (ISO 3166-1 alpha-2)")
	flags.Int("max-albums", 0, "Maximum releases per artist (0 = no cap)")
	flags.String("redis-url", "", "Redis URL for the response cache (empty disables it)")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	a.bind(flags, "pipeline.mode", "mode")
	a.bind(flags, "pipeline.roster", "roster")
	a.bind(flags, "pipeline.output", "output")
	a.bind(flags, "checkpoint.backend", "backend")
	a.bind(flags, "spotify.market", "market")
	a.bind(flags, "harvest.max_albums", "max-albums")
	a.bind(flags, "cache.redis_url", "redis-url")
	a.bind(flags, "metrics.addr", "metrics-addr")

	return cmd
}

func runHarvest(ctx context.Context, a *app) error {
	cfg := a.cfg
	logger := logging.NewLogger("pipeline")

	if cfg.Spotify.ClientID == "" || cfg.Spotify.ClientSecret == "" {
		return &pipeline.SetupError{Op: "credentials", Err: client.ErrMissingCredentials}
	}

	artists, err := roster.Load(cfg.Pipeline.Roster)
	if err != nil {
		return &pipeline.SetupError{Op: "load roster", Err: err}
	}

	store, err := checkpoint.Open(ctx, cfg.Checkpoint, logging.NewLogger("checkpoint"))
	if err != nil {
		return &pipeline.SetupError{Op: "open checkpoint", Err: err}
	}
	defer store.Close()

	api, limiter, closeAPI, err := newSpotifyClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeAPI()

	h, err := harvest.New(api, cfg.Harvest, logging.NewLogger("harvest"))
	if err != nil {
		return &pipeline.SetupError{Op: "harvester", Err: err}
	}

	driver, err := pipeline.New(h, store, pipeline.Config{Mode: cfg.Pipeline.Mode, Window: limiter}, logger)
	if err != nil {
		return &pipeline.SetupError{Op: "pipeline", Err: err}
	}

	var summary *pipeline.Summary
	g, gctx := errgroup.WithContext(ctx)

	serveCtx, stopServing := context.WithCancel(gctx)
	defer stopServing()
	if cfg.Metrics.Addr != "" {
		g.Go(func() error {
			return metrics.Serve(serveCtx, cfg.Metrics.Addr)
		})
	}

	g.Go(func() error {
		defer stopServing()
		s, err := driver.Run(gctx, artists)
		summary = s
		return err
	})

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return errInterrupted
		}
		return err
	}

	fmt.Fprintf(a.stdout, "Persisted %d, skipped %d, failed %d artists; %d rows written, %d unresolved releases.\n",
		summary.Persisted, summary.Skipped, summary.Failed, summary.Rows, summary.Unresolved)

	if summary.Interrupted {
		if ctx.Err() != nil {
			return errInterrupted
		}
		return fmt.Errorf("run stopped early with %d artists remaining", summary.Remaining)
	}
	return nil
}

// newSpotifyClient authenticates and assembles the limiter, executor,
// optional cache and API client. The limiter is returned for progress
// reporting.
func newSpotifyClient(ctx context.Context, cfg *config.Config) (*client.Client, *ratelimit.Limiter, func(), error) {
	httpClient, err := client.Authenticate(ctx, cfg.Spotify.Credentials(), cfg.Spotify.Timeout)
	if err != nil {
		return nil, nil, nil, &pipeline.SetupError{Op: "authenticate", Err: err}
	}

	limiter, err := ratelimit.NewLimiter(cfg.RateLimit, logging.NewLogger("limiter"))
	if err != nil {
		return nil, nil, nil, &pipeline.SetupError{Op: "rate limiter", Err: err}
	}

	executor, err := client.NewExecutor(limiter, cfg.Retry, logging.NewLogger("executor"))
	if err != nil {
		return nil, nil, nil, &pipeline.SetupError{Op: "executor", Err: err}
	}

	closeFn := func() {}
	var cacheManager *cache.Manager
	if cfg.Cache.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.Cache.RedisURL)
		if err != nil {
			return nil, nil, nil, &pipeline.SetupError{Op: "cache", Err: fmt.Errorf("parse redis url: %w", err)}
		}
		redisClient := redis.NewClient(opts)
		cacheManager = cache.NewManager(redisClient, cfg.Spotify.Market)
		if err := cacheManager.Ping(ctx); err != nil {
			redisClient.Close()
			return nil, nil, nil, &pipeline.SetupError{Op: "cache", Err: fmt.Errorf("redis unreachable: %w", err)}
		}
		closeFn = func() { redisClient.Close() }
	}

	api, err := client.New(client.Config{
		BaseURL:    cfg.Spotify.BaseURL,
		Market:     cfg.Spotify.Market,
		HTTPClient: httpClient,
		Cache:      cacheManager,
		CacheTTL:   cfg.Cache.TTL,
	}, executor, logging.NewLogger("spotify-client"))
	if err != nil {
		closeFn()
		return nil, nil, nil, &pipeline.SetupError{Op: "spotify client", Err: err}
	}

	return api, limiter, closeFn, nil
}
