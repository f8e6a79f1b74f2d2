package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Sternrassler/collabgraph/internal/details"
	"github.com/Sternrassler/collabgraph/internal/pipeline"
	"github.com/Sternrassler/collabgraph/internal/roster"
	"github.com/Sternrassler/collabgraph/pkg/client"
	"github.com/Sternrassler/collabgraph/pkg/logging"
	"github.com/spf13/cobra"
)

func newDetailsCmd(a *app) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "details",
		Short: "Fetch popularity, followers and genres for the roster",
		Long: `Details looks up every roster artist in batches of up to 50 and writes
id, name, popularity, followers and genres to a CSV file. Artists the API
does not return are listed on stderr and left out of the file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDetails(cmd.Context(), a, out)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&out, "details-out", "artist_details.csv", "Artist details CSV")
	flags.String("roster", "", "Roster CSV with name and id columns")
	flags.String("market", "", "Market (ISO 3166-1 alpha-2)")
	flags.String("redis-url", "", "Redis URL for the response cache (empty disables it)")
	a.bind(flags, "pipeline.roster", "roster")
	a.bind(flags, "spotify.market", "market")
	a.bind(flags, "cache.redis_url", "redis-url")

	return cmd
}

func runDetails(ctx context.Context, a *app, out string) error {
	cfg := a.cfg

	if cfg.Spotify.ClientID == "" || cfg.Spotify.ClientSecret == "" {
		return &pipeline.SetupError{Op: "credentials", Err: client.ErrMissingCredentials}
	}

	artists, err := roster.Load(cfg.Pipeline.Roster)
	if err != nil {
		return &pipeline.SetupError{Op: "load roster", Err: err}
	}

	api, _, closeAPI, err := newSpotifyClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeAPI()

	f, err := details.New(api, client.MaxArtistIDs, logging.NewLogger("details"))
	if err != nil {
		return &pipeline.SetupError{Op: "details", Err: err}
	}

	result, err := f.Fetch(ctx, artists)
	if err != nil {
		if ctx.Err() != nil {
			return errInterrupted
		}
		return err
	}

	if err := writeFile(out, func(file *os.File) error { return details.WriteCSV(file, result.Details) }); err != nil {
		return err
	}

	for _, id := range result.Missing {
		fmt.Fprintf(a.stderr, "No details for %s\n", id)
	}
	fmt.Fprintf(a.stdout, "Saved %d artists with details to %s\n", len(result.Details), out)
	if result.Err != nil {
		return fmt.Errorf("some artist batches failed: %w", result.Err)
	}
	return nil
}
