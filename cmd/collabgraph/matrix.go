package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Sternrassler/collabgraph/internal/checkpoint"
	"github.com/Sternrassler/collabgraph/internal/collab"
	"github.com/Sternrassler/collabgraph/internal/pipeline"
	"github.com/Sternrassler/collabgraph/internal/roster"
	"github.com/Sternrassler/collabgraph/pkg/logging"
	"github.com/spf13/cobra"
)

type matrixOptions struct {
	matrixPath  string
	detailsPath string
	weighted    bool
}

func newMatrixCmd(a *app) *cobra.Command {
	opts := &matrixOptions{}

	cmd := &cobra.Command{
		Use:   "matrix",
		Short: "Write the roster adjacency matrix and collaboration details",
		Long: `Matrix aggregates the stored edge rows over the roster and writes:

  - a symmetric adjacency matrix keyed by artist display name, with 1 for
    artists who share at least one track (or the track count with
    --weighted)
  - a details table listing each collaborating pair and its tracks

Rows involving artists outside the roster are ignored. A track reported
by both artists of a pair is counted once.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMatrix(cmd.Context(), a, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.matrixPath, "matrix-out", "collaboration_matrix.csv", "Adjacency matrix CSV")
	flags.StringVar(&opts.detailsPath, "details-out", "collaboration_details.csv", "Collaboration details CSV")
	flags.BoolVar(&opts.weighted, "weighted", false, "Write track counts instead of 0/1")
	flags.String("roster", "", "Roster CSV with name and id columns")
	flags.String("output", "", "Edge table CSV")
	flags.String("backend", "", "Checkpoint backend (csv, sqlite)")
	a.bind(flags, "pipeline.roster", "roster")
	a.bind(flags, "pipeline.output", "output")
	a.bind(flags, "checkpoint.backend", "backend")

	return cmd
}

func runMatrix(ctx context.Context, a *app, opts *matrixOptions) error {
	artists, rows, err := loadResults(ctx, a)
	if err != nil {
		return err
	}

	agg := collab.NewAggregate(artists)
	ignored := 0
	for _, r := range rows {
		if !agg.Add(r) {
			ignored++
		}
	}

	if err := writeFile(opts.matrixPath, func(f *os.File) error { return agg.WriteMatrix(f, opts.weighted) }); err != nil {
		return err
	}
	if err := writeFile(opts.detailsPath, func(f *os.File) error { return agg.WriteDetails(f) }); err != nil {
		return err
	}

	a.logger.Info().
		Int("artists", len(agg.Artists())).
		Int("rows", len(rows)).
		Int("rows_ignored", ignored).
		Int("collaborations", agg.Collaborations()).
		Msg("Matrix written")

	fmt.Fprintf(a.stdout, "Adjacency matrix saved to %s (%dx%d)\n", opts.matrixPath, len(agg.Artists()), len(agg.Artists()))
	fmt.Fprintf(a.stdout, "Collaboration details saved to %s\n", opts.detailsPath)
	fmt.Fprintf(a.stdout, "Total collaborations found: %d\n", agg.Collaborations())
	return nil
}

// loadResults reads the roster and every stored edge row.
func loadResults(ctx context.Context, a *app) ([]roster.Artist, []collab.Row, error) {
	artists, err := roster.Load(a.cfg.Pipeline.Roster)
	if err != nil {
		return nil, nil, &pipeline.SetupError{Op: "load roster", Err: err}
	}

	store, err := checkpoint.Open(ctx, a.cfg.Checkpoint, logging.NewLogger("checkpoint"))
	if err != nil {
		return nil, nil, &pipeline.SetupError{Op: "open checkpoint", Err: err}
	}
	defer store.Close()

	rows, err := store.Rows(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("read edge rows: %w", err)
	}
	return artists, rows, nil
}

func writeFile(path string, write func(f *os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
