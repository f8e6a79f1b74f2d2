package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Sternrassler/collabgraph/internal/checkpoint"
	"github.com/Sternrassler/collabgraph/internal/pipeline"
	"github.com/Sternrassler/collabgraph/internal/roster"
	"github.com/Sternrassler/collabgraph/pkg/logging"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
)

const nameColumnWidth = 32

func newStatusCmd(a *app) *cobra.Command {
	var next int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show harvest progress over the roster",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), a, next)
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&next, "next", "n", 10, "Number of upcoming artists to list")
	flags.String("roster", "", "Roster CSV with name and id columns")
	flags.String("output", "", "Edge table CSV")
	flags.String("backend", "", "Checkpoint backend (csv, sqlite)")
	a.bind(flags, "pipeline.roster", "roster")
	a.bind(flags, "pipeline.output", "output")
	a.bind(flags, "checkpoint.backend", "backend")

	return cmd
}

func runStatus(ctx context.Context, a *app, next int) error {
	artists, err := roster.Load(a.cfg.Pipeline.Roster)
	if err != nil {
		return &pipeline.SetupError{Op: "load roster", Err: err}
	}

	store, err := checkpoint.Open(ctx, a.cfg.Checkpoint, logging.NewLogger("checkpoint"))
	if err != nil {
		return &pipeline.SetupError{Op: "open checkpoint", Err: err}
	}
	defer store.Close()

	processed, err := store.AlreadyProcessed(ctx)
	if err != nil {
		return fmt.Errorf("read checkpoint: %w", err)
	}

	pending := pipeline.Pending(artists, processed)
	unique := len(roster.Universe(artists))

	fmt.Fprintf(a.stdout, "Roster:     %d artists\n", unique)
	fmt.Fprintf(a.stdout, "Processed:  %d\n", unique-len(pending))
	fmt.Fprintf(a.stdout, "Remaining:  %d\n", len(pending))

	if len(pending) == 0 || next <= 0 {
		return nil
	}
	fmt.Fprintln(a.stdout)
	writeArtistTable(a.stdout, pending[:min(next, len(pending))])
	return nil
}

// writeArtistTable prints names and ids in aligned columns. Names wider than
// the column are truncated by display width.
func writeArtistTable(w io.Writer, artists []roster.Artist) {
	fmt.Fprintf(w, "%s  %s\n", pad("NEXT ARTIST", nameColumnWidth), "ID")
	for _, a := range artists {
		fmt.Fprintf(w, "%s  %s\n", pad(a.Name, nameColumnWidth), a.ID)
	}
}

func pad(s string, width int) string {
	s = runewidth.Truncate(s, width, "…")
	return s + strings.Repeat(" ", width-runewidth.StringWidth(s))
}
