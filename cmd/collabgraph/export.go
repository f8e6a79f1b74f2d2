package main

import (
	"context"
	"fmt"

	"github.com/Sternrassler/collabgraph/internal/checkpoint"
	"github.com/Sternrassler/collabgraph/internal/graphsink"
	"github.com/Sternrassler/collabgraph/internal/pipeline"
	"github.com/Sternrassler/collabgraph/pkg/logging"
	"github.com/spf13/cobra"
)

func newExportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the collaboration graph to Neo4j",
		Long: `Export merges the stored edge rows into one relationship per artist
pair and writes them to Neo4j:

  (:Artist {id, name})-[:COLLABORATED_WITH {count, tracks, track_ids}]-(:Artist)

Exporting again updates the existing nodes and relationships in place.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd.Context(), a)
		},
	}

	flags := cmd.Flags()
	flags.String("output", "", "Edge table CSV")
	flags.String("backend", "", "Checkpoint backend (csv, sqlite)")
	flags.String("neo4j-uri", "", "Neo4j bolt URI")
	flags.String("neo4j-user", "", "Neo4j user")
	flags.String("neo4j-database", "", "Neo4j database (default: server default)")
	a.bind(flags, "pipeline.output", "output")
	a.bind(flags, "checkpoint.backend", "backend")
	a.bind(flags, "neo4j.uri", "neo4j-uri")
	a.bind(flags, "neo4j.user", "neo4j-user")
	a.bind(flags, "neo4j.database", "neo4j-database")

	return cmd
}

func runExport(ctx context.Context, a *app) error {
	cfg := a.cfg

	store, err := checkpoint.Open(ctx, cfg.Checkpoint, logging.NewLogger("checkpoint"))
	if err != nil {
		return &pipeline.SetupError{Op: "open checkpoint", Err: err}
	}
	defer store.Close()

	rows, err := store.Rows(ctx)
	if err != nil {
		return fmt.Errorf("read edge rows: %w", err)
	}

	sink, err := graphsink.New(ctx, graphsink.Config{
		URI:      cfg.Neo4j.URI,
		User:     cfg.Neo4j.User,
		Password: cfg.Neo4j.Password,
		Database: cfg.Neo4j.Database,
	}, logging.NewLogger("graphsink"))
	if err != nil {
		return &pipeline.SetupError{Op: "connect neo4j", Err: err}
	}
	defer sink.Close(context.WithoutCancel(ctx))

	stats, err := sink.Export(ctx, rows)
	if err != nil {
		if ctx.Err() != nil {
			return errInterrupted
		}
		return err
	}

	fmt.Fprintf(a.stdout, "Exported %d artists and %d collaborations to %s\n", stats.Artists, stats.Edges, cfg.Neo4j.URI)
	return nil
}
