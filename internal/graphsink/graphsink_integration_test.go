//go:build integration

package graphsink

import (
	"context"
	"testing"
	"time"

	"github.com/Sternrassler/collabgraph/internal/collab"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupNeo4jContainer starts Neo4j with authentication disabled.
func setupNeo4jContainer(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "neo4j:5",
			ExposedPorts: []string{"7687/tcp"},
			Env:          map[string]string{"NEO4J_AUTH": "none"},
			WaitingFor:   wait.ForLog("Started.").WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "7687")
	require.NoError(t, err)

	return "bolt://" + host + ":" + port.Port()
}

func TestIntegration_ExportIsIdempotent(t *testing.T) {
	uri := setupNeo4jContainer(t)
	ctx := context.Background()

	sink, err := New(ctx, Config{URI: uri, BatchSize: 1}, zerolog.Nop())
	require.NoError(t, err)
	defer sink.Close(ctx)

	rows := []collab.Row{
		{FirstID: "id1", First: "A", SecondID: "id2", Second: "B", Count: 2, Tracks: []string{"One", "Two"}, TrackIDs: []string{"t1", "t2"}},
		{FirstID: "id2", First: "B", SecondID: "id3", Second: "C", Count: 1, Tracks: []string{"Three"}, TrackIDs: []string{"t3"}},
	}

	for i := 0; i < 2; i++ {
		stats, err := sink.Export(ctx, rows)
		require.NoError(t, err)
		assert.Equal(t, Stats{Artists: 3, Edges: 2}, stats)
	}

	count, err := neo4j.ExecuteQuery(ctx, sink.driver,
		`MATCH (:Artist)-[r:COLLABORATED_WITH]-(:Artist) RETURN count(DISTINCT r) AS n`,
		nil, neo4j.EagerResultTransformer)
	require.NoError(t, err)
	require.Len(t, count.Records, 1)

	n, _ := count.Records[0].Get("n")
	assert.Equal(t, int64(2), n)
}
