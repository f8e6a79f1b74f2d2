package graphsink

import (
	"context"
	"testing"
	"time"

	"github.com/Sternrassler/collabgraph/internal/collab"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildParams(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rows := []collab.Row{
		{FirstID: "id2", First: "B", SecondID: "id1", Second: "A", Count: 1, Tracks: []string{"Together"}, TrackIDs: []string{"t1"}},
		{FirstID: "id1", First: "A", SecondID: "id2", Second: "B", Count: 1, Tracks: []string{"Together"}, TrackIDs: []string{"t1"}},
		{FirstID: "id1", First: "A", SecondID: "zz", Second: "", Count: 1, Tracks: []string{"Guest"}, TrackIDs: []string{"t2"}},
	}

	artists, edges := buildParams(rows, now)

	require.Len(t, edges, 2)
	assert.Equal(t, map[string]any{
		"a":         "id1",
		"b":         "id2",
		"count":     int64(1),
		"tracks":    []string{"Together"},
		"track_ids": []string{"t1"},
		"synced_at": "2024-05-01T12:00:00Z",
	}, edges[0])
	assert.Equal(t, "zz", edges[1]["b"])

	ids := make([]string, 0, len(artists))
	for _, a := range artists {
		ids = append(ids, a["id"].(string))
	}
	assert.Equal(t, []string{"id1", "id2", "zz"}, ids)
	assert.Equal(t, "zz", artists[2]["name"], "missing names fall back to the id")
}

func TestBuildParams_Empty(t *testing.T) {
	artists, edges := buildParams(nil, time.Now())
	assert.Empty(t, artists)
	assert.Empty(t, edges)
}

func TestNew_RequiresURI(t *testing.T) {
	_, err := New(context.Background(), Config{}, zerolog.Nop())
	assert.Error(t, err)
}
