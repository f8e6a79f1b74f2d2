// Package collab derives artist collaboration edges from harvested track
// credits and aggregates them into an adjacency matrix.
package collab

// EdgeKey is an unordered artist pair in canonical form: A < B.
type EdgeKey struct {
	A string
	B string
}

// NewEdgeKey returns the canonical key for the pair a, b in either order.
func NewEdgeKey(a, b string) EdgeKey {
	if b < a {
		a, b = b, a
	}
	return EdgeKey{A: a, B: b}
}

// Other returns the endpoint that is not id.
func (k EdgeKey) Other(id string) string {
	if k.A == id {
		return k.B
	}
	return k.A
}

// Edge is a collaboration between two artists and the tracks that show it.
// Evidence and TrackIDs are aligned: Evidence[i] is the name of TrackIDs[i].
type Edge struct {
	Key      EdgeKey
	Evidence []string
	TrackIDs []string
}

// Weight is the number of tracks supporting the edge.
func (e *Edge) Weight() int {
	return len(e.Evidence)
}

func (e *Edge) add(trackID, trackName string) {
	e.Evidence = append(e.Evidence, trackName)
	e.TrackIDs = append(e.TrackIDs, trackID)
}
