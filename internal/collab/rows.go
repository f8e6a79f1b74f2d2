package collab

import (
	"strings"

	"github.com/Sternrassler/collabgraph/internal/roster"
)

// Evidence separators used in the edge table. A ';' or a backslash inside a
// stored name or id is escaped with a backslash.
const (
	TrackSeparator   = "; "
	TrackIDSeparator = ";"
)

var evidenceEscaper = strings.NewReplacer(`\`, `\\`, ";", `\;`)

// Row is one line of the edge table.
type Row struct {
	PrimaryID string
	Primary   string
	FirstID   string
	First     string
	SecondID  string
	Second    string
	Count     int
	Tracks    []string
	TrackIDs  []string
}

// Key returns the canonical pair of the row's endpoints.
func (r Row) Key() EdgeKey {
	return NewEdgeKey(r.FirstID, r.SecondID)
}

// JoinTracks returns the evidence names as stored in the edge table.
func (r Row) JoinTracks() string {
	return joinEscaped(r.Tracks, TrackSeparator)
}

// JoinTrackIDs returns the evidence ids as stored in the edge table.
func (r Row) JoinTrackIDs() string {
	return joinEscaped(r.TrackIDs, TrackIDSeparator)
}

// SplitEvidence parses the tracks and track_ids columns of a stored row. It
// reverses JoinTracks and JoinTrackIDs, so a name containing "; " stays one
// entry.
func SplitEvidence(tracks, trackIDs string) ([]string, []string) {
	return splitEscaped(tracks, true), splitEscaped(trackIDs, false)
}

func joinEscaped(values []string, sep string) string {
	escaped := make([]string, len(values))
	for i, v := range values {
		escaped[i] = evidenceEscaper.Replace(v)
	}
	return strings.Join(escaped, sep)
}

// splitEscaped splits s on unescaped ';'. With spaced set, the single space
// that follows each separator is dropped.
func splitEscaped(s string, spaced bool) []string {
	if s == "" {
		return nil
	}

	var out []string
	var cur strings.Builder
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\\' && i+1 < len(s):
			i++
			cur.WriteByte(s[i])
		case c == ';':
			out = append(out, cur.String())
			cur.Reset()
			if spaced && i+1 < len(s) && s[i+1] == ' ' {
				i++
			}
		default:
			cur.WriteByte(c)
		}
	}
	return append(out, cur.String())
}

// Rows flattens the graph into edge table rows for primary. In ego mode the
// primary artist is always first; in restricted mode first and second follow
// the canonical key order.
func (g *Graph) Rows(primary roster.Artist) []Row {
	rows := make([]Row, 0, g.Len())
	for _, e := range g.Edges() {
		first, second := e.Key.A, e.Key.B
		if g.Mode == ModeEgo {
			first, second = primary.ID, e.Key.Other(primary.ID)
		}

		row := Row{
			PrimaryID: primary.ID,
			Primary:   primary.Name,
			FirstID:   first,
			First:     g.Name(first),
			SecondID:  second,
			Second:    g.Name(second),
			Count:     e.Weight(),
			Tracks:    append([]string(nil), e.Evidence...),
			TrackIDs:  append([]string(nil), e.TrackIDs...),
		}
		if first == primary.ID {
			row.First = primary.Name
		}
		rows = append(rows, row)
	}
	return rows
}
