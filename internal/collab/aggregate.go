package collab

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/Sternrassler/collabgraph/internal/roster"
	"gonum.org/v1/gonum/mat"
)

// Aggregate merges edge table rows from many primary artists into one graph
// over a fixed roster. The same track reported by several primaries counts
// once per edge.
type Aggregate struct {
	artists []roster.Artist
	index   map[string]int
	edges   *edgeSet
}

// edgeSet merges rows into one edge per pair, counting each track once.
type edgeSet struct {
	edges  map[EdgeKey]*Edge
	tracks map[EdgeKey]map[string]struct{}
}

func newEdgeSet() *edgeSet {
	return &edgeSet{
		edges:  make(map[EdgeKey]*Edge),
		tracks: make(map[EdgeKey]map[string]struct{}),
	}
}

func (s *edgeSet) add(row Row) {
	key := row.Key()
	e, ok := s.edges[key]
	if !ok {
		e = &Edge{Key: key}
		s.edges[key] = e
		s.tracks[key] = make(map[string]struct{})
	}
	seen := s.tracks[key]

	// Names are only matched to ids when both columns line up. Otherwise a
	// track name is its own identity.
	aligned := len(row.TrackIDs) == len(row.Tracks)
	for i, name := range row.Tracks {
		id := "name:" + name
		trackID := ""
		if aligned && row.TrackIDs[i] != "" {
			trackID = row.TrackIDs[i]
			id = trackID
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		e.add(trackID, name)
	}
}

func (s *edgeSet) sorted() []*Edge {
	out := make([]*Edge, 0, len(s.edges))
	for _, e := range s.edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.A != out[j].Key.A {
			return out[i].Key.A < out[j].Key.A
		}
		return out[i].Key.B < out[j].Key.B
	})
	return out
}

// Merge combines rows from any number of primary artists into one edge per
// pair, sorted by key, and returns the display name of every endpoint.
// Self-pairs are dropped.
func Merge(rows []Row) ([]*Edge, map[string]string) {
	set := newEdgeSet()
	names := make(map[string]string)
	for _, r := range rows {
		if r.FirstID == "" || r.SecondID == "" || r.FirstID == r.SecondID {
			continue
		}
		if _, ok := names[r.FirstID]; !ok {
			names[r.FirstID] = r.First
		}
		if _, ok := names[r.SecondID]; !ok {
			names[r.SecondID] = r.Second
		}
		set.add(r)
	}
	return set.sorted(), names
}

// NewAggregate creates an empty aggregate over artists. Duplicate ids keep
// their first position.
func NewAggregate(artists []roster.Artist) *Aggregate {
	a := &Aggregate{
		index: make(map[string]int, len(artists)),
		edges: newEdgeSet(),
	}
	for _, artist := range artists {
		if _, dup := a.index[artist.ID]; dup {
			continue
		}
		a.index[artist.ID] = len(a.artists)
		a.artists = append(a.artists, artist)
	}
	return a
}

// Add merges row into the aggregate. It reports false when either endpoint is
// outside the roster or the row is a self-pair.
func (a *Aggregate) Add(row Row) bool {
	if row.FirstID == row.SecondID {
		return false
	}
	if _, ok := a.index[row.FirstID]; !ok {
		return false
	}
	if _, ok := a.index[row.SecondID]; !ok {
		return false
	}

	a.edges.add(row)
	return true
}

// Artists returns the roster the aggregate is keyed on.
func (a *Aggregate) Artists() []roster.Artist {
	return a.artists
}

// Edges returns the merged edges sorted by key.
func (a *Aggregate) Edges() []*Edge {
	return a.edges.sorted()
}

// Matrix returns the symmetric adjacency matrix in roster order. Cells hold 1
// for collaborating pairs, or the track count when weighted.
func (a *Aggregate) Matrix(weighted bool) *mat.SymDense {
	n := len(a.artists)
	if n == 0 {
		return &mat.SymDense{}
	}
	m := mat.NewSymDense(n, nil)
	for key, e := range a.edges.edges {
		v := 1.0
		if weighted {
			v = float64(e.Weight())
		}
		m.SetSym(a.index[key.A], a.index[key.B], v)
	}
	return m
}

// Collaborations returns the number of collaborating pairs.
func (a *Aggregate) Collaborations() int {
	return len(a.edges.edges)
}

// WriteMatrix writes the adjacency matrix as CSV with artist display names as
// the header row and the first column.
func (a *Aggregate) WriteMatrix(w io.Writer, weighted bool) error {
	cw := csv.NewWriter(w)

	header := make([]string, 0, len(a.artists)+1)
	header = append(header, "")
	for _, artist := range a.artists {
		header = append(header, artist.Name)
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write matrix header: %w", err)
	}

	m := a.Matrix(weighted)
	for i, artist := range a.artists {
		record := make([]string, 0, len(a.artists)+1)
		record = append(record, artist.Name)
		for j := range a.artists {
			record = append(record, strconv.FormatFloat(m.At(i, j), 'f', -1, 64))
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write matrix row %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteDetails writes one line per collaborating pair with the supporting
// track names.
func (a *Aggregate) WriteDetails(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Artist 1", "Artist 2", "Number of Collaborations", "Track Names"}); err != nil {
		return fmt.Errorf("write details header: %w", err)
	}

	for _, e := range a.Edges() {
		record := []string{
			a.artists[a.index[e.Key.A]].Name,
			a.artists[a.index[e.Key.B]].Name,
			strconv.Itoa(e.Weight()),
			strings.Join(e.Evidence, TrackSeparator),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write details row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}
