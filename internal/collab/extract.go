package collab

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/Sternrassler/collabgraph/internal/harvest"
)

// Mode selects which artist pairs qualify as edges.
type Mode string

const (
	// ModeEgo links the primary artist to everyone credited alongside them.
	ModeEgo Mode = "ego"

	// ModeRestricted links every pair of universe members credited on a track.
	ModeRestricted Mode = "restricted"
)

// ErrUnknownMode is returned by ParseMode for anything but ego or restricted.
var ErrUnknownMode = errors.New("unknown extraction mode")

// ParseMode parses a mode name, case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeEgo, ModeRestricted:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Options configures Extract.
type Options struct {
	Mode Mode

	// Primary is the artist every ego-mode edge is anchored on.
	Primary string

	// Universe is the set of artist ids restricted-mode edges are drawn from.
	Universe map[string]struct{}
}

// Validate checks that the options fit the mode.
func (o Options) Validate() error {
	switch o.Mode {
	case ModeEgo:
		if o.Primary == "" {
			return fmt.Errorf("ego mode requires a primary artist")
		}
	case ModeRestricted:
		if len(o.Universe) == 0 {
			return fmt.Errorf("restricted mode requires a non-empty universe")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMode, o.Mode)
	}
	return nil
}

// Graph holds the edges extracted from one set of tracks.
type Graph struct {
	Mode    Mode
	Primary string

	// Names maps every credited artist id to the first display name seen.
	Names map[string]string

	// TracksSeen counts unique tracks examined.
	TracksSeen int
	// TracksSkipped counts tracks without an id.
	TracksSkipped int
	// TracksDuplicate counts repeats of an already examined track id.
	TracksDuplicate int

	edges map[EdgeKey]*Edge
	order []EdgeKey
}

// Edges returns the edges in the order they were first found.
func (g *Graph) Edges() []*Edge {
	out := make([]*Edge, 0, len(g.order))
	for _, k := range g.order {
		out = append(out, g.edges[k])
	}
	return out
}

// Edge looks up the edge between a and b.
func (g *Graph) Edge(a, b string) (*Edge, bool) {
	e, ok := g.edges[NewEdgeKey(a, b)]
	return e, ok
}

// Len returns the number of edges.
func (g *Graph) Len() int {
	return len(g.order)
}

// Name returns the display name for id, or id itself when none was seen.
func (g *Graph) Name(id string) string {
	if name, ok := g.Names[id]; ok && name != "" {
		return name
	}
	return id
}

func (g *Graph) link(a, b string, track harvest.Track) {
	key := NewEdgeKey(a, b)
	e, ok := g.edges[key]
	if !ok {
		e = &Edge{Key: key}
		g.edges[key] = e
		g.order = append(g.order, key)
	}
	e.add(track.ID, track.Name)
}

// Extract builds the collaboration graph for tracks. Tracks without an id are
// skipped and repeated track ids are examined once. A credit listed twice on
// one track counts once.
func Extract(tracks []harvest.Track, opts Options) (*Graph, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	g := &Graph{
		Mode:    opts.Mode,
		Primary: opts.Primary,
		Names:   make(map[string]string),
		edges:   make(map[EdgeKey]*Edge),
	}
	seen := make(map[string]struct{}, len(tracks))

	for _, track := range tracks {
		if track.ID == "" {
			g.TracksSkipped++
			continue
		}
		if _, dup := seen[track.ID]; dup {
			g.TracksDuplicate++
			continue
		}
		seen[track.ID] = struct{}{}
		g.TracksSeen++

		credited := g.credited(track)

		switch opts.Mode {
		case ModeEgo:
			if !slices.Contains(credited, opts.Primary) {
				continue
			}
			for _, id := range credited {
				if id != opts.Primary {
					g.link(opts.Primary, id, track)
				}
			}
		case ModeRestricted:
			members := make([]string, 0, len(credited))
			for _, id := range credited {
				if _, ok := opts.Universe[id]; ok {
					members = append(members, id)
				}
			}
			for i := 0; i < len(members); i++ {
				for j := i + 1; j < len(members); j++ {
					g.link(members[i], members[j], track)
				}
			}
		}
	}

	return g, nil
}

// credited returns the distinct credited artist ids in credit order and
// records their names.
func (g *Graph) credited(track harvest.Track) []string {
	ids := make([]string, 0, len(track.Credits))
	for _, c := range track.Credits {
		if c.ID == "" || slices.Contains(ids, c.ID) {
			continue
		}
		ids = append(ids, c.ID)
		if _, ok := g.Names[c.ID]; !ok {
			g.Names[c.ID] = c.Name
		}
	}
	return ids
}
