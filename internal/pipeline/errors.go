package pipeline

import (
	"errors"
	"fmt"

	"github.com/Sternrassler/collabgraph/internal/roster"
)

// Phase names the step an artist failed in.
type Phase string

const (
	PhaseReleases Phase = "releases"
	PhaseTracks   Phase = "tracks"
	PhaseExtract  Phase = "extract"
	PhasePersist  Phase = "persist"
)

// ErrSetup matches every *SetupError.
var ErrSetup = errors.New("setup failed")

// ErrPanic wraps a panic recovered while processing one artist.
var ErrPanic = errors.New("panic")

// SetupError is a failure before any artist is harvested: a missing roster,
// missing credentials, an unreachable token endpoint or an unreadable
// checkpoint. It aborts the run.
type SetupError struct {
	Op  string
	Err error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("setup: %s: %v", e.Op, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// Is matches ErrSetup.
func (e *SetupError) Is(target error) bool {
	return target == ErrSetup
}

// ArtistError is a failure confined to one artist. The run continues with
// the next artist and no rows are stored for this one.
type ArtistError struct {
	Artist roster.Artist
	Phase  Phase
	Err    error
}

func (e *ArtistError) Error() string {
	return fmt.Sprintf("artist %s (%s) failed in %s: %v", e.Artist.Name, e.Artist.ID, e.Phase, e.Err)
}

func (e *ArtistError) Unwrap() error {
	return e.Err
}
