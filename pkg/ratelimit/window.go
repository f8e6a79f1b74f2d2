// Package ratelimit implements client-side request admission for the Spotify Web API.
// Spotify enforces a rolling-window limit and answers violations with long
// suspensions, so requests are held back before they are sent rather than
// after a 429 arrives.
package ratelimit

import (
	"time"
)

// Window is the ordered log of admission timestamps within the trailing window.
// It is not safe for concurrent use; Limiter guards it.
type Window struct {
	// Size is the width of the trailing window.
	Size time.Duration

	stamps []time.Time
}

// NewWindow creates an empty window of the given width.
func NewWindow(size time.Duration) *Window {
	return &Window{Size: size}
}

// Prune drops every timestamp whose age at now is >= Size.
// Returns the number of entries removed.
func (w *Window) Prune(now time.Time) int {
	n := 0
	for n < len(w.stamps) && now.Sub(w.stamps[n]) >= w.Size {
		n++
	}
	if n > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[n:]...)
	}
	return n
}

// Len returns the number of timestamps currently held.
func (w *Window) Len() int {
	return len(w.stamps)
}

// Count returns how many held timestamps fall inside the window ending at now
// without mutating the log.
func (w *Window) Count(now time.Time) int {
	count := 0
	for _, ts := range w.stamps {
		if now.Sub(ts) < w.Size {
			count++
		}
	}
	return count
}

// Record appends an admission at now. A clock that moved backwards is clamped
// to the newest stamp so the log stays ordered.
func (w *Window) Record(now time.Time) time.Time {
	if n := len(w.stamps); n > 0 && now.Before(w.stamps[n-1]) {
		now = w.stamps[n-1]
	}
	w.stamps = append(w.stamps, now)
	return now
}

// WaitFor returns how long a caller must wait at now before the oldest entry
// leaves the window, plus buffer. Non-positive results are reported as zero.
func (w *Window) WaitFor(now time.Time, buffer time.Duration) time.Duration {
	if len(w.stamps) == 0 {
		return 0
	}
	wait := w.Size - now.Sub(w.stamps[0]) + buffer
	if wait < 0 {
		return 0
	}
	return wait
}
