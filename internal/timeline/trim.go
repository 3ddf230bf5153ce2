// Package timeline holds the pure planning math for a merge: per-clip trim
// windows, the common target resolution, and the timeline frame rate. It does
// no I/O; the media engine executes what this package plans.
package timeline

import "github.com/gendew/merge-video/internal/models"

// TrimSpec requests keeping Seconds of a clip, anchored at its head or tail.
// A zero or negative Seconds means no trim.
type TrimSpec struct {
	Seconds float64
	Anchor  models.TrimAnchor
}

// Window is a retained sub-range of a clip, in seconds from the source start.
type Window struct {
	Start float64
	End   float64
}

// Duration returns the window length in seconds.
func (w Window) Duration() float64 {
	return w.End - w.Start
}

// Covers reports whether the window spans the whole of a source of the given
// duration, i.e. the trim is a no-op for rendering purposes.
func (w Window) Covers(sourceDuration float64) bool {
	return w.Start == 0 && w.End == sourceDuration
}

// Trim computes the retained window for one clip. Requests longer than the
// source clamp to the full clip regardless of anchor; clamped reports that so
// the caller can warn. anchor=head keeps the first Seconds, anchor=tail the
// last Seconds.
func Trim(sourceDuration float64, spec TrimSpec) (w Window, clamped bool) {
	if spec.Seconds <= 0 {
		return Window{Start: 0, End: sourceDuration}, false
	}

	keep := spec.Seconds
	if keep > sourceDuration {
		keep = sourceDuration
		clamped = true
	}

	if spec.Anchor == models.AnchorTail {
		return Window{Start: sourceDuration - keep, End: sourceDuration}, clamped
	}
	return Window{Start: 0, End: keep}, clamped
}
