package timeline

import "github.com/gendew/merge-video/internal/models"

// Geometry is a frame size in pixels. The zero value is the "unchanged"
// sentinel: no per-clip resize is applied.
type Geometry struct {
	Width  int
	Height int
}

// IsZero reports whether g is the unchanged sentinel.
func (g Geometry) IsZero() bool {
	return g.Width == 0 && g.Height == 0
}

// PlanResolution computes the uniform target frame size for a merge strategy.
// KeepNative returns the unchanged sentinel; ScaleToMax returns the maximum
// width and height across all clips; ScaleToFirst returns the first clip's
// geometry.
func PlanResolution(strategy models.MergeStrategy, clips []Geometry) Geometry {
	if len(clips) == 0 {
		return Geometry{}
	}
	switch strategy {
	case models.MergeScaleToMax:
		return MaxGeometry(clips)
	case models.MergeScaleToFirst:
		return clips[0]
	}
	return Geometry{}
}

// MaxGeometry returns the maximum width and height across clips. Under
// KeepNative this is the canvas the media engine letterboxes differing clips
// onto at concatenation time.
func MaxGeometry(clips []Geometry) Geometry {
	var out Geometry
	for _, c := range clips {
		if c.Width > out.Width {
			out.Width = c.Width
		}
		if c.Height > out.Height {
			out.Height = c.Height
		}
	}
	return out
}

// MaxFPS returns the highest frame rate across clips; the concatenated
// timeline is rendered at this rate.
func MaxFPS(rates []float64) float64 {
	var out float64
	for _, r := range rates {
		if r > out {
			out = r
		}
	}
	return out
}
