package floor

import (
	"fmt"
	"image/color"
)

// DebugSink receives the visualization primitives produced while evaluating.
// They are not part of the verdict.
type DebugSink interface {
	AttachMarker(pin MarkerID, m IntersectionMarker)
	AddSegment(s Segment)
}

// AttachedMarker is an intersection marker together with the pin that owns it
type AttachedMarker struct {
	Pin    MarkerID           `json:"pin"`
	Marker IntersectionMarker `json:"marker"`
}

// DebugGeometry is the full set of debug primitives from one evaluation
type DebugGeometry struct {
	Markers  []AttachedMarker `json:"markers"`
	Segments []Segment        `json:"segments"`
}

// DebugRecorder is a DebugSink that keeps everything it is given
type DebugRecorder struct {
	geometry DebugGeometry
}

// NewDebugRecorder creates an empty recorder
func NewDebugRecorder() *DebugRecorder {
	return &DebugRecorder{
		geometry: DebugGeometry{
			Markers:  make([]AttachedMarker, 0),
			Segments: make([]Segment, 0),
		},
	}
}

// AttachMarker implements DebugSink
func (r *DebugRecorder) AttachMarker(pin MarkerID, m IntersectionMarker) {
	r.geometry.Markers = append(r.geometry.Markers, AttachedMarker{Pin: pin, Marker: m})
}

// AddSegment implements DebugSink
func (r *DebugRecorder) AddSegment(s Segment) {
	r.geometry.Segments = append(r.geometry.Segments, s)
}

// Geometry returns what has been recorded so far
func (r *DebugRecorder) Geometry() DebugGeometry {
	return DebugGeometry{
		Markers:  append([]AttachedMarker{}, r.geometry.Markers...),
		Segments: append([]Segment{}, r.geometry.Segments...),
	}
}

// Colors used by every renderer for pins and debug markers
var (
	ColorUnevaluated   = color.RGBA{128, 128, 128, 255}
	ColorSameFloor     = color.RGBA{0, 200, 0, 255}
	ColorDifferent     = color.RGBA{220, 0, 0, 255}
	ColorProjection    = color.RGBA{128, 0, 128, 255} // purple
	ColorBlockingWall  = color.RGBA{0, 255, 255, 255} // cyan
	ColorSegment       = color.RGBA{255, 140, 0, 255}
	ColorHorizontal    = color.RGBA{200, 200, 200, 255}
	ColorVertical      = color.RGBA{80, 80, 80, 255}
	ColorSurfaceBorder = color.RGBA{140, 140, 140, 255}
)

// StateColor returns the pin color for a visual state
func StateColor(s VisualState) color.RGBA {
	switch s {
	case StateSameFloor:
		return ColorSameFloor
	case StateDifferentFloor:
		return ColorDifferent
	default:
		return ColorUnevaluated
	}
}

// MarkerColor returns the color for a debug intersection marker
func MarkerColor(k MarkerKind) color.RGBA {
	if k == MarkerBlockingWall {
		return ColorBlockingWall
	}
	return ColorProjection
}

// hexColor formats c as #rrggbb
func hexColor(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
