package floor

import (
	"fmt"
	"time"

	"github.com/golang/geo/r3"
)

// Alignment is the orientation class of a detected planar surface
type Alignment int

const (
	AlignmentHorizontal Alignment = iota
	AlignmentVertical
)

// String returns the lower-case alignment name used in JSON and logs
func (a Alignment) String() string {
	switch a {
	case AlignmentHorizontal:
		return "horizontal"
	case AlignmentVertical:
		return "vertical"
	default:
		return fmt.Sprintf("alignment(%d)", int(a))
	}
}

// MarshalText implements encoding.TextMarshaler
func (a Alignment) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (a *Alignment) UnmarshalText(text []byte) error {
	switch string(text) {
	case "horizontal", "":
		*a = AlignmentHorizontal
	case "vertical":
		*a = AlignmentVertical
	default:
		return fmt.Errorf("unknown alignment %q", string(text))
	}
	return nil
}

// SurfaceID is the opaque identity of a surface, stable across perception updates
type SurfaceID string

// Extent is the size of a surface's bounding rectangle in its local X/Z plane
type Extent struct {
	Width float64 `json:"width" yaml:"width"` // local X
	Depth float64 `json:"depth" yaml:"depth"` // local Z
}

// Surface is a detected planar region. The plane lies at local y = 0 of Transform and
// the boundary polygon is expressed in that local frame.
type Surface struct {
	ID             SurfaceID   `json:"id"`
	Alignment      Alignment   `json:"alignment"`
	Transform      Transform   `json:"transform"`
	Center         r3.Vector   `json:"center"`
	Extent         Extent      `json:"extent"`
	Boundary       []r3.Vector `json:"boundary"`
	Classification string      `json:"classification,omitempty"` // "floor", "wall", "table", ...
}

// WorldBoundary returns the boundary polygon transformed into world coordinates
func (s *Surface) WorldBoundary() []r3.Vector {
	out := make([]r3.Vector, len(s.Boundary))
	for i, v := range s.Boundary {
		out[i] = TransformPoint(v, s.Transform)
	}
	return out
}

// RaycastQuery describes a single ray cast against the surface registry
type RaycastQuery struct {
	Origin    r3.Vector `json:"origin"`
	Direction r3.Vector `json:"direction"`
	Alignment Alignment `json:"alignment"`
}

// ProjectionResult is one surface intersected by a ray cast
type ProjectionResult struct {
	Surface        Surface      `json:"surface"`
	WorldTransform Transform    `json:"worldTransform"` // translation is the hit point
	Distance       float64      `json:"distance"`       // from query origin to hit point
	Query          RaycastQuery `json:"query"`
}

// Point returns the world-space intersection point
func (r ProjectionResult) Point() r3.Vector {
	return r.WorldTransform.Position()
}

// MarkerID identifies a pin within a PinStore
type MarkerID string

// VisualState is the evaluation tag a renderer uses to color a pin
type VisualState int

const (
	StateUnevaluated VisualState = iota
	StateSameFloor
	StateDifferentFloor
)

func (s VisualState) String() string {
	switch s {
	case StateSameFloor:
		return "same-floor"
	case StateDifferentFloor:
		return "different-floor"
	default:
		return "unevaluated"
	}
}

// MarshalText implements encoding.TextMarshaler
func (s VisualState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// MarkerKind distinguishes debug intersection markers
type MarkerKind int

const (
	MarkerProjection   MarkerKind = iota // pin projected onto a horizontal surface
	MarkerBlockingWall                   // wall hit lying between the two projections
)

func (k MarkerKind) String() string {
	if k == MarkerBlockingWall {
		return "blocking-wall"
	}
	return "projection"
}

// MarshalText implements encoding.TextMarshaler
func (k MarkerKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// IntersectionMarker is a debug marker attached to a pin, positioned in the pin's local frame
type IntersectionMarker struct {
	Kind    MarkerKind `json:"kind"`
	Surface SurfaceID  `json:"surface"`
	Local   Transform  `json:"local"` // relative to the owning pin
	World   r3.Vector  `json:"world"`
}

// Marker is a user-placed pin
type Marker struct {
	ID          MarkerID             `json:"id"`
	Index       int                  `json:"index"`
	Transform   Transform            `json:"transform"`
	State       VisualState          `json:"state"`
	Attachments []IntersectionMarker `json:"attachments,omitempty"`
}

// Position returns the pin's world position
func (m Marker) Position() r3.Vector {
	return m.Transform.Position()
}

// Segment is a debug line between two world points
type Segment struct {
	From    r3.Vector `json:"from"`
	To      r3.Vector `json:"to"`
	Surface SurfaceID `json:"surface"`
}

// VerdictKind classifies the floor relationship between two pins. The zero value is
// VerdictUnknown so an unset verdict never reads as walkable.
type VerdictKind int

const (
	VerdictUnknown VerdictKind = iota
	VerdictSameFloor
	VerdictTooFar
	VerdictLeftBoundary
	VerdictCrossedWall
	VerdictNoMatch
	VerdictNoProjection
)

var verdictNames = map[VerdictKind]string{
	VerdictUnknown:      "unknown",
	VerdictSameFloor:    "same-floor",
	VerdictTooFar:       "different-floor-too-far",
	VerdictLeftBoundary: "different-floor-left-boundary",
	VerdictCrossedWall:  "different-floor-crossed-wall",
	VerdictNoMatch:      "different-floor-no-match",
	VerdictNoProjection: "different-floor-no-projection",
}

func (k VerdictKind) String() string {
	if name, ok := verdictNames[k]; ok {
		return name
	}
	return fmt.Sprintf("verdict(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler
func (k VerdictKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *VerdictKind) UnmarshalText(text []byte) error {
	for kind, name := range verdictNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown verdict %q", string(text))
}

// Verdict is the classified outcome of comparing two pins, with the numeric evidence
// needed to render a diagnostic.
type Verdict struct {
	Kind         VerdictKind `json:"kind"`
	Distance     float64     `json:"distance,omitempty"` // between the deciding pair's projections
	ProjectionsA int         `json:"projectionsA"`
	ProjectionsB int         `json:"projectionsB"`
	Surface      SurfaceID   `json:"surface,omitempty"`
	Wall         SurfaceID   `json:"wall,omitempty"`
	WallDistance float64     `json:"wallDistance,omitempty"`
	WallCount    int         `json:"wallCount"` // vertical hits along the connecting ray
}

// SameFloor reports whether the pins share a walkable floor
func (v Verdict) SameFloor() bool {
	return v.Kind == VerdictSameFloor
}

// terminal reports whether the verdict ends the scan over matched pairs
func (v Verdict) terminal() bool {
	return v.Kind == VerdictSameFloor || v.Kind == VerdictCrossedWall
}

// Message returns the human-readable diagnostic for UI display
func (v Verdict) Message() string {
	switch v.Kind {
	case VerdictSameFloor:
		if v.WallCount == 0 {
			return "No walls"
		}
		return "Same floor"
	case VerdictTooFar:
		return fmt.Sprintf("Too far apart (%.2f m)", v.Distance)
	case VerdictLeftBoundary:
		return "Left plane boundary"
	case VerdictCrossedWall:
		return "Hit wall"
	case VerdictNoMatch:
		return fmt.Sprintf("Different planes. P1: %d. P2: %d", v.ProjectionsA, v.ProjectionsB)
	case VerdictNoProjection:
		return fmt.Sprintf("No floor below pin. P1: %d. P2: %d", v.ProjectionsA, v.ProjectionsB)
	default:
		return v.Kind.String()
	}
}

// Evaluation bundles a verdict with the pins it was computed for and the debug geometry
// emitted while computing it.
type Evaluation struct {
	Verdict   Verdict       `json:"verdict"`
	Pins      []Marker      `json:"pins"`
	Debug     DebugGeometry `json:"debug"`
	Timestamp time.Time     `json:"timestamp"`
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
}

// TopicConfig names the topics the service subscribes to. Empty topics are derived
// from the publish prefix.
type TopicConfig struct {
	Surfaces string `yaml:"surfaces,omitempty" json:"surfaces,omitempty"`
	Remove   string `yaml:"remove,omitempty" json:"remove,omitempty"`
	Place    string `yaml:"place,omitempty" json:"place,omitempty"`
	Reset    string `yaml:"reset,omitempty" json:"reset,omitempty"`
}

// EvaluationConfig holds the evaluator constants
type EvaluationConfig struct {
	FarThreshold      float64 `yaml:"farThreshold,omitempty" json:"farThreshold,omitempty"`           // meters
	ProjectionEpsilon float64 `yaml:"projectionEpsilon,omitempty" json:"projectionEpsilon,omitempty"` // occlusion ray lift off the floor
	PlacementDistance float64 `yaml:"placementDistance,omitempty" json:"placementDistance,omitempty"` // camera-relative pin distance
}

// RenderConfig holds debug rendering settings
type RenderConfig struct {
	PixelsPerMeter float64 `yaml:"pixelsPerMeter,omitempty" json:"pixelsPerMeter,omitempty"`
	Padding        float64 `yaml:"padding,omitempty" json:"padding,omitempty"`         // meters
	GridSpacing    float64 `yaml:"gridSpacing,omitempty" json:"gridSpacing,omitempty"` // meters
	Resolution     float64 `yaml:"resolution,omitempty" json:"resolution,omitempty"`   // vector PNG DPI
}

// Config represents the full configuration file
type Config struct {
	MQTT       MQTTConfig       `yaml:"mqtt" json:"mqtt"`
	Topics     TopicConfig      `yaml:"topics,omitempty" json:"topics,omitempty"`
	Evaluation EvaluationConfig `yaml:"evaluation,omitempty" json:"evaluation,omitempty"`
	Render     RenderConfig     `yaml:"render,omitempty" json:"render,omitempty"`
	SceneFile  string           `yaml:"sceneFile,omitempty" json:"sceneFile,omitempty"`
}
