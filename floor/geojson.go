package floor

import (
	"encoding/json"
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Feature "layer" property values
const (
	LayerSurface = "surface"
	LayerPin     = "pin"
	LayerMarker  = "marker"
	LayerSegment = "segment"
)

// SceneToFeatureCollection exports surfaces, pins and debug geometry as a top-down
// GeoJSON FeatureCollection. Coordinates are plan coordinates [x, z] in meters;
// the elevation is carried in the "y" property.
//
// Horizontal surfaces become Polygons. Vertical surfaces project onto the plan as
// LineStrings along their base.
func SceneToFeatureCollection(surfaces []Surface, eval *Evaluation) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for _, s := range surfaces {
		if f := SurfaceToFeature(s); f != nil {
			fc.Append(f)
		}
	}

	if eval == nil {
		return fc
	}

	for _, pin := range eval.Pins {
		fc.Append(PinToFeature(pin))
	}
	for _, am := range eval.Debug.Markers {
		f := geojson.NewFeature(planPoint(am.Marker.World))
		f.Properties["layer"] = LayerMarker
		f.Properties["kind"] = am.Marker.Kind.String()
		f.Properties["pin"] = string(am.Pin)
		f.Properties["surface"] = string(am.Marker.Surface)
		f.Properties["y"] = am.Marker.World.Y
		f.Properties["color"] = hexColor(MarkerColor(am.Marker.Kind))
		fc.Append(f)
	}
	for _, seg := range eval.Debug.Segments {
		f := geojson.NewFeature(orb.LineString{planPoint(seg.From), planPoint(seg.To)})
		f.Properties["layer"] = LayerSegment
		f.Properties["surface"] = string(seg.Surface)
		f.Properties["length"] = seg.From.Sub(seg.To).Norm()
		f.Properties["color"] = hexColor(ColorSegment)
		fc.Append(f)
	}

	fc.ExtraMembers = geojson.Properties{
		"verdict":   eval.Verdict.Kind.String(),
		"message":   eval.Verdict.Message(),
		"sameFloor": eval.Verdict.SameFloor(),
	}
	return fc
}

// SurfaceToFeature converts one surface. Surfaces without a usable boundary fall
// back to their center/extent rectangle; nil is returned if neither exists.
func SurfaceToFeature(s Surface) *geojson.Feature {
	world := s.WorldBoundary()
	if len(world) == 0 && (s.Extent.Width > 0 || s.Extent.Depth > 0) {
		w, d := s.Extent.Width/2, s.Extent.Depth/2
		for _, c := range [][2]float64{{-w, -d}, {w, -d}, {w, d}, {-w, d}} {
			local := r3.Vector{X: s.Center.X + c[0], Y: s.Center.Y, Z: s.Center.Z + c[1]}
			world = append(world, TransformPoint(local, s.Transform))
		}
	}
	if len(world) == 0 {
		return nil
	}

	var geom orb.Geometry
	switch {
	case s.Alignment == AlignmentVertical:
		geom = verticalFootprint(world)
	case len(world) >= 3:
		ring := make(orb.Ring, len(world))
		for i, v := range world {
			ring[i] = planPoint(v)
		}
		if !ring.Closed() {
			ring = append(ring, ring[0])
		}
		geom = orb.Polygon{ring}
	default:
		ls := make(orb.LineString, len(world))
		for i, v := range world {
			ls[i] = planPoint(v)
		}
		geom = ls
	}

	f := geojson.NewFeature(geom)
	f.ID = string(s.ID)
	f.Properties["layer"] = LayerSurface
	f.Properties["id"] = string(s.ID)
	f.Properties["alignment"] = s.Alignment.String()
	f.Properties["y"] = s.Transform.Position().Y
	if s.Classification != "" {
		f.Properties["classification"] = s.Classification
	}
	return f
}

// verticalFootprint is the plan view of a wall: the line between its two most
// distant plan points.
func verticalFootprint(world []r3.Vector) orb.LineString {
	if len(world) == 1 {
		p := planPoint(world[0])
		return orb.LineString{p, p}
	}
	var a, b orb.Point
	best := -1.0
	for i := range world {
		for j := i + 1; j < len(world); j++ {
			pi, pj := planPoint(world[i]), planPoint(world[j])
			dx, dy := pi[0]-pj[0], pi[1]-pj[1]
			if d := dx*dx + dy*dy; d > best {
				best, a, b = d, pi, pj
			}
		}
	}
	return orb.LineString{a, b}
}

// PinToFeature converts a pin into a Point feature
func PinToFeature(m Marker) *geojson.Feature {
	pos := m.Position()
	f := geojson.NewFeature(planPoint(pos))
	f.ID = string(m.ID)
	f.Properties["layer"] = LayerPin
	f.Properties["index"] = m.Index
	f.Properties["state"] = m.State.String()
	f.Properties["y"] = pos.Y
	f.Properties["color"] = hexColor(StateColor(m.State))
	return f
}

// ExportSceneGeoJSON marshals the scene export to indented JSON
func ExportSceneGeoJSON(surfaces []Surface, eval *Evaluation) ([]byte, error) {
	fc := SceneToFeatureCollection(surfaces, eval)
	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling scene GeoJSON: %w", err)
	}
	return data, nil
}
