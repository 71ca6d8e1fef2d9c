package floor

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/golang/geo/r3"
)

// PlaceRequest asks for a new pin, either at a world position or relative to a camera
type PlaceRequest struct {
	X      float64    `json:"x"`
	Y      float64    `json:"y"`
	Z      float64    `json:"z"`
	Camera *Transform `json:"camera,omitempty"`
}

// Position returns the requested world position
func (p PlaceRequest) Position() r3.Vector {
	return r3.Vector{X: p.X, Y: p.Y, Z: p.Z}
}

// DecodeSurfaces decodes surface updates from the formats perception publishes:
// - a single surface object
// - an array of surfaces
// - a scene snapshot {"surfaces": [...]}
func DecodeSurfaces(data []byte) ([]Surface, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty data")
	}

	switch data[0] {
	case '[':
		var surfaces []Surface
		if err := json.Unmarshal(data, &surfaces); err != nil {
			return nil, fmt.Errorf("parsing surface array: %w", err)
		}
		return checkTransforms(surfaces)
	case '{':
		var probe struct {
			Surfaces *[]Surface `json:"surfaces"`
		}
		if err := json.Unmarshal(data, &probe); err != nil {
			return nil, fmt.Errorf("parsing surface payload: %w", err)
		}
		if probe.Surfaces != nil {
			return checkTransforms(*probe.Surfaces)
		}
		var s Surface
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("parsing surface: %w", err)
		}
		return checkTransforms([]Surface{s})
	default:
		return nil, fmt.Errorf("unknown format: expected JSON object or array")
	}
}

// checkTransforms rejects surfaces whose transform is missing or not affine.
// A zero matrix would collapse every hit point and boundary vertex onto the origin.
func checkTransforms(surfaces []Surface) ([]Surface, error) {
	for i, s := range surfaces {
		if !s.Transform.IsAffine() {
			return nil, fmt.Errorf("surface %d (%q): missing or non-affine transform %v", i, s.ID, s.Transform)
		}
	}
	return surfaces, nil
}

// DecodeSurfaceIDs decodes a removal payload: an array of IDs or a single ID string
func DecodeSurfaceIDs(data []byte) ([]SurfaceID, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty data")
	}

	var ids []SurfaceID
	if err := json.Unmarshal(data, &ids); err == nil {
		return ids, nil
	}
	var id SurfaceID
	if err := json.Unmarshal(data, &id); err == nil && id != "" {
		return []SurfaceID{id}, nil
	}
	// Raw, unquoted ID
	return []SurfaceID{SurfaceID(data)}, nil
}

// DecodePlaceRequest decodes a pin placement payload
func DecodePlaceRequest(data []byte) (PlaceRequest, error) {
	var req PlaceRequest
	if len(bytes.TrimSpace(data)) == 0 {
		return req, fmt.Errorf("empty data")
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("parsing place request: %w", err)
	}
	return req, nil
}
