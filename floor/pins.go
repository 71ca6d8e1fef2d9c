package floor

import (
	"github.com/golang/geo/r3"
	"github.com/google/uuid"
)

// PinCapacity is the number of pins a store holds; evaluation runs when it is reached
const PinCapacity = 2

// EvictionHandler is called with a pin removed to make room for a new one, so the
// rendering side can drop its visual representation
type EvictionHandler func(evicted Marker)

// PinStore is an ordered, bounded collection of pins. Placing a pin beyond capacity
// evicts the oldest one (lowest Index) first.
//
// PinStore is not safe for concurrent use; Session serializes access to it.
type PinStore struct {
	markers   []Marker
	nextIndex int
	onEvict   EvictionHandler
}

// NewPinStore creates an empty pin store
func NewPinStore() *PinStore {
	return &PinStore{
		markers: make([]Marker, 0, PinCapacity+1),
	}
}

// OnEvict registers the eviction callback
func (ps *PinStore) OnEvict(handler EvictionHandler) {
	ps.onEvict = handler
}

// Place appends a pin at position and returns its ID
func (ps *PinStore) Place(position r3.Vector) MarkerID {
	return ps.PlaceTransform(Translation(position))
}

// PlaceRelative places a pin at offset in the camera's local frame, the way a pin is
// dropped a fixed distance in front of the device
func (ps *PinStore) PlaceRelative(camera Transform, offset r3.Vector) MarkerID {
	return ps.PlaceTransform(MultiplyTransforms(camera, Translation(offset)))
}

// PlaceTransform appends a pin with a full world transform and returns its ID
func (ps *PinStore) PlaceTransform(t Transform) MarkerID {
	m := Marker{
		ID:        MarkerID(uuid.NewString()),
		Index:     ps.nextIndex,
		Transform: t,
		State:     StateUnevaluated,
	}
	ps.nextIndex++
	ps.markers = append(ps.markers, m)

	for len(ps.markers) > PinCapacity {
		oldest := ps.oldest()
		evicted := ps.markers[oldest]
		ps.markers = append(ps.markers[:oldest], ps.markers[oldest+1:]...)
		if ps.onEvict != nil {
			ps.onEvict(evicted)
		}
	}
	return m.ID
}

// oldest returns the slice position of the pin with the lowest creation index
func (ps *PinStore) oldest() int {
	idx := 0
	for i, m := range ps.markers {
		if m.Index < ps.markers[idx].Index {
			idx = i
		}
	}
	return idx
}

// Markers returns a snapshot of the pins in insertion order
func (ps *PinStore) Markers() []Marker {
	out := make([]Marker, len(ps.markers))
	for i, m := range ps.markers {
		m.Attachments = append([]IntersectionMarker(nil), m.Attachments...)
		out[i] = m
	}
	return out
}

// Marker returns the pin with the given ID
func (ps *PinStore) Marker(id MarkerID) (Marker, bool) {
	for _, m := range ps.markers {
		if m.ID == id {
			m.Attachments = append([]IntersectionMarker(nil), m.Attachments...)
			return m, true
		}
	}
	return Marker{}, false
}

// Len returns the number of active pins
func (ps *PinStore) Len() int {
	return len(ps.markers)
}

// Full reports whether the store holds exactly PinCapacity pins
func (ps *PinStore) Full() bool {
	return len(ps.markers) == PinCapacity
}

// SetVisualState updates a pin's evaluation tag. Unknown IDs are ignored.
func (ps *PinStore) SetVisualState(id MarkerID, state VisualState) {
	for i := range ps.markers {
		if ps.markers[i].ID == id {
			ps.markers[i].State = state
			return
		}
	}
}

// Attach adds a debug intersection marker to a pin. Unknown IDs are ignored.
func (ps *PinStore) Attach(id MarkerID, im IntersectionMarker) {
	for i := range ps.markers {
		if ps.markers[i].ID == id {
			ps.markers[i].Attachments = append(ps.markers[i].Attachments, im)
			return
		}
	}
}

// ClearAttachments drops all debug markers from every pin
func (ps *PinStore) ClearAttachments() {
	for i := range ps.markers {
		ps.markers[i].Attachments = nil
	}
}

// Reset removes every pin, reporting each through the eviction callback
func (ps *PinStore) Reset() {
	evicted := ps.markers
	ps.markers = make([]Marker, 0, PinCapacity+1)
	if ps.onEvict != nil {
		for _, m := range evicted {
			ps.onEvict(m)
		}
	}
}
