package floor

import (
	"math"
	"sort"
	"sync"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Down is the gravity-aligned direction used for pin projection
var Down = r3.Vector{X: 0, Y: -1, Z: 0}

// parallelTolerance is the smallest |local ray Y| treated as crossing a plane
const parallelTolerance = 1e-9

// RayCaster is the perception capability the evaluator depends on. Both queries only
// report existing plane geometry and may return an empty slice.
type RayCaster interface {
	// CastDown casts straight down from origin against horizontal surfaces.
	CastDown(origin r3.Vector) []ProjectionResult
	// CastToward casts from origin along direction against vertical surfaces.
	CastToward(origin, direction r3.Vector) []ProjectionResult
}

// Scene is an in-process surface registry. It is updated by the perception side
// (MQTT, HTTP or a scene file) and answers ray casts for the evaluator.
type Scene struct {
	mu       sync.RWMutex
	surfaces map[SurfaceID]*Surface
	order    []SurfaceID // insertion order, for deterministic output
}

// NewScene creates an empty scene
func NewScene() *Scene {
	return &Scene{
		surfaces: make(map[SurfaceID]*Surface),
	}
}

// Upsert adds or replaces a surface. Surfaces without an ID are assigned one.
// The boundary slice is copied.
func (s *Scene) Upsert(surface Surface) SurfaceID {
	if surface.ID == "" {
		surface.ID = SurfaceID(uuid.NewString())
	}
	surface.Boundary = append([]r3.Vector(nil), surface.Boundary...)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.surfaces[surface.ID]; !exists {
		s.order = append(s.order, surface.ID)
	}
	s.surfaces[surface.ID] = &surface
	return surface.ID
}

// Remove deletes a surface; unknown IDs are ignored
func (s *Scene) Remove(id SurfaceID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.surfaces[id]; !ok {
		return false
	}
	delete(s.surfaces, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Surface returns a copy of the surface with the given ID
func (s *Scene) Surface(id SurfaceID) (Surface, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	surface, ok := s.surfaces[id]
	if !ok {
		return Surface{}, false
	}
	return *surface, true
}

// Surfaces returns a snapshot of all surfaces in insertion order
func (s *Scene) Surfaces() []Surface {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Surface, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.surfaces[id])
	}
	return out
}

// Len returns the number of registered surfaces
func (s *Scene) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.surfaces)
}

// Clear removes all surfaces
func (s *Scene) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.surfaces = make(map[SurfaceID]*Surface)
	s.order = nil
}

// CastDown implements RayCaster
func (s *Scene) CastDown(origin r3.Vector) []ProjectionResult {
	return s.Raycast(RaycastQuery{Origin: origin, Direction: Down, Alignment: AlignmentHorizontal})
}

// CastToward implements RayCaster
func (s *Scene) CastToward(origin, direction r3.Vector) []ProjectionResult {
	return s.Raycast(RaycastQuery{Origin: origin, Direction: direction, Alignment: AlignmentVertical})
}

// Raycast intersects the query ray with every surface of the requested alignment and
// returns the hits nearest first. A hit counts only when it falls inside the surface's
// observed boundary, never on the plane's extrapolation.
func (s *Scene) Raycast(q RaycastQuery) []ProjectionResult {
	if q.Direction.Norm2() == 0 {
		return nil
	}

	s.mu.RLock()
	candidates := make([]Surface, 0, len(s.order))
	for _, id := range s.order {
		if surface := s.surfaces[id]; surface.Alignment == q.Alignment {
			candidates = append(candidates, *surface)
		}
	}
	s.mu.RUnlock()

	var results []ProjectionResult
	for _, surface := range candidates {
		if r, ok := intersectSurface(surface, q); ok {
			results = append(results, r)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	return results
}

// intersectSurface intersects the query ray with the surface's plane (local y = 0)
func intersectSurface(surface Surface, q RaycastQuery) (ProjectionResult, bool) {
	inv := InvertTransform(surface.Transform)
	localOrigin := TransformPoint(q.Origin, inv)
	localDir := TransformDirection(q.Direction, inv)

	if math.Abs(localDir.Y) < parallelTolerance {
		return ProjectionResult{}, false
	}
	t := -localOrigin.Y / localDir.Y
	if t < 0 {
		return ProjectionResult{}, false
	}

	localHit := localOrigin.Add(localDir.Mul(t))
	localHit.Y = 0
	if !containsLocal(surface, localHit) {
		return ProjectionResult{}, false
	}

	world := MultiplyTransforms(surface.Transform, Translation(localHit))
	return ProjectionResult{
		Surface:        surface,
		WorldTransform: world,
		Distance:       world.Position().Distance(q.Origin),
		Query:          q,
	}, true
}

// containsLocal reports whether a local-plane point lies within the surface. The
// boundary polygon is used when it has an area; otherwise the center/extent rectangle.
func containsLocal(surface Surface, p r3.Vector) bool {
	if len(surface.Boundary) >= 3 {
		return planar.RingContains(localRing(surface.Boundary), orb.Point{p.X, p.Z})
	}
	if surface.Extent.Width <= 0 || surface.Extent.Depth <= 0 {
		return false
	}
	return math.Abs(p.X-surface.Center.X) <= surface.Extent.Width/2 &&
		math.Abs(p.Z-surface.Center.Z) <= surface.Extent.Depth/2
}

// localRing projects a local boundary onto the plane's X/Z axes as a closed orb ring
func localRing(boundary []r3.Vector) orb.Ring {
	ring := make(orb.Ring, 0, len(boundary)+1)
	for _, v := range boundary {
		ring = append(ring, orb.Point{v.X, v.Z})
	}
	if !ring.Closed() {
		ring = append(ring, ring[0])
	}
	return ring
}
