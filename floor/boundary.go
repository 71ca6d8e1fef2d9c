package floor

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/paulmach/orb"
)

// orientationTolerance absorbs float noise in the collinearity test
const orientationTolerance = 1e-12

// planPoint drops a world point onto the horizontal X/Z plan
func planPoint(v r3.Vector) orb.Point {
	return orb.Point{v.X, v.Z}
}

// BoundaryEdges returns the surface boundary in world plan coordinates as an open
// line string: consecutive vertex pairs are edges, the closing edge is not included.
func BoundaryEdges(s Surface) orb.LineString {
	world := s.WorldBoundary()
	ls := make(orb.LineString, len(world))
	for i, v := range world {
		ls[i] = planPoint(v)
	}
	return ls
}

// LeavesBoundary reports whether the straight segment from p1 to p2 crosses an edge
// of the surface boundary. Only consecutive vertex pairs are tested; the edge from
// the last vertex back to the first is not. Boundaries with fewer than two vertices
// are never left.
func LeavesBoundary(s Surface, p1, p2 r3.Vector) bool {
	if len(s.Boundary) < 2 {
		return false
	}
	edges := BoundaryEdges(s)
	a, b := planPoint(p1), planPoint(p2)
	for i := 0; i+1 < len(edges); i++ {
		if SegmentsIntersect(a, b, edges[i], edges[i+1]) {
			return true
		}
	}
	return false
}

// orientation returns the turn direction of p -> q -> r: 1 counter-clockwise,
// -1 clockwise, 0 collinear
func orientation(p, q, r orb.Point) int {
	v := (q[0]-p[0])*(r[1]-p[1]) - (q[1]-p[1])*(r[0]-p[0])
	switch {
	case v > orientationTolerance:
		return 1
	case v < -orientationTolerance:
		return -1
	default:
		return 0
	}
}

// withinBounds reports whether q lies inside the bounding box of segment p-r
func withinBounds(p, q, r orb.Point) bool {
	return q[0] <= math.Max(p[0], r[0]) && q[0] >= math.Min(p[0], r[0]) &&
		q[1] <= math.Max(p[1], r[1]) && q[1] >= math.Min(p[1], r[1])
}

// SegmentsIntersect reports whether segments p1-q1 and p2-q2 share at least one
// point, touching endpoints included
func SegmentsIntersect(p1, q1, p2, q2 orb.Point) bool {
	o1 := orientation(p1, q1, p2)
	o2 := orientation(p1, q1, q2)
	o3 := orientation(p2, q2, p1)
	o4 := orientation(p2, q2, q1)

	if o1 != o2 && o3 != o4 {
		return true
	}

	// Collinear cases
	if o1 == 0 && withinBounds(p1, p2, q1) {
		return true
	}
	if o2 == 0 && withinBounds(p1, q2, q1) {
		return true
	}
	if o3 == 0 && withinBounds(p2, p1, q2) {
		return true
	}
	if o4 == 0 && withinBounds(p2, q1, q2) {
		return true
	}
	return false
}
