package floor

import (
	"math"

	"github.com/golang/geo/r3"
)

// NewHorizontalSurface builds a rectangular floor-like surface centered at center
// (world) with the given width (world X) and depth (world Z).
func NewHorizontalSurface(id SurfaceID, center r3.Vector, width, depth float64) Surface {
	hw, hd := width/2, depth/2
	return Surface{
		ID:        id,
		Alignment: AlignmentHorizontal,
		Transform: Translation(center),
		Extent:    Extent{Width: width, Depth: depth},
		Boundary: []r3.Vector{
			{X: -hw, Z: -hd},
			{X: hw, Z: -hd},
			{X: hw, Z: hd},
			{X: -hw, Z: hd},
		},
		Classification: "floor",
	}
}

// NewPolygonSurface builds a horizontal surface at the given elevation whose boundary
// is the world X/Z polygon outline (ordered, not repeated at the end).
func NewPolygonSurface(id SurfaceID, elevation float64, outline [][2]float64) Surface {
	boundary := make([]r3.Vector, len(outline))
	minX, minZ := math.MaxFloat64, math.MaxFloat64
	maxX, maxZ := -math.MaxFloat64, -math.MaxFloat64
	for i, p := range outline {
		boundary[i] = r3.Vector{X: p[0], Z: p[1]}
		minX, maxX = math.Min(minX, p[0]), math.Max(maxX, p[0])
		minZ, maxZ = math.Min(minZ, p[1]), math.Max(maxZ, p[1])
	}

	s := Surface{
		ID:             id,
		Alignment:      AlignmentHorizontal,
		Transform:      Translation(r3.Vector{Y: elevation}),
		Boundary:       boundary,
		Classification: "floor",
	}
	if len(outline) > 0 {
		s.Center = r3.Vector{X: (minX + maxX) / 2, Z: (minZ + maxZ) / 2}
		s.Extent = Extent{Width: maxX - minX, Depth: maxZ - minZ}
	}
	return s
}

// NewVerticalSurface builds a wall standing on the base line from a to b (world) and
// rising height meters above it. The base points are assumed level.
func NewVerticalSurface(id SurfaceID, a, b r3.Vector, height float64) Surface {
	base := r3.Vector{X: b.X - a.X, Z: b.Z - a.Z}
	length := base.Norm()
	if length == 0 {
		length = 1
		base = r3.Vector{X: 1}
	}
	u := base.Mul(1 / length)
	n := r3.Vector{X: -u.Z, Z: u.X}
	w := u.Cross(n) // world direction of local +Z, pointing down

	mid := a.Add(b).Mul(0.5)
	t := Transform{
		{u.X, n.X, w.X, mid.X},
		{u.Y, n.Y, w.Y, mid.Y},
		{u.Z, n.Z, w.Z, mid.Z},
		{0, 0, 0, 1},
	}

	hl := length / 2
	return Surface{
		ID:        id,
		Alignment: AlignmentVertical,
		Transform: t,
		Center:    r3.Vector{Z: -height / 2},
		Extent:    Extent{Width: length, Depth: height},
		Boundary: []r3.Vector{
			{X: -hl},
			{X: hl},
			{X: hl, Z: -height},
			{X: -hl, Z: -height},
		},
		Classification: "wall",
	}
}
