package floor

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Transform is a 4x4 homogeneous transform, row-major, translation in the last column.
// Applying Transform t to a point p computes t * [p 1].
type Transform [4][4]float64

// Identity returns an identity transform (no transformation)
func Identity() Transform {
	return Transform{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	}
}

// Translation creates a translation-only transform
func Translation(v r3.Vector) Transform {
	t := Identity()
	t[0][3] = v.X
	t[1][3] = v.Y
	t[2][3] = v.Z
	return t
}

// RotationX creates a rotation about the world X axis (angle in radians).
// RotationX(pi/2) turns a surface's local +Y normal into +Z, which is how vertical
// surfaces are built from the horizontal local frame.
func RotationX(angle float64) Transform {
	cos, sin := math.Cos(angle), math.Sin(angle)
	return Transform{
		{1, 0, 0, 0},
		{0, cos, -sin, 0},
		{0, sin, cos, 0},
		{0, 0, 0, 1},
	}
}

// RotationY creates a rotation about the gravity axis (angle in radians)
func RotationY(angle float64) Transform {
	cos, sin := math.Cos(angle), math.Sin(angle)
	return Transform{
		{cos, 0, sin, 0},
		{0, 1, 0, 0},
		{-sin, 0, cos, 0},
		{0, 0, 0, 1},
	}
}

// Position returns the translation component
func (t Transform) Position() r3.Vector {
	return r3.Vector{X: t[0][3], Y: t[1][3], Z: t[2][3]}
}

// Normal returns the transformed local +Y axis, the normal of a surface's plane
func (t Transform) Normal() r3.Vector {
	return r3.Vector{X: t[0][1], Y: t[1][1], Z: t[2][1]}
}

// IsAffine reports whether t has a [0 0 0 1] bottom row and an invertible linear part.
// The zero Transform is not affine.
func (t Transform) IsAffine() bool {
	if t[3] != [4]float64{0, 0, 0, 1} {
		return false
	}
	linear := mat.NewDense(3, 3, []float64{
		t[0][0], t[0][1], t[0][2],
		t[1][0], t[1][1], t[1][2],
		t[2][0], t[2][1], t[2][2],
	})
	return math.Abs(mat.Det(linear)) > 1e-12
}

// TransformPoint applies a transform to a point
func TransformPoint(p r3.Vector, t Transform) r3.Vector {
	return r3.Vector{
		X: t[0][0]*p.X + t[0][1]*p.Y + t[0][2]*p.Z + t[0][3],
		Y: t[1][0]*p.X + t[1][1]*p.Y + t[1][2]*p.Z + t[1][3],
		Z: t[2][0]*p.X + t[2][1]*p.Y + t[2][2]*p.Z + t[2][3],
	}
}

// TransformDirection applies only the linear part of a transform (no translation)
func TransformDirection(d r3.Vector, t Transform) r3.Vector {
	return r3.Vector{
		X: t[0][0]*d.X + t[0][1]*d.Y + t[0][2]*d.Z,
		Y: t[1][0]*d.X + t[1][1]*d.Y + t[1][2]*d.Z,
		Z: t[2][0]*d.X + t[2][1]*d.Y + t[2][2]*d.Z,
	}
}

// MultiplyTransforms composes two transforms: result = m1 * m2
// Applying result is equivalent to applying m2 first, then m1
func MultiplyTransforms(m1, m2 Transform) Transform {
	var out Transform
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += m1[i][k] * m2[k][j]
			}
			out[i][j] = sum
		}
	}
	return out
}

// InvertTransform computes the inverse of a transform
// Returns identity if the matrix is singular
func InvertTransform(t Transform) Transform {
	data := make([]float64, 0, 16)
	for i := 0; i < 4; i++ {
		data = append(data, t[i][:]...)
	}

	var inv mat.Dense
	if err := inv.Inverse(mat.NewDense(4, 4, data)); err != nil {
		// A finite mat.Condition is only a precision warning; the inverse is still set.
		cond, ok := err.(mat.Condition)
		if !ok || math.IsInf(float64(cond), 1) {
			return Identity()
		}
	}

	var out Transform
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			out[i][j] = inv.At(i, j)
		}
	}
	return out
}

// RelativeTransform expresses world transform child in the local frame of parent:
// inverse(parent) * child
func RelativeTransform(parent, child Transform) Transform {
	return MultiplyTransforms(InvertTransform(parent), child)
}
