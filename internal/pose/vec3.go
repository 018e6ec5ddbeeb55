package pose

import (
	"math"
	"math/rand"
)

// Vec3 is a translation (or direction) in meters, stored as [x, y, z].
type Vec3 [3]float64

// Add returns v + b.
func (v Vec3) Add(b Vec3) Vec3 {
	return Vec3{v[0] + b[0], v[1] + b[1], v[2] + b[2]}
}

// Sub returns v - b.
func (v Vec3) Sub(b Vec3) Vec3 {
	return Vec3{v[0] - b[0], v[1] - b[1], v[2] - b[2]}
}

// Scale returns v scaled by s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v[0] * s, v[1] * s, v[2] * s}
}

// Dot returns the inner product of v and b.
func (v Vec3) Dot(b Vec3) float64 {
	return v[0]*b[0] + v[1]*b[1] + v[2]*b[2]
}

// Cross returns the cross product v x b.
func (v Vec3) Cross(b Vec3) Vec3 {
	return Vec3{
		v[1]*b[2] - v[2]*b[1],
		v[2]*b[0] - v[0]*b[2],
		v[0]*b[1] - v[1]*b[0],
	}
}

// Norm returns the Euclidean length of v.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.Dot(v))
}

// Dist returns the Euclidean distance between v and b.
func (v Vec3) Dist(b Vec3) float64 {
	return v.Sub(b).Norm()
}

// Normalize returns v scaled to unit length. The zero vector is returned
// unchanged.
func (v Vec3) Normalize() Vec3 {
	n := v.Norm()
	if n == 0 {
		return v
	}
	return v.Scale(1 / n)
}

// HasNaN reports whether any component of v is NaN or infinite.
func (v Vec3) HasNaN() bool {
	for _, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return true
		}
	}
	return false
}

// RandomUnit draws a direction uniformly distributed on the unit sphere.
// Gaussian components followed by normalization give the uniform law; the
// (vanishingly unlikely) all-zero draw falls back to +X so callers always
// receive a unit vector.
func RandomUnit(rng *rand.Rand) Vec3 {
	v := Vec3{rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()}
	if v.Norm() == 0 {
		return Vec3{1, 0, 0}
	}
	return v.Normalize()
}
