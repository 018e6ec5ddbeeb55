package pose

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Rotation is a 3x3 rotation matrix stored row-major:
// m00,m01,m02, m10,m11,m12, m20,m21,m22.
// Values are expected to be orthonormal with determinant +1; use
// IsOrthonormal to validate external input and Orthonormalize to repair
// drift after repeated composition.
type Rotation [9]float64

// Identity returns the identity rotation.
func Identity() Rotation {
	return Rotation{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// Mul returns the composition r * b (apply b first, then r).
func (r Rotation) Mul(b Rotation) Rotation {
	var out Rotation
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[3*i+j] = r[3*i]*b[j] + r[3*i+1]*b[3+j] + r[3*i+2]*b[6+j]
		}
	}
	return out
}

// Transpose returns the transpose of r. For a proper rotation this is the
// inverse.
func (r Rotation) Transpose() Rotation {
	return Rotation{
		r[0], r[3], r[6],
		r[1], r[4], r[7],
		r[2], r[5], r[8],
	}
}

// Trace returns the sum of the diagonal elements.
func (r Rotation) Trace() float64 {
	return r[0] + r[4] + r[8]
}

// Det returns the determinant of r.
func (r Rotation) Det() float64 {
	return r[0]*(r[4]*r[8]-r[5]*r[7]) -
		r[1]*(r[3]*r[8]-r[5]*r[6]) +
		r[2]*(r[3]*r[7]-r[4]*r[6])
}

// Apply rotates v by r.
func (r Rotation) Apply(v Vec3) Vec3 {
	return Vec3{
		r[0]*v[0] + r[1]*v[1] + r[2]*v[2],
		r[3]*v[0] + r[4]*v[1] + r[5]*v[2],
		r[6]*v[0] + r[7]*v[1] + r[8]*v[2],
	}
}

// Geodesic returns the angular distance between r and b in radians,
// in [0, pi]. trace(r^T b) equals the Frobenius inner product of the two
// matrices, so no intermediate product is formed.
func (r Rotation) Geodesic(b Rotation) float64 {
	dot := 0.0
	for i := 0; i < 9; i++ {
		dot += r[i] * b[i]
	}
	c := (dot - 1) / 2
	if c > 1 {
		c = 1
	} else if c < -1 {
		c = -1
	}
	return math.Acos(c)
}

// IsOrthonormal reports whether r^T r is the identity to within tol per
// entry and the determinant is positive (proper rotation, not a
// reflection).
func (r Rotation) IsOrthonormal(tol float64) bool {
	g := r.Transpose().Mul(r)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			if math.Abs(g[3*i+j]-want) > tol {
				return false
			}
		}
	}
	return r.Det() > 0
}

// HasNaN reports whether any entry of r is NaN or infinite.
func (r Rotation) HasNaN() bool {
	for _, c := range r {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return true
		}
	}
	return false
}

// FromAxisAngle builds the rotation of angle radians about axis via the
// Rodrigues formula. The axis need not be unit length; a zero axis or zero
// angle yields the identity.
func FromAxisAngle(axis Vec3, angle float64) Rotation {
	n := axis.Norm()
	if n == 0 || angle == 0 {
		return Identity()
	}
	x, y, z := axis[0]/n, axis[1]/n, axis[2]/n
	c := math.Cos(angle)
	s := math.Sin(angle)
	t := 1 - c
	return Rotation{
		c + x*x*t, x*y*t - z*s, x*z*t + y*s,
		y*x*t + z*s, c + y*y*t, y*z*t - x*s,
		z*x*t - y*s, z*y*t + x*s, c + z*z*t,
	}
}

// AxisAngle decomposes r into a unit axis and an angle in [0, pi].
// The identity returns (+X, 0). Near angle pi the skew part vanishes, so
// the axis is recovered from the diagonal of (r + I)/2 instead.
func (r Rotation) AxisAngle() (Vec3, float64) {
	c := (r.Trace() - 1) / 2
	if c > 1 {
		c = 1
	} else if c < -1 {
		c = -1
	}
	angle := math.Acos(c)

	const eps = 1e-10
	if angle < eps {
		return Vec3{1, 0, 0}, 0
	}
	if math.Pi-angle > eps {
		s := 2 * math.Sin(angle)
		axis := Vec3{
			(r[7] - r[5]) / s,
			(r[2] - r[6]) / s,
			(r[3] - r[1]) / s,
		}
		return axis.Normalize(), angle
	}

	// angle ~ pi: axis_i^2 = (r_ii + 1)/2. Take the largest diagonal for
	// numerical stability and recover the other components from the
	// symmetric off-diagonals.
	xx := (r[0] + 1) / 2
	yy := (r[4] + 1) / 2
	zz := (r[8] + 1) / 2
	var axis Vec3
	switch {
	case xx >= yy && xx >= zz:
		x := math.Sqrt(math.Max(xx, 0))
		axis = Vec3{x, (r[1] + r[3]) / (4 * x), (r[2] + r[6]) / (4 * x)}
	case yy >= zz:
		y := math.Sqrt(math.Max(yy, 0))
		axis = Vec3{(r[1] + r[3]) / (4 * y), y, (r[5] + r[7]) / (4 * y)}
	default:
		z := math.Sqrt(math.Max(zz, 0))
		axis = Vec3{(r[2] + r[6]) / (4 * z), (r[5] + r[7]) / (4 * z), z}
	}
	return axis.Normalize(), angle
}

// Quaternion returns r as a unit quaternion [w, x, y, z] using Shepperd's
// method: the largest of the four candidate pivots is chosen so the square
// root never operates near zero.
func (r Rotation) Quaternion() [4]float64 {
	tr := r.Trace()
	var q [4]float64
	switch {
	case tr > 0:
		s := math.Sqrt(tr+1) * 2
		q[0] = s / 4
		q[1] = (r[7] - r[5]) / s
		q[2] = (r[2] - r[6]) / s
		q[3] = (r[3] - r[1]) / s
	case r[0] > r[4] && r[0] > r[8]:
		s := math.Sqrt(1+r[0]-r[4]-r[8]) * 2
		q[0] = (r[7] - r[5]) / s
		q[1] = s / 4
		q[2] = (r[1] + r[3]) / s
		q[3] = (r[2] + r[6]) / s
	case r[4] > r[8]:
		s := math.Sqrt(1+r[4]-r[0]-r[8]) * 2
		q[0] = (r[2] - r[6]) / s
		q[1] = (r[1] + r[3]) / s
		q[2] = s / 4
		q[3] = (r[5] + r[7]) / s
	default:
		s := math.Sqrt(1+r[8]-r[0]-r[4]) * 2
		q[0] = (r[3] - r[1]) / s
		q[1] = (r[2] + r[6]) / s
		q[2] = (r[5] + r[7]) / s
		q[3] = s / 4
	}
	return q
}

// FromQuaternion builds a rotation from a quaternion [w, x, y, z]. The
// quaternion is normalized first; the zero quaternion yields the identity.
func FromQuaternion(q [4]float64) Rotation {
	n := math.Sqrt(q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3])
	if n == 0 {
		return Identity()
	}
	w, x, y, z := q[0]/n, q[1]/n, q[2]/n, q[3]/n
	return Rotation{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	}
}

// Orthonormalize projects r onto the nearest proper rotation in the
// Frobenius sense: U diag(1,1,det(UV^T)) V^T from the SVD of r. Use after
// long chains of composition or on noisy external matrices.
func (r Rotation) Orthonormalize() Rotation {
	m := mat.NewDense(3, 3, r[:])
	var svd mat.SVD
	if !svd.Factorize(m, mat.SVDFull) {
		return r
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var uvt mat.Dense
	uvt.Mul(&u, v.T())
	sign := 1.0
	if mat.Det(&uvt) < 0 {
		sign = -1
	}
	corr := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, sign})

	var tmp, out mat.Dense
	tmp.Mul(&u, corr)
	out.Mul(&tmp, v.T())

	var res Rotation
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			res[3*i+j] = out.At(i, j)
		}
	}
	return res
}

// WeightedMean averages rotations under non-negative weights using the
// quaternion outer-product accumulator: the mean is the eigenvector with
// the largest eigenvalue of M = sum_i w_i q_i q_i^T. The accumulator is
// invariant to quaternion sign, so no hemisphere alignment is needed.
// Returns an error for an empty input, mismatched lengths, a negative
// weight, or a non-positive total weight.
func WeightedMean(rs []Rotation, ws []float64) (Rotation, error) {
	if len(rs) == 0 {
		return Rotation{}, errors.New("pose: weighted mean of empty rotation set")
	}
	if len(ws) != len(rs) {
		return Rotation{}, fmt.Errorf("pose: %d rotations but %d weights", len(rs), len(ws))
	}

	var m [16]float64
	total := 0.0
	for i, r := range rs {
		w := ws[i]
		if w < 0 {
			return Rotation{}, fmt.Errorf("pose: negative weight %g at index %d", w, i)
		}
		if w == 0 {
			continue
		}
		q := r.Quaternion()
		for a := 0; a < 4; a++ {
			for b := 0; b < 4; b++ {
				m[4*a+b] += w * q[a] * q[b]
			}
		}
		total += w
	}
	if total <= 0 {
		return Rotation{}, errors.New("pose: non-positive total weight")
	}

	sym := mat.NewSymDense(4, m[:])
	var eig mat.EigenSym
	if !eig.Factorize(sym, true) {
		return Rotation{}, errors.New("pose: quaternion accumulator eigendecomposition failed")
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	best := 0
	for i := 1; i < len(vals); i++ {
		if vals[i] > vals[best] {
			best = i
		}
	}
	q := [4]float64{vecs.At(0, best), vecs.At(1, best), vecs.At(2, best), vecs.At(3, best)}
	return FromQuaternion(q), nil
}
