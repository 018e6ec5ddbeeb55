package miniball

import (
	"math"

	"github.com/banshee-data/pose.report/internal/pose"
)

const (
	// Badoiu-Clarkson converges as 1/k, so the cap bounds the relative
	// radius error at roughly 0.1%.
	maxCenterIterations = 1000
	centerTol           = 1e-9
)

// RotationBall is a closed geodesic ball on SO(3): every member rotation
// lies within Radius radians of Center.
type RotationBall struct {
	Center pose.Rotation `json:"center"`
	Radius float64       `json:"radius"`
}

// Contains reports whether r lies in the ball, with slack for rounding.
func (b RotationBall) Contains(r pose.Rotation) bool {
	return b.Center.Geodesic(r) <= b.Radius+containsSlack
}

// EnclosingRotation approximates the minimal enclosing geodesic ball of
// the rotations with the Badoiu-Clarkson 1-center iteration: from rs[0],
// repeatedly step a fraction 1/(k+1) along the geodesic toward the
// current farthest rotation. The returned radius is the exact maximum
// distance from the final center, so containment always holds.
func EnclosingRotation(rs []pose.Rotation) (RotationBall, error) {
	if len(rs) == 0 {
		return RotationBall{}, ErrEmptyFeasibleSet
	}

	center := rs[0]
	prevRadius := -1.0
	for k := 1; k <= maxCenterIterations; k++ {
		farthest, radius := farthestRotation(center, rs)
		if radius < centerTol {
			break
		}
		if prevRadius >= 0 && math.Abs(radius-prevRadius) < centerTol {
			break
		}
		prevRadius = radius
		center = geodesicStep(center, rs[farthest], 1/float64(k+1))
	}

	_, radius := farthestRotation(center, rs)
	return RotationBall{Center: center, Radius: radius}, nil
}

func farthestRotation(center pose.Rotation, rs []pose.Rotation) (int, float64) {
	idx, max := 0, 0.0
	for i, r := range rs {
		if d := center.Geodesic(r); d > max {
			idx, max = i, d
		}
	}
	return idx, max
}

// geodesicStep moves from a toward b by the given fraction of their
// geodesic distance. Fraction 1 lands exactly on b.
func geodesicStep(a, b pose.Rotation, fraction float64) pose.Rotation {
	rel := a.Transpose().Mul(b)
	axis, angle := rel.AxisAngle()
	return a.Mul(pose.FromAxisAngle(axis, angle*fraction))
}
