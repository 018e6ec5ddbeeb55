package miniball

import (
	"errors"
	"math/rand"

	"github.com/banshee-data/pose.report/internal/pose"
)

// ErrEmptyFeasibleSet reports a region request over zero points. The
// search upstream either found nothing feasible or was asked for a ball
// before running.
var ErrEmptyFeasibleSet = errors.New("empty feasible set")

// containsSlack absorbs rounding when testing membership during the
// Welzl recursion and when validating results.
const containsSlack = 1e-9

// Ball is a closed ball in R3.
type Ball struct {
	Center pose.Vec3 `json:"center"`
	Radius float64   `json:"radius"`
}

// Contains reports whether p lies in the ball, with slack for rounding.
func (b Ball) Contains(p pose.Vec3) bool {
	if b.Radius < 0 {
		return false
	}
	return b.Center.Dist(p) <= b.Radius+containsSlack
}

// Enclosing returns the minimal enclosing ball of the points using
// Welzl's algorithm. The input order does not matter: points are copied
// and shuffled with a fixed seed, so equal point sets give equal balls.
func Enclosing(points []pose.Vec3) (Ball, error) {
	if len(points) == 0 {
		return Ball{}, ErrEmptyFeasibleSet
	}
	pts := make([]pose.Vec3, len(points))
	copy(pts, points)
	rand.New(rand.NewSource(1)).Shuffle(len(pts), func(i, j int) {
		pts[i], pts[j] = pts[j], pts[i]
	})
	return welzl(pts, len(pts), make([]pose.Vec3, 0, 4)), nil
}

// welzl computes the minimal ball of pts[:n] that keeps every support
// point on its boundary. The recursion follows Welzl's original scheme:
// solve without the last point, and only if it falls outside promote it
// to the support set. Expected linear time after the shuffle.
func welzl(pts []pose.Vec3, n int, support []pose.Vec3) Ball {
	if n == 0 || len(support) == 4 {
		return ballFromSupport(support)
	}
	b := welzl(pts, n-1, support)
	if b.Contains(pts[n-1]) {
		return b
	}
	return welzl(pts, n-1, append(support, pts[n-1]))
}

// ballFromSupport returns the smallest ball with the support points on
// its boundary. Up to four points determine a ball in R3; degenerate
// supports (collinear triples, coplanar quadruples) fall back to the
// smallest ball over their subsets that still contains them all.
func ballFromSupport(support []pose.Vec3) Ball {
	switch len(support) {
	case 0:
		return Ball{Radius: -1}
	case 1:
		return Ball{Center: support[0]}
	case 2:
		return ballFromTwo(support[0], support[1])
	case 3:
		if b, ok := circumcircle(support[0], support[1], support[2]); ok {
			return b
		}
	case 4:
		if b, ok := circumsphere(support[0], support[1], support[2], support[3]); ok {
			return b
		}
	}
	return degenerateSupportBall(support)
}

func ballFromTwo(a, b pose.Vec3) Ball {
	center := a.Add(b).Scale(0.5)
	return Ball{Center: center, Radius: center.Dist(a)}
}

// circumcircle returns the ball whose boundary passes through three
// points, centered in their plane. ok is false for collinear points.
func circumcircle(a, b, c pose.Vec3) (Ball, bool) {
	u := b.Sub(a)
	v := c.Sub(a)
	w := u.Cross(v)
	denom := 2 * w.Dot(w)
	if denom < 1e-18 {
		return Ball{}, false
	}
	offset := v.Cross(w).Scale(u.Dot(u)).Add(w.Cross(u).Scale(v.Dot(v))).Scale(1 / denom)
	center := a.Add(offset)
	return Ball{Center: center, Radius: center.Dist(a)}, true
}

// circumsphere returns the ball whose boundary passes through four
// points. ok is false when they are close to coplanar.
func circumsphere(a, b, c, d pose.Vec3) (Ball, bool) {
	// Subtracting a reduces the problem to the 3x3 system
	// 2(p_i - a) . x = |p_i|^2 - |a|^2, solved by Cramer's rule.
	rows := [3]pose.Vec3{b.Sub(a).Scale(2), c.Sub(a).Scale(2), d.Sub(a).Scale(2)}
	rhs := pose.Vec3{
		b.Dot(b) - a.Dot(a),
		c.Dot(c) - a.Dot(a),
		d.Dot(d) - a.Dot(a),
	}
	det := det3(rows[0], rows[1], rows[2])
	if det < 1e-12 && det > -1e-12 {
		return Ball{}, false
	}
	center := pose.Vec3{
		det3(rhs, colVec(rows, 1), colVec(rows, 2)) / det,
		det3(colVec(rows, 0), rhs, colVec(rows, 2)) / det,
		det3(colVec(rows, 0), colVec(rows, 1), rhs) / det,
	}
	return Ball{Center: center, Radius: center.Dist(a)}, true
}

// det3 treats its arguments as the columns of a 3x3 matrix.
func det3(c0, c1, c2 pose.Vec3) float64 {
	return c0.Dot(c1.Cross(c2))
}

// colVec extracts column j from three row vectors.
func colVec(rows [3]pose.Vec3, j int) pose.Vec3 {
	return pose.Vec3{rows[0][j], rows[1][j], rows[2][j]}
}

// degenerateSupportBall handles supports whose circumball is numerically
// undefined: the smallest ball over every subset of at most three points
// that still contains the whole support.
func degenerateSupportBall(support []pose.Vec3) Ball {
	best := Ball{Radius: -1}
	consider := func(b Ball) {
		for _, p := range support {
			if !b.Contains(p) {
				return
			}
		}
		if best.Radius < 0 || b.Radius < best.Radius {
			best = b
		}
	}
	for i := 0; i < len(support); i++ {
		for j := i + 1; j < len(support); j++ {
			consider(ballFromTwo(support[i], support[j]))
			for k := j + 1; k < len(support); k++ {
				if b, ok := circumcircle(support[i], support[j], support[k]); ok {
					consider(b)
				}
			}
		}
	}
	if best.Radius < 0 {
		// All support points coincide.
		return Ball{Center: support[0]}
	}
	return best
}
