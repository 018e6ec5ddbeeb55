package closure

import (
	"math"
	"math/rand"

	"github.com/banshee-data/pose.report/internal/dataset"
	"github.com/banshee-data/pose.report/internal/pose"
)

// SampleConvexCombinations draws n candidate poses from the convex hull
// of the hypotheses. Each candidate uses a fresh Dirichlet(1,...,1) draw
// reweighted by the confidence weights: translations combine linearly,
// rotations through the weighted quaternion mean. Every returned
// rotation is orthonormal.
func SampleConvexCombinations(rng *rand.Rand, hyp dataset.HypothesisSet, n int) ([]pose.Rotation, []pose.Vec3, error) {
	m := hyp.Len()
	if m == 0 {
		return nil, nil, dataset.ErrEmptyHypothesisSet
	}

	conf := hyp.Weights()
	rs := make([]pose.Rotation, 0, n)
	ts := make([]pose.Vec3, 0, n)
	lambda := make([]float64, m)
	for i := 0; i < n; i++ {
		// Unit-rate exponentials normalized over the simplex are a
		// Dirichlet(1,...,1) draw.
		total := 0.0
		for j := 0; j < m; j++ {
			lambda[j] = rng.ExpFloat64() * conf[j]
			total += lambda[j]
		}
		if total <= 0 {
			copy(lambda, conf)
			total = 1
		}

		var t pose.Vec3
		for j := 0; j < m; j++ {
			lambda[j] /= total
			t = t.Add(hyp.Translations[j].Scale(lambda[j]))
		}
		r, err := pose.WeightedMean(hyp.Rotations, lambda)
		if err != nil {
			return nil, nil, err
		}
		rs = append(rs, r.Orthonormalize())
		ts = append(ts, t)
	}
	return rs, ts, nil
}

// gaussianMagnitude draws |N(0, sigma)| for noise step sizes.
func gaussianMagnitude(rng *rand.Rand, sigma float64) float64 {
	return math.Abs(rng.NormFloat64() * sigma)
}
