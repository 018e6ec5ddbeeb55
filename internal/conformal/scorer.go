package conformal

import (
	"fmt"

	"github.com/banshee-data/pose.report/internal/dataset"
	"github.com/banshee-data/pose.report/internal/parallel"
	"github.com/banshee-data/pose.report/internal/pose"
)

// dispersionFloor guards the normalized variants: a hypothesis set that
// collapses onto a single pose has no usable spread, so its distances
// stay unscaled.
const dispersionFloor = 1e-12

// Scorer computes nonconformity scores of candidate poses against a
// hypothesis set. Scores are non-negative; lower means the candidate sits
// closer to the estimator's confidence-weighted belief.
type Scorer struct {
	cfg     Config
	backend parallel.Backend
}

// NewScorer validates the configuration and builds a scorer. A nil
// backend falls back to the CPU backend with default workers.
func NewScorer(cfg Config, backend parallel.Backend) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if backend == nil {
		backend = parallel.NewCPU(0)
	}
	return &Scorer{cfg: cfg, backend: backend}, nil
}

// Config returns the resolved scoring configuration.
func (s *Scorer) Config() Config { return s.cfg }

// Score returns the nonconformity of a single pose.
func (s *Scorer) Score(hyp dataset.HypothesisSet, r pose.Rotation, t pose.Vec3) (float64, error) {
	scores, err := s.ScoreBatch(hyp, []pose.Rotation{r}, []pose.Vec3{t})
	if err != nil {
		return 0, err
	}
	return scores[0], nil
}

// ScoreBatch scores candidate poses against one hypothesis set. rs and
// ts are parallel: candidate i is (rs[i], ts[i]). Distance grids run on
// the backend, everything after is a cheap reduction.
func (s *Scorer) ScoreBatch(hyp dataset.HypothesisSet, rs []pose.Rotation, ts []pose.Vec3) ([]float64, error) {
	if len(rs) != len(ts) {
		return nil, fmt.Errorf("%w: %d candidate rotations vs %d translations",
			dataset.ErrInvalidInput, len(rs), len(ts))
	}
	m := hyp.Len()
	if m == 0 {
		return nil, dataset.ErrEmptyHypothesisSet
	}
	n := len(rs)
	if n == 0 {
		return []float64{}, nil
	}

	w := hyp.Weights()
	f := s.cfg.Func

	var dR, dt []float64
	if f.Component == ComponentRotation || f.Component == ComponentJoint {
		dR = make([]float64, n*m)
		s.backend.GeodesicGrid(dR, rs, hyp.Rotations)
		if f.Normalized {
			sigma, err := rotationDispersion(hyp, w)
			if err != nil {
				return nil, err
			}
			scaleInPlace(dR, sigma)
		}
	}
	if f.Component == ComponentTranslation || f.Component == ComponentJoint {
		dt = make([]float64, n*m)
		s.backend.EuclideanGrid(dt, ts, hyp.Translations)
		if f.Normalized {
			scaleInPlace(dt, translationDispersion(hyp, w))
		}
	}

	out := make([]float64, n)
	for i := 0; i < n; i++ {
		row := i * m
		var acc float64
		for j := 0; j < m; j++ {
			var v float64
			switch f.Component {
			case ComponentRotation:
				v = dR[row+j]
			case ComponentTranslation:
				v = dt[row+j]
			case ComponentJoint:
				v = s.cfg.RRatio*dR[row+j] + s.cfg.TRatio*dt[row+j]
			}
			v *= w[j]
			if f.Aggregate == AggregateMax {
				if v > acc {
					acc = v
				}
			} else {
				acc += v
			}
		}
		out[i] = acc
	}
	return out, nil
}

// scaleInPlace divides every distance by sigma unless the spread is
// effectively zero.
func scaleInPlace(d []float64, sigma float64) {
	if sigma < dispersionFloor {
		return
	}
	inv := 1 / sigma
	for i := range d {
		d[i] *= inv
	}
}

// rotationDispersion is the confidence-weighted mean geodesic distance
// of the hypothesis rotations from their weighted mean.
func rotationDispersion(hyp dataset.HypothesisSet, w []float64) (float64, error) {
	mean, err := pose.WeightedMean(hyp.Rotations, w)
	if err != nil {
		return 0, err
	}
	var sigma float64
	for j, r := range hyp.Rotations {
		sigma += w[j] * mean.Geodesic(r)
	}
	return sigma, nil
}

// translationDispersion is the confidence-weighted mean distance of the
// hypothesis translations from their weighted barycenter.
func translationDispersion(hyp dataset.HypothesisSet, w []float64) float64 {
	var bary pose.Vec3
	for j, t := range hyp.Translations {
		bary = bary.Add(t.Scale(w[j]))
	}
	var sigma float64
	for j, t := range hyp.Translations {
		sigma += w[j] * t.Dist(bary)
	}
	return sigma
}
