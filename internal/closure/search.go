package closure

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/banshee-data/pose.report/internal/conformal"
	"github.com/banshee-data/pose.report/internal/dataset"
	"github.com/banshee-data/pose.report/internal/parallel"
	"github.com/banshee-data/pose.report/internal/pose"
)

// scoreTieTol is the width within which two endpoint scores count as
// tied during admission ranking.
const scoreTieTol = 1e-12

// FeasibleSet accumulates every pose admitted under the threshold. The
// three slices are parallel; Scores holds each pose's nonconformity at
// admission time.
type FeasibleSet struct {
	Rotations    []pose.Rotation
	Translations []pose.Vec3
	Scores       []float64
}

// Len returns the number of feasible poses.
func (f *FeasibleSet) Len() int { return len(f.Rotations) }

func (f *FeasibleSet) add(r pose.Rotation, t pose.Vec3, score float64) {
	f.Rotations = append(f.Rotations, r)
	f.Translations = append(f.Translations, t)
	f.Scores = append(f.Scores, score)
}

// translationCentroid is the mean feasible translation, used by the
// admission tie-break to prefer endpoints that widen the set.
func (f *FeasibleSet) translationCentroid() pose.Vec3 {
	var c pose.Vec3
	if f.Len() == 0 {
		return c
	}
	for _, t := range f.Translations {
		c = c.Add(t)
	}
	return c.Scale(1 / float64(f.Len()))
}

// Search grows the feasible pose set for one observation: seed with
// convex combinations of the hypotheses, then iterate greedy random-walk
// trajectories whose endpoints are admitted while they stay under the
// threshold.
type Search struct {
	params  Params
	scorer  *conformal.Scorer
	backend parallel.Backend
}

// NewSearch validates the parameters and builds a search. A nil backend
// falls back to the CPU backend with default workers.
func NewSearch(params Params, scorer *conformal.Scorer, backend parallel.Backend) (*Search, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if scorer == nil {
		return nil, fmt.Errorf("%w: search needs a scorer", conformal.ErrInvalidConfiguration)
	}
	if backend == nil {
		backend = parallel.NewCPU(0)
	}
	return &Search{params: params, scorer: scorer, backend: backend}, nil
}

// Run explores the feasible region for one hypothesis set. A pose is
// feasible when its nonconformity score is strictly below threshold.
//
// The set is cumulative: feasible seeds enter first, then each iteration
// walks Walks trajectories from every pose currently in the set and
// admits the best OptimalPerturbations endpoints. An empty seed round
// returns an empty set and no error; the caller reports it as an
// uncertifiable observation.
//
// All randomness comes from rng in a fixed draw order (seeds first, then
// walks in admission order of their bases), so one seed reproduces one
// feasible set bit for bit.
func (s *Search) Run(rng *rand.Rand, hyp dataset.HypothesisSet, threshold float64) (*FeasibleSet, error) {
	if err := hyp.Validate(); err != nil {
		return nil, err
	}

	seedRs, seedTs, err := SampleConvexCombinations(rng, hyp, s.params.InitSamples)
	if err != nil {
		return nil, err
	}
	seedScores, err := s.scorer.ScoreBatch(hyp, seedRs, seedTs)
	if err != nil {
		return nil, err
	}

	feasible := &FeasibleSet{}
	for i, sc := range seedScores {
		if sc < threshold {
			feasible.add(seedRs[i], seedTs[i], sc)
		}
	}
	if feasible.Len() == 0 {
		return feasible, nil
	}

	for iter := 0; iter < s.params.Iterations; iter++ {
		bases := feasible.Len()
		endRs := make([]pose.Rotation, 0, bases*s.params.Walks)
		endTs := make([]pose.Vec3, 0, bases*s.params.Walks)
		for b := 0; b < bases; b++ {
			for w := 0; w < s.params.Walks; w++ {
				er, et, err := s.walk(rng, hyp, feasible.Rotations[b], feasible.Translations[b])
				if err != nil {
					return nil, err
				}
				endRs = append(endRs, er)
				endTs = append(endTs, et)
			}
		}
		endScores, err := s.scorer.ScoreBatch(hyp, endRs, endTs)
		if err != nil {
			return nil, err
		}
		s.admit(feasible, endRs, endTs, endScores, threshold)
	}
	return feasible, nil
}

// walk advances one trajectory. Each time step draws Perturbations
// joint direction candidates at the current step magnitudes, keeps the
// one with the lowest nonconformity, jitters it with Gaussian noise and
// decays the magnitudes.
func (s *Search) walk(rng *rand.Rand, hyp dataset.HypothesisSet, r pose.Rotation, t pose.Vec3) (pose.Rotation, pose.Vec3, error) {
	angVel, linVel := s.params.BaseAngVel, s.params.BaseLinVel
	axes := make([]pose.Vec3, s.params.Perturbations)
	dirs := make([]pose.Vec3, s.params.Perturbations)

	for step := 0; step < s.params.TimeSteps; step++ {
		for i := range axes {
			axes[i] = pose.RandomUnit(rng)
		}
		for i := range dirs {
			dirs[i] = pose.RandomUnit(rng)
		}
		candRs := s.backend.PerturbRotations(r, axes, angVel)
		candTs := s.backend.PerturbTranslations(t, dirs, linVel)
		scores, err := s.scorer.ScoreBatch(hyp, candRs, candTs)
		if err != nil {
			return pose.Rotation{}, pose.Vec3{}, err
		}
		best := 0
		for i, v := range scores {
			if v < scores[best] {
				best = i
			}
		}
		r, t = candRs[best], candTs[best]

		noiseAngle := gaussianMagnitude(rng, s.params.RotationNoiseScale*angVel)
		r = pose.FromAxisAngle(pose.RandomUnit(rng), noiseAngle).Mul(r)
		for c := 0; c < 3; c++ {
			t[c] += rng.NormFloat64() * s.params.TranslationNoiseScale * linVel
		}

		angVel *= s.params.DecayFactor
		linVel *= s.params.DecayFactor
	}
	return r, t, nil
}

// admit ranks the feasible endpoints of one iteration and appends the
// top OptimalPerturbations to the set. Ranking is by score ascending;
// scores within scoreTieTol prefer the endpoint farther from the current
// translation centroid, then the lower trajectory index.
func (s *Search) admit(feasible *FeasibleSet, endRs []pose.Rotation, endTs []pose.Vec3, scores []float64, threshold float64) {
	type candidate struct {
		idx    int
		score  float64
		spread float64
	}
	centroid := feasible.translationCentroid()
	var cands []candidate
	for i, v := range scores {
		if v < threshold {
			cands = append(cands, candidate{idx: i, score: v, spread: endTs[i].Dist(centroid)})
		}
	}
	sort.SliceStable(cands, func(a, b int) bool {
		ca, cb := cands[a], cands[b]
		if math.Abs(ca.score-cb.score) > scoreTieTol {
			return ca.score < cb.score
		}
		if ca.spread != cb.spread {
			return ca.spread > cb.spread
		}
		return ca.idx < cb.idx
	})

	admit := len(cands)
	if admit > s.params.OptimalPerturbations {
		admit = s.params.OptimalPerturbations
	}
	for _, c := range cands[:admit] {
		feasible.add(endRs[c.idx], endTs[c.idx], c.score)
	}
}
