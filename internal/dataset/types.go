package dataset

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/pose.report/internal/pose"
)

var (
	// ErrInvalidInput reports malformed pose data: NaN or Inf components,
	// non-orthonormal rotations, negative confidence scores, or hypothesis
	// slices of mismatched length.
	ErrInvalidInput = errors.New("invalid pose input")

	// ErrEmptyHypothesisSet reports an observation with no hypotheses left
	// after truncation.
	ErrEmptyHypothesisSet = errors.New("empty hypothesis set")
)

// Estimator exports are float32 on disk, so loaded rotations are only
// orthonormal to single precision.
const orthonormalTol = 1e-3

// HypothesisSet holds the ranked pose hypotheses an estimator produced for
// one observation. The three slices are parallel: index j is the j-th
// hypothesis. Rank order from the estimator is preserved.
type HypothesisSet struct {
	Rotations    []pose.Rotation
	Translations []pose.Vec3
	Scores       []float64
}

// Len returns the number of hypotheses.
func (h HypothesisSet) Len() int { return len(h.Rotations) }

// Truncate returns a copy keeping only the first k hypotheses. If k is
// non-positive or exceeds Len, the set is copied unchanged.
func (h HypothesisSet) Truncate(k int) HypothesisSet {
	n := h.Len()
	if k <= 0 || k > n {
		k = n
	}
	out := HypothesisSet{
		Rotations:    make([]pose.Rotation, k),
		Translations: make([]pose.Vec3, k),
		Scores:       make([]float64, k),
	}
	copy(out.Rotations, h.Rotations[:k])
	copy(out.Translations, h.Translations[:k])
	copy(out.Scores, h.Scores[:k])
	return out
}

// Weights converts the confidence scores into normalized weights summing
// to one. A zero or non-positive score total falls back to uniform
// weights so downstream averaging stays well defined.
func (h HypothesisSet) Weights() []float64 {
	n := h.Len()
	if n == 0 {
		return nil
	}
	w := make([]float64, n)
	sum := 0.0
	for _, s := range h.Scores {
		sum += s
	}
	if sum <= 0 {
		for j := range w {
			w[j] = 1.0 / float64(n)
		}
		return w
	}
	for j, s := range h.Scores {
		w[j] = s / sum
	}
	return w
}

// Validate checks the set for structural and numeric defects.
func (h HypothesisSet) Validate() error {
	n := h.Len()
	if n == 0 {
		return ErrEmptyHypothesisSet
	}
	if len(h.Translations) != n || len(h.Scores) != n {
		return fmt.Errorf("%w: hypothesis slices misaligned (R=%d t=%d s=%d)",
			ErrInvalidInput, n, len(h.Translations), len(h.Scores))
	}
	for j := 0; j < n; j++ {
		if h.Rotations[j].HasNaN() {
			return fmt.Errorf("%w: hypothesis %d rotation has non-finite entries", ErrInvalidInput, j)
		}
		if !h.Rotations[j].IsOrthonormal(orthonormalTol) {
			return fmt.Errorf("%w: hypothesis %d rotation is not orthonormal", ErrInvalidInput, j)
		}
		if h.Translations[j].HasNaN() {
			return fmt.Errorf("%w: hypothesis %d translation has non-finite entries", ErrInvalidInput, j)
		}
		if s := h.Scores[j]; math.IsNaN(s) || math.IsInf(s, 0) || s < 0 {
			return fmt.Errorf("%w: hypothesis %d score %v out of range", ErrInvalidInput, j, s)
		}
	}
	return nil
}

// Observation pairs one ground-truth pose with the estimator hypotheses
// produced for the same frame.
type Observation struct {
	// SampleID is the index of the observation in the concatenated
	// dataset, unique across all objects of a run.
	SampleID int

	// ObjectID and ImageID identify the source object and its frame.
	ObjectID int
	ImageID  int

	GTRotation    pose.Rotation
	GTTranslation pose.Vec3

	Hypotheses HypothesisSet
}

// Validate checks the ground truth and every hypothesis.
func (o Observation) Validate() error {
	if o.GTRotation.HasNaN() {
		return fmt.Errorf("%w: sample %d ground-truth rotation has non-finite entries", ErrInvalidInput, o.SampleID)
	}
	if !o.GTRotation.IsOrthonormal(orthonormalTol) {
		return fmt.Errorf("%w: sample %d ground-truth rotation is not orthonormal", ErrInvalidInput, o.SampleID)
	}
	if o.GTTranslation.HasNaN() {
		return fmt.Errorf("%w: sample %d ground-truth translation has non-finite entries", ErrInvalidInput, o.SampleID)
	}
	if err := o.Hypotheses.Validate(); err != nil {
		return fmt.Errorf("sample %d: %w", o.SampleID, err)
	}
	return nil
}
