package conformal

import (
	"errors"
	"fmt"

	"github.com/banshee-data/pose.report/internal/dataset"
	"github.com/banshee-data/pose.report/internal/parallel"
)

// ErrDegenerateCalibration reports a zero provisional threshold during
// joint calibration. A zero quantile means the component ratio 1/q is
// undefined, which happens when most calibration scores collapse to zero.
var ErrDegenerateCalibration = errors.New("degenerate calibration")

// Threshold is a calibrated nonconformity bound together with everything
// needed to reproduce its scoring function. It marshals to JSON for
// storage and for the CLI.
type Threshold struct {
	Value   float64 `json:"value"`
	Func    string  `json:"func"`
	Epsilon float64 `json:"epsilon"`
	SetSize int     `json:"set_size"`
	RRatio  float64 `json:"r_ratio,omitempty"`
	TRatio  float64 `json:"t_ratio,omitempty"`
}

// ScoringConfig rebuilds the configuration the threshold was calibrated
// with, so prediction scores candidates exactly the way calibration
// scored ground truths.
func (th Threshold) ScoringConfig() (Config, error) {
	f, err := ParseFunc(th.Func)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{Func: f, RRatio: th.RRatio, TRatio: th.TRatio}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Calibrator derives thresholds from calibration observations and checks
// them against held-out data.
type Calibrator struct {
	backend parallel.Backend
}

// NewCalibrator builds a calibrator. A nil backend falls back to the CPU
// backend with default workers.
func NewCalibrator(backend parallel.Backend) *Calibrator {
	if backend == nil {
		backend = parallel.NewCPU(0)
	}
	return &Calibrator{backend: backend}
}

// Calibrate scores every calibration ground truth and returns the
// threshold that holds miscoverage at epsilon.
//
// Joint functions calibrate in two passes. First each component is
// calibrated on its own; the provisional thresholds qR and qt fix the
// ratios 1/qR and 1/qt that put radians and meters on a common scale.
// The combined scores are then calibrated like any single component.
func (c *Calibrator) Calibrate(f Func, epsilon float64, obs []dataset.Observation) (Threshold, error) {
	if err := f.Validate(); err != nil {
		return Threshold{}, err
	}

	cfg := Config{Func: f}
	if f.Component == ComponentJoint {
		qR, err := c.provisional(f.componentFunc(ComponentRotation), epsilon, obs)
		if err != nil {
			return Threshold{}, fmt.Errorf("rotation pre-pass: %w", err)
		}
		qT, err := c.provisional(f.componentFunc(ComponentTranslation), epsilon, obs)
		if err != nil {
			return Threshold{}, fmt.Errorf("translation pre-pass: %w", err)
		}
		if qR <= 0 || qT <= 0 {
			return Threshold{}, fmt.Errorf("%w: provisional thresholds qR=%v qt=%v", ErrDegenerateCalibration, qR, qT)
		}
		cfg.RRatio, cfg.TRatio = 1/qR, 1/qT
	}

	scores, err := c.GroundTruthScores(cfg, obs)
	if err != nil {
		return Threshold{}, err
	}
	q, err := Quantile(scores, epsilon)
	if err != nil {
		return Threshold{}, err
	}
	return Threshold{
		Value:   q,
		Func:    f.String(),
		Epsilon: epsilon,
		SetSize: len(obs),
		RRatio:  cfg.RRatio,
		TRatio:  cfg.TRatio,
	}, nil
}

// GroundTruthScores returns the nonconformity of every observation's
// ground truth under cfg, in observation order. Calibrate and
// EvaluateThreshold build on it; reporting charts the raw distribution.
func (c *Calibrator) GroundTruthScores(cfg Config, obs []dataset.Observation) ([]float64, error) {
	scorer, err := NewScorer(cfg, c.backend)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(obs))
	for i, o := range obs {
		v, err := scorer.Score(o.Hypotheses, o.GTRotation, o.GTTranslation)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", o.SampleID, err)
		}
		out[i] = v
	}
	return out, nil
}

func (c *Calibrator) provisional(f Func, epsilon float64, obs []dataset.Observation) (float64, error) {
	scores, err := c.GroundTruthScores(Config{Func: f}, obs)
	if err != nil {
		return 0, err
	}
	return Quantile(scores, epsilon)
}
