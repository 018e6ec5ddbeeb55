package conformal

import (
	"fmt"

	"github.com/banshee-data/pose.report/internal/dataset"
)

// CoverageReport summarizes how a calibrated threshold held up on
// held-out observations. Miscoverage near the target epsilon means the
// conformal guarantee transferred.
type CoverageReport struct {
	Func          string  `json:"func"`
	Threshold     float64 `json:"threshold"`
	TargetEpsilon float64 `json:"target_epsilon"`
	Evaluated     int     `json:"evaluated"`
	Covered       int     `json:"covered"`
	Miscoverage   float64 `json:"miscoverage"`
}

// EvaluateThreshold scores every test ground truth against the threshold
// and reports the empirical miscoverage rate.
func (c *Calibrator) EvaluateThreshold(th Threshold, obs []dataset.Observation) (CoverageReport, error) {
	if len(obs) == 0 {
		return CoverageReport{}, fmt.Errorf("%w: no test observations", dataset.ErrInvalidInput)
	}
	cfg, err := th.ScoringConfig()
	if err != nil {
		return CoverageReport{}, err
	}
	scores, err := c.GroundTruthScores(cfg, obs)
	if err != nil {
		return CoverageReport{}, err
	}
	covered := 0
	for _, v := range scores {
		if v <= th.Value {
			covered++
		}
	}
	return CoverageReport{
		Func:          th.Func,
		Threshold:     th.Value,
		TargetEpsilon: th.Epsilon,
		Evaluated:     len(obs),
		Covered:       covered,
		Miscoverage:   1 - float64(covered)/float64(len(obs)),
	}, nil
}
