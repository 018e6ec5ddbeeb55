package report

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/pose.report/internal/storage/sqlite"
)

// MetricSummary describes the distribution of one per-sample metric
// (radius or error) across the certified regions of a run.
type MetricSummary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	P90    float64 `json:"p90"`
}

// RunSummary aggregates the stored regions of one run into the numbers the
// report pages and the JSON API expose.
type RunSummary struct {
	RunID             string  `json:"run_id"`
	Dataset           string  `json:"dataset"`
	NonconformityFunc string  `json:"nonconformity_func"`
	Epsilon           float64 `json:"epsilon"`
	Threshold         float64 `json:"threshold"`

	Samples       int     `json:"samples"`
	Certified     int     `json:"certified"`
	CertifiedRate float64 `json:"certified_rate"`

	RotRadius   MetricSummary `json:"rot_radius"`
	TransRadius MetricSummary `json:"trans_radius"`
	RotError    MetricSummary `json:"rot_error"`
	TransError  MetricSummary `json:"trans_error"`

	// Fraction of certified regions whose ball contains the ground truth.
	RotCoverage   float64 `json:"rot_coverage"`
	TransCoverage float64 `json:"trans_coverage"`

	// Pearson correlation between region radius and ground-truth error
	// across certified samples. Zero when fewer than two pairs exist.
	RotRadiusErrorCorr   float64 `json:"rot_radius_error_corr"`
	TransRadiusErrorCorr float64 `json:"trans_radius_error_corr"`

	// Distribution of nonconformity scores over all stored feasible poses.
	FeasibleScoreMean   float64 `json:"feasible_score_mean"`
	FeasibleScoreStdDev float64 `json:"feasible_score_std_dev"`
}

// storedPose mirrors the per-pose JSON persisted in the regions table.
type storedPose struct {
	R     []float64 `json:"r"`
	T     []float64 `json:"t"`
	Score float64   `json:"score"`
}

// Summarize builds a RunSummary from a run row and its region rows.
// Uncertified regions count toward Samples but contribute no geometry.
func Summarize(run *sqlite.Run, regions []*sqlite.Region) (*RunSummary, error) {
	summary := &RunSummary{
		RunID:             run.RunID,
		Dataset:           run.Dataset,
		NonconformityFunc: run.NonconformityFunc,
		Epsilon:           run.Epsilon,
		Threshold:         run.Threshold,
		Samples:           len(regions),
	}

	var rotRadii, transRadii, rotErrors, transErrors []float64
	var rotPairsR, rotPairsE, transPairsR, transPairsE []float64
	var scores []float64
	rotCovered, rotEvaluated := 0, 0
	transCovered, transEvaluated := 0, 0

	for _, region := range regions {
		if !region.Certified {
			continue
		}
		summary.Certified++

		if region.RotRadius != nil {
			rotRadii = append(rotRadii, *region.RotRadius)
		}
		if region.TransRadius != nil {
			transRadii = append(transRadii, *region.TransRadius)
		}
		if region.RotError != nil {
			rotErrors = append(rotErrors, *region.RotError)
		}
		if region.TransError != nil {
			transErrors = append(transErrors, *region.TransError)
		}
		if region.RotRadius != nil && region.RotError != nil {
			rotPairsR = append(rotPairsR, *region.RotRadius)
			rotPairsE = append(rotPairsE, *region.RotError)
		}
		if region.TransRadius != nil && region.TransError != nil {
			transPairsR = append(transPairsR, *region.TransRadius)
			transPairsE = append(transPairsE, *region.TransError)
		}
		if region.RotCovered != nil {
			rotEvaluated++
			if *region.RotCovered {
				rotCovered++
			}
		}
		if region.TransCovered != nil {
			transEvaluated++
			if *region.TransCovered {
				transCovered++
			}
		}
		if len(region.FeasiblePosesJSON) > 0 {
			var poses []storedPose
			if err := json.Unmarshal(region.FeasiblePosesJSON, &poses); err != nil {
				return nil, fmt.Errorf("decode feasible poses for region %s: %w", region.RegionID, err)
			}
			for _, p := range poses {
				scores = append(scores, p.Score)
			}
		}
	}

	if summary.Samples > 0 {
		summary.CertifiedRate = float64(summary.Certified) / float64(summary.Samples)
	}
	if rotEvaluated > 0 {
		summary.RotCoverage = float64(rotCovered) / float64(rotEvaluated)
	}
	if transEvaluated > 0 {
		summary.TransCoverage = float64(transCovered) / float64(transEvaluated)
	}

	var err error
	if summary.RotRadius, err = metricSummary(rotRadii); err != nil {
		return nil, fmt.Errorf("summarize rotation radii: %w", err)
	}
	if summary.TransRadius, err = metricSummary(transRadii); err != nil {
		return nil, fmt.Errorf("summarize translation radii: %w", err)
	}
	if summary.RotError, err = metricSummary(rotErrors); err != nil {
		return nil, fmt.Errorf("summarize rotation errors: %w", err)
	}
	if summary.TransError, err = metricSummary(transErrors); err != nil {
		return nil, fmt.Errorf("summarize translation errors: %w", err)
	}

	summary.RotRadiusErrorCorr = pairCorrelation(rotPairsR, rotPairsE)
	summary.TransRadiusErrorCorr = pairCorrelation(transPairsR, transPairsE)

	if len(scores) > 0 {
		summary.FeasibleScoreMean = stat.Mean(scores, nil)
		if len(scores) > 1 {
			summary.FeasibleScoreStdDev = stat.StdDev(scores, nil)
		}
	}

	return summary, nil
}

// metricSummary computes the summary statistics for one metric. An empty
// slice yields a zero summary rather than an error so runs with no
// certified samples still report cleanly.
func metricSummary(values []float64) (MetricSummary, error) {
	if len(values) == 0 {
		return MetricSummary{}, nil
	}

	mean, err := stats.Mean(values)
	if err != nil {
		return MetricSummary{}, fmt.Errorf("mean: %w", err)
	}
	median, err := stats.Median(values)
	if err != nil {
		return MetricSummary{}, fmt.Errorf("median: %w", err)
	}
	min, err := stats.Min(values)
	if err != nil {
		return MetricSummary{}, fmt.Errorf("min: %w", err)
	}
	max, err := stats.Max(values)
	if err != nil {
		return MetricSummary{}, fmt.Errorf("max: %w", err)
	}
	p90, err := stats.Percentile(values, 90)
	if err != nil {
		return MetricSummary{}, fmt.Errorf("p90: %w", err)
	}

	summary := MetricSummary{
		Count:  len(values),
		Mean:   mean,
		Median: median,
		Min:    min,
		Max:    max,
		P90:    p90,
	}
	if len(values) > 1 {
		sd, err := stats.StandardDeviation(values)
		if err != nil {
			return MetricSummary{}, fmt.Errorf("std dev: %w", err)
		}
		summary.StdDev = sd
	}
	return summary, nil
}

// pairCorrelation returns the Pearson correlation of two equal-length
// columns, or 0 when the correlation is undefined (fewer than two pairs,
// or a constant column).
func pairCorrelation(xs, ys []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	r := stat.Correlation(xs, ys, nil)
	if math.IsNaN(r) {
		return 0
	}
	return r
}
