package report

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pose.report/internal/storage/sqlite"
)

func fp(v float64) *float64 { return &v }
func bp(v bool) *bool       { return &v }

func fixtureRun() *sqlite.Run {
	return &sqlite.Run{
		RunID:             "run-fixture",
		Dataset:           "linemod",
		NonconformityFunc: "normalized_max_Rt",
		Epsilon:           0.1,
		Threshold:         0.8,
	}
}

// certifiedRegion builds a certified region whose radius tracks its error,
// so radius/error correlations come out strongly positive.
func certifiedRegion(sample, object int, rotRadius, rotErr, transRadius, transErr float64, rotCovered, transCovered bool) *sqlite.Region {
	return &sqlite.Region{
		RegionID:          fmt.Sprintf("region-%d", sample),
		SampleID:          sample,
		ObjectID:          object,
		Certified:         true,
		FeasibleCount:     3 + sample,
		RotRadius:         fp(rotRadius),
		RotError:          fp(rotErr),
		TransRadius:       fp(transRadius),
		TransError:        fp(transErr),
		RotCovered:        bp(rotCovered),
		TransCovered:      bp(transCovered),
		FeasiblePosesJSON: json.RawMessage(`[{"r":[1,0,0,0,1,0,0,0,1],"t":[0,0,0.5],"score":0.4},{"r":[1,0,0,0,1,0,0,0,1],"t":[0,0,0.5],"score":0.6}]`),
	}
}

func fixtureRegions() []*sqlite.Region {
	return []*sqlite.Region{
		certifiedRegion(0, 1, 0.10, 0.04, 0.020, 0.008, true, true),
		certifiedRegion(1, 1, 0.20, 0.12, 0.030, 0.015, true, true),
		certifiedRegion(2, 2, 0.30, 0.25, 0.040, 0.035, true, false),
		certifiedRegion(3, 2, 0.40, 0.38, 0.050, 0.048, false, true),
		{RegionID: "region-4", SampleID: 4, ObjectID: 2, Certified: false},
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	summary, err := Summarize(fixtureRun(), fixtureRegions())
	require.NoError(t, err)

	assert.Equal(t, "run-fixture", summary.RunID)
	assert.Equal(t, "normalized_max_Rt", summary.NonconformityFunc)
	assert.Equal(t, 5, summary.Samples)
	assert.Equal(t, 4, summary.Certified)
	assert.InDelta(t, 0.8, summary.CertifiedRate, 1e-12)

	rot := summary.RotRadius
	assert.Equal(t, 4, rot.Count)
	assert.InDelta(t, 0.25, rot.Mean, 1e-12)
	assert.InDelta(t, 0.25, rot.Median, 1e-12)
	assert.InDelta(t, 0.10, rot.Min, 1e-12)
	assert.InDelta(t, 0.40, rot.Max, 1e-12)
	assert.InDelta(t, 0.35, rot.P90, 1e-12)
	assert.InDelta(t, 0.1118, rot.StdDev, 1e-4)

	assert.Equal(t, 4, summary.TransRadius.Count)
	assert.InDelta(t, 0.035, summary.TransRadius.Mean, 1e-12)
	assert.Equal(t, 4, summary.RotError.Count)
	assert.Equal(t, 4, summary.TransError.Count)

	// Three of four certified regions covered on each side.
	assert.InDelta(t, 0.75, summary.RotCoverage, 1e-12)
	assert.InDelta(t, 0.75, summary.TransCoverage, 1e-12)

	// Radii were constructed to increase with errors.
	assert.Greater(t, summary.RotRadiusErrorCorr, 0.9)
	assert.Greater(t, summary.TransRadiusErrorCorr, 0.9)

	// Every certified region stores scores {0.4, 0.6}.
	assert.InDelta(t, 0.5, summary.FeasibleScoreMean, 1e-12)
	assert.Greater(t, summary.FeasibleScoreStdDev, 0.0)
}

func TestSummarizeNoRegions(t *testing.T) {
	t.Parallel()

	summary, err := Summarize(fixtureRun(), nil)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Samples)
	assert.Equal(t, 0, summary.Certified)
	assert.Zero(t, summary.CertifiedRate)
	assert.Zero(t, summary.RotRadius.Count)
	assert.Zero(t, summary.RotCoverage)
	assert.Zero(t, summary.RotRadiusErrorCorr)
	assert.Zero(t, summary.FeasibleScoreMean)
}

func TestSummarizeUncertifiedOnly(t *testing.T) {
	t.Parallel()

	regions := []*sqlite.Region{
		{RegionID: "a", SampleID: 0, Certified: false},
		{RegionID: "b", SampleID: 1, Certified: false},
	}
	summary, err := Summarize(fixtureRun(), regions)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Samples)
	assert.Equal(t, 0, summary.Certified)
	assert.Zero(t, summary.CertifiedRate)
	assert.Zero(t, summary.RotRadius.Count)
}

func TestSummarizeBadFeasibleJSON(t *testing.T) {
	t.Parallel()

	region := certifiedRegion(0, 1, 0.1, 0.05, 0.02, 0.01, true, true)
	region.FeasiblePosesJSON = json.RawMessage(`{not json`)

	_, err := Summarize(fixtureRun(), []*sqlite.Region{region})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode feasible poses")
}

func TestPairCorrelation(t *testing.T) {
	t.Parallel()

	assert.Zero(t, pairCorrelation(nil, nil))
	assert.Zero(t, pairCorrelation([]float64{1}, []float64{2}))
	// Constant column has no defined correlation.
	assert.Zero(t, pairCorrelation([]float64{1, 1, 1}, []float64{1, 2, 3}))
	assert.InDelta(t, 1.0, pairCorrelation([]float64{1, 2, 3}, []float64{2, 4, 6}), 1e-12)
	assert.InDelta(t, -1.0, pairCorrelation([]float64{1, 2, 3}, []float64{6, 4, 2}), 1e-12)
}
