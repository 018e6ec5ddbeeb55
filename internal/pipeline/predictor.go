package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/pose.report/internal/closure"
	"github.com/banshee-data/pose.report/internal/config"
	"github.com/banshee-data/pose.report/internal/conformal"
	"github.com/banshee-data/pose.report/internal/dataset"
	"github.com/banshee-data/pose.report/internal/miniball"
	"github.com/banshee-data/pose.report/internal/parallel"
	"github.com/banshee-data/pose.report/internal/storage/sqlite"
)

// SampleResult is the outcome of region search for one test observation.
// Ball geometry and the error fields are meaningful only when Certified
// is true; an empty feasible set leaves them zero.
type SampleResult struct {
	SampleID     int
	ObjectID     int
	ImageID      int
	Certified    bool
	Feasible     *closure.FeasibleSet
	RotBall      miniball.RotationBall
	TransBall    miniball.Ball
	RotError     float64
	TransError   float64
	RotCovered   bool
	TransCovered bool
	ElapsedMs    float64
}

// Result is the complete outcome of a prediction run.
type Result struct {
	RunID          string
	Params         RunParams
	Threshold      conformal.Threshold
	Coverage       conformal.CoverageReport
	Samples        []SampleResult
	CertifiedCount int
	Elapsed        time.Duration
}

// Predictor runs the full pipeline for one tuning configuration. A nil
// manager runs without persistence, which the calibrate and sweep CLI
// modes use.
type Predictor struct {
	cfg     *config.TuningConfig
	backend parallel.Backend
	manager *RunManager
}

// NewPredictor builds a predictor. A nil backend gets a CPU backend
// sized from the config's worker count.
func NewPredictor(cfg *config.TuningConfig, backend parallel.Backend, manager *RunManager) *Predictor {
	if backend == nil {
		backend = parallel.NewCPU(cfg.GetWorkers())
	}
	return &Predictor{cfg: cfg, backend: backend, manager: manager}
}

// Run executes the full pipeline: load, split, calibrate, search every
// test observation, enclose the feasible sets, persist. The run row is
// marked failed if any stage errors out.
func (p *Predictor) Run(ctx context.Context) (*Result, error) {
	params := RunParamsFromTuning(p.cfg)

	if p.manager != nil {
		if _, err := p.manager.StartRun(params); err != nil {
			return nil, fmt.Errorf("start run: %w", err)
		}
	}

	result, err := p.run(ctx, params)
	if err != nil && p.manager != nil {
		if failErr := p.manager.FailRun(err.Error()); failErr != nil {
			logf("Could not mark run failed: %v", failErr)
		}
	}
	return result, err
}

func (p *Predictor) run(ctx context.Context, params RunParams) (*Result, error) {
	started := time.Now()

	obs, err := dataset.Load(params.Source())
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}

	calibration, test, err := dataset.Split(params.Seed, obs, params.CalibrationSetSize)
	if err != nil {
		return nil, err
	}

	f, err := conformal.ParseFunc(params.NonconformityFunc)
	if err != nil {
		return nil, err
	}

	calibrator := conformal.NewCalibrator(p.backend)
	th, err := calibrator.Calibrate(f, params.Epsilon, calibration)
	if err != nil {
		return nil, fmt.Errorf("calibrate: %w", err)
	}

	coverage, err := calibrator.EvaluateThreshold(th, test)
	if err != nil {
		return nil, fmt.Errorf("evaluate threshold: %w", err)
	}

	if p.manager != nil {
		if err := p.manager.RecordCalibration(th.Value, th.RRatio, th.TRatio, len(calibration), len(test)); err != nil {
			return nil, fmt.Errorf("record calibration: %w", err)
		}
	}

	scoring, err := th.ScoringConfig()
	if err != nil {
		return nil, err
	}
	scorer, err := conformal.NewScorer(scoring, p.backend)
	if err != nil {
		return nil, err
	}
	search, err := closure.NewSearch(params.SearchParams(), scorer, p.backend)
	if err != nil {
		return nil, err
	}

	// Each observation owns a private rng seeded from the run seed and
	// its dataset index, so results are identical at any worker count.
	samples := make([]SampleResult, len(test))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(outerWorkers(params.Workers))
	for i := range test {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			s, err := searchSample(search, test[i], th.Value, params.Seed)
			if err != nil {
				return fmt.Errorf("sample %d: %w", test[i].SampleID, err)
			}
			samples[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	certified := 0
	for i := range samples {
		if samples[i].Certified {
			certified++
		}
	}

	result := &Result{
		Params:         params,
		Threshold:      th,
		Coverage:       coverage,
		Samples:        samples,
		CertifiedCount: certified,
		Elapsed:        time.Since(started),
	}

	if p.manager != nil {
		result.RunID = p.manager.CurrentRunID()
		for i := range samples {
			region, err := regionRow(&samples[i])
			if err != nil {
				return nil, err
			}
			p.manager.RecordRegion(region)
		}
		if err := p.manager.CompleteRun(coverage.Miscoverage); err != nil {
			return nil, fmt.Errorf("complete run: %w", err)
		}
	}
	return result, nil
}

// Calibrate loads the dataset, calibrates a threshold at the configured
// epsilon and evaluates it on the test split, without running region
// search or touching the database.
func (p *Predictor) Calibrate() (conformal.Threshold, conformal.CoverageReport, error) {
	params := RunParamsFromTuning(p.cfg)

	obs, err := dataset.Load(params.Source())
	if err != nil {
		return conformal.Threshold{}, conformal.CoverageReport{}, fmt.Errorf("load dataset: %w", err)
	}
	calibration, test, err := dataset.Split(params.Seed, obs, params.CalibrationSetSize)
	if err != nil {
		return conformal.Threshold{}, conformal.CoverageReport{}, err
	}
	f, err := conformal.ParseFunc(params.NonconformityFunc)
	if err != nil {
		return conformal.Threshold{}, conformal.CoverageReport{}, err
	}

	calibrator := conformal.NewCalibrator(p.backend)
	th, err := calibrator.Calibrate(f, params.Epsilon, calibration)
	if err != nil {
		return conformal.Threshold{}, conformal.CoverageReport{}, fmt.Errorf("calibrate: %w", err)
	}
	coverage, err := calibrator.EvaluateThreshold(th, test)
	if err != nil {
		return th, conformal.CoverageReport{}, fmt.Errorf("evaluate threshold: %w", err)
	}
	return th, coverage, nil
}

// SweepEpsilons calibrates and evaluates the configured scoring function
// across a grid of epsilon values on one fixed split. Points are
// persisted when a manager is attached.
func (p *Predictor) SweepEpsilons(ctx context.Context, epsilons []float64) ([]conformal.CoverageReport, error) {
	if len(epsilons) == 0 {
		return nil, fmt.Errorf("%w: empty epsilon grid", conformal.ErrInvalidConfiguration)
	}
	params := RunParamsFromTuning(p.cfg)

	obs, err := dataset.Load(params.Source())
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	calibration, test, err := dataset.Split(params.Seed, obs, params.CalibrationSetSize)
	if err != nil {
		return nil, err
	}
	f, err := conformal.ParseFunc(params.NonconformityFunc)
	if err != nil {
		return nil, err
	}

	calibrator := conformal.NewCalibrator(p.backend)
	reports := make([]conformal.CoverageReport, 0, len(epsilons))
	for _, eps := range epsilons {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		th, err := calibrator.Calibrate(f, eps, calibration)
		if err != nil {
			return nil, fmt.Errorf("epsilon %g: %w", eps, err)
		}
		report, err := calibrator.EvaluateThreshold(th, test)
		if err != nil {
			return nil, fmt.Errorf("epsilon %g: %w", eps, err)
		}
		reports = append(reports, report)

		if p.manager != nil {
			p.manager.RecordSweep(&sqlite.Sweep{
				NonconformityFunc: report.Func,
				Epsilon:           report.TargetEpsilon,
				Threshold:         report.Threshold,
				Evaluated:         report.Evaluated,
				Covered:           report.Covered,
				Miscoverage:       report.Miscoverage,
			})
		}
	}
	return reports, nil
}

func searchSample(search *closure.Search, o dataset.Observation, threshold float64, runSeed int64) (SampleResult, error) {
	started := time.Now()
	rng := rand.New(rand.NewSource(runSeed + int64(o.SampleID)))

	feasible, err := search.Run(rng, o.Hypotheses, threshold)
	if err != nil {
		return SampleResult{}, err
	}

	s := SampleResult{
		SampleID: o.SampleID,
		ObjectID: o.ObjectID,
		ImageID:  o.ImageID,
		Feasible: feasible,
	}
	if feasible.Len() > 0 {
		rotBall, err := miniball.EnclosingRotation(feasible.Rotations)
		if err != nil {
			return SampleResult{}, err
		}
		transBall, err := miniball.Enclosing(feasible.Translations)
		if err != nil {
			return SampleResult{}, err
		}

		s.Certified = true
		s.RotBall = rotBall
		s.TransBall = transBall
		s.RotError = rotBall.Center.Geodesic(o.GTRotation)
		s.TransError = transBall.Center.Dist(o.GTTranslation)
		s.RotCovered = rotBall.Contains(o.GTRotation)
		s.TransCovered = transBall.Contains(o.GTTranslation)
	}
	s.ElapsedMs = time.Since(started).Seconds() * 1000
	return s, nil
}

// feasiblePose is the JSON shape of one stored feasible pose.
type feasiblePose struct {
	R     []float64 `json:"r"`
	T     []float64 `json:"t"`
	Score float64   `json:"score"`
}

// regionRow converts a sample result to its storage row.
func regionRow(s *SampleResult) (*sqlite.Region, error) {
	region := &sqlite.Region{
		SampleID:  s.SampleID,
		ObjectID:  s.ObjectID,
		ImageID:   s.ImageID,
		Certified: s.Certified,
		ElapsedMs: s.ElapsedMs,
	}

	if s.Feasible != nil && s.Feasible.Len() > 0 {
		region.FeasibleCount = s.Feasible.Len()
		poses := make([]feasiblePose, s.Feasible.Len())
		for j := range poses {
			r := s.Feasible.Rotations[j]
			t := s.Feasible.Translations[j]
			poses[j] = feasiblePose{R: r[:], T: t[:], Score: s.Feasible.Scores[j]}
		}
		b, err := json.Marshal(poses)
		if err != nil {
			return nil, fmt.Errorf("encode feasible set: %w", err)
		}
		region.FeasiblePosesJSON = b
	}

	if s.Certified {
		rotCenter := s.RotBall.Center
		transCenter := s.TransBall.Center
		region.RotCenter = rotCenter[:]
		region.TransCenter = transCenter[:]
		region.RotRadius = ptrFloat(s.RotBall.Radius)
		region.TransRadius = ptrFloat(s.TransBall.Radius)
		region.RotError = ptrFloat(s.RotError)
		region.TransError = ptrFloat(s.TransError)
		region.RotCovered = ptrBool(s.RotCovered)
		region.TransCovered = ptrBool(s.TransCovered)
	}
	return region, nil
}

func ptrFloat(v float64) *float64 { return &v }
func ptrBool(v bool) *bool        { return &v }

func outerWorkers(n int) int {
	if n <= 0 {
		return runtime.NumCPU()
	}
	return n
}
