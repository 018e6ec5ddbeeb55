package pipeline

import (
	"encoding/json"

	"github.com/banshee-data/pose.report/internal/closure"
	"github.com/banshee-data/pose.report/internal/config"
	"github.com/banshee-data/pose.report/internal/dataset"
)

// RunParams captures every knob that affects a prediction run, so a
// stored run can be reproduced from its row alone. Field names match the
// tuning config JSON keys.
type RunParams struct {
	DataDir              string  `json:"data_dir"`
	Dataset              string  `json:"dataset_name"`
	ObjectIDs            []int   `json:"object_ids"`
	TopHypotheses        int     `json:"top_hypotheses_num"`
	CalibrationSetSize   int     `json:"calibration_set_size"`
	NonconformityFunc    string  `json:"nonconformity_func"`
	Epsilon              float64 `json:"epsilon"`
	InitSamples          int     `json:"init_sample_num"`
	Iterations           int     `json:"n_iterations"`
	Walks                int     `json:"n_walks"`
	TimeSteps            int     `json:"n_time_steps"`
	Perturbations        int     `json:"n_perturbations"`
	OptimalPerturbations int     `json:"n_optimal_perturbations"`
	BaseAngVel           float64 `json:"base_ang_vel"`
	BaseLinVel           float64 `json:"base_lin_vel"`
	DecayFactor          float64 `json:"decay_factor"`
	RotationNoiseScale   float64 `json:"R_perturbation_scale"`
	TranslationNoise     float64 `json:"t_perturbation_scale"`
	Seed                 int64   `json:"seed"`
	Workers              int     `json:"workers"`
}

// RunParamsFromTuning snapshots a loaded TuningConfig, resolving every
// unset field to its default.
func RunParamsFromTuning(cfg *config.TuningConfig) RunParams {
	return RunParams{
		DataDir:              cfg.GetDataDir(),
		Dataset:              cfg.GetDatasetName(),
		ObjectIDs:            cfg.GetObjectIDs(),
		TopHypotheses:        cfg.GetTopHypothesesNum(),
		CalibrationSetSize:   cfg.GetCalibrationSetSize(),
		NonconformityFunc:    cfg.GetNonconformityFunc(),
		Epsilon:              cfg.GetEpsilon(),
		InitSamples:          cfg.GetInitSampleNum(),
		Iterations:           cfg.GetNIterations(),
		Walks:                cfg.GetNWalks(),
		TimeSteps:            cfg.GetNTimeSteps(),
		Perturbations:        cfg.GetNPerturbations(),
		OptimalPerturbations: cfg.GetNOptimalPerturbations(),
		BaseAngVel:           cfg.GetBaseAngVel(),
		BaseLinVel:           cfg.GetBaseLinVel(),
		DecayFactor:          cfg.GetDecayFactor(),
		RotationNoiseScale:   cfg.GetRPerturbationScale(),
		TranslationNoise:     cfg.GetTPerturbationScale(),
		Seed:                 cfg.GetSeed(),
		Workers:              cfg.GetWorkers(),
	}
}

// DefaultRunParams returns run parameters from the canonical tuning
// defaults file. Intended for tests and tools; panics outside a source
// checkout like MustLoadDefaultConfig does.
func DefaultRunParams() RunParams {
	return RunParamsFromTuning(config.MustLoadDefaultConfig())
}

// ToJSON serializes the parameters for storage on the run row.
func (p RunParams) ToJSON() (json.RawMessage, error) {
	return json.Marshal(p)
}

// Source builds the dataset source the parameters point at.
func (p RunParams) Source() dataset.Source {
	return dataset.Source{
		Dir:           p.DataDir,
		Name:          p.Dataset,
		ObjectIDs:     p.ObjectIDs,
		TopHypotheses: p.TopHypotheses,
	}
}

// SearchParams builds the feasible-set search configuration.
func (p RunParams) SearchParams() closure.Params {
	return closure.Params{
		InitSamples:           p.InitSamples,
		Iterations:            p.Iterations,
		Walks:                 p.Walks,
		TimeSteps:             p.TimeSteps,
		Perturbations:         p.Perturbations,
		OptimalPerturbations:  p.OptimalPerturbations,
		BaseAngVel:            p.BaseAngVel,
		BaseLinVel:            p.BaseLinVel,
		DecayFactor:           p.DecayFactor,
		RotationNoiseScale:    p.RotationNoiseScale,
		TranslationNoiseScale: p.TranslationNoise,
	}
}
