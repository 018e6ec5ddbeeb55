package closure

import (
	"fmt"

	"github.com/banshee-data/pose.report/internal/conformal"
)

// Params tunes the feasible-set search. The defaults match the tuning
// the system ships with; sweeps vary them per run.
type Params struct {
	// InitSamples is the number of convex-combination seed candidates
	// drawn before any walking starts.
	InitSamples int `json:"init_sample_num"`

	// Iterations is the number of walk rounds. Each round launches Walks
	// trajectories from every pose in the feasible set and admits the
	// best OptimalPerturbations endpoints.
	Iterations           int `json:"n_iterations"`
	Walks                int `json:"n_walks"`
	TimeSteps            int `json:"n_time_steps"`
	Perturbations        int `json:"n_perturbations"`
	OptimalPerturbations int `json:"n_optimal_perturbations"`

	// BaseAngVel and BaseLinVel are the step magnitudes at the start of a
	// trajectory, in radians and scene units. DecayFactor shrinks both
	// after every time step.
	BaseAngVel  float64 `json:"base_ang_vel"`
	BaseLinVel  float64 `json:"base_lin_vel"`
	DecayFactor float64 `json:"decay_factor"`

	// RotationNoiseScale and TranslationNoiseScale size the Gaussian
	// jitter added after each greedy step, relative to the current step
	// magnitudes.
	RotationNoiseScale    float64 `json:"R_perturbation_scale"`
	TranslationNoiseScale float64 `json:"t_perturbation_scale"`
}

// DefaultParams returns the shipped tuning.
func DefaultParams() Params {
	return Params{
		InitSamples:           200,
		Iterations:            5,
		Walks:                 20,
		TimeSteps:             15,
		Perturbations:         150,
		OptimalPerturbations:  10,
		BaseAngVel:            0.5,
		BaseLinVel:            0.2,
		DecayFactor:           0.5,
		RotationNoiseScale:    0.2,
		TranslationNoiseScale: 0.1,
	}
}

// Validate rejects parameter sets the search cannot run with.
func (p Params) Validate() error {
	checkPositive := func(name string, v int) error {
		if v <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", conformal.ErrInvalidConfiguration, name, v)
		}
		return nil
	}
	for _, c := range []struct {
		name string
		v    int
	}{
		{"init_sample_num", p.InitSamples},
		{"n_iterations", p.Iterations},
		{"n_walks", p.Walks},
		{"n_time_steps", p.TimeSteps},
		{"n_perturbations", p.Perturbations},
		{"n_optimal_perturbations", p.OptimalPerturbations},
	} {
		if err := checkPositive(c.name, c.v); err != nil {
			return err
		}
	}
	if !(p.BaseAngVel > 0) || !(p.BaseLinVel > 0) {
		return fmt.Errorf("%w: base velocities must be positive, got ang=%v lin=%v",
			conformal.ErrInvalidConfiguration, p.BaseAngVel, p.BaseLinVel)
	}
	if !(p.DecayFactor > 0) || p.DecayFactor > 1 {
		return fmt.Errorf("%w: decay_factor %v outside (0, 1]", conformal.ErrInvalidConfiguration, p.DecayFactor)
	}
	if p.RotationNoiseScale < 0 || p.TranslationNoiseScale < 0 {
		return fmt.Errorf("%w: perturbation scales must be non-negative, got R=%v t=%v",
			conformal.ErrInvalidConfiguration, p.RotationNoiseScale, p.TranslationNoiseScale)
	}
	return nil
}
