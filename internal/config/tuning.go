package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for a prediction run:
// where the estimator export lives, how calibration is set up, and how
// the feasible-set search is tuned. The schema matches the /api/runs
// request body so the same JSON drives both the CLI and the server.
type TuningConfig struct {
	// Data source params
	DataDir            *string `json:"data_dir,omitempty"`
	DatasetName        *string `json:"dataset_name,omitempty"`
	ObjectIDs          []int   `json:"object_ids,omitempty"`
	TopHypothesesNum   *int    `json:"top_hypotheses_num,omitempty"`
	CalibrationSetSize *int    `json:"calibration_set_size,omitempty"`

	// Conformal params
	NonconformityFunc *string  `json:"nonconformity_func,omitempty"`
	Epsilon           *float64 `json:"epsilon,omitempty"`

	// Search params
	InitSampleNum         *int     `json:"init_sample_num,omitempty"`
	NIterations           *int     `json:"n_iterations,omitempty"`
	NWalks                *int     `json:"n_walks,omitempty"`
	NTimeSteps            *int     `json:"n_time_steps,omitempty"`
	NPerturbations        *int     `json:"n_perturbations,omitempty"`
	NOptimalPerturbations *int     `json:"n_optimal_perturbations,omitempty"`
	BaseAngVel            *float64 `json:"base_ang_vel,omitempty"`
	BaseLinVel            *float64 `json:"base_lin_vel,omitempty"`
	DecayFactor           *float64 `json:"decay_factor,omitempty"`
	RPerturbationScale    *float64 `json:"R_perturbation_scale,omitempty"`
	TPerturbationScale    *float64 `json:"t_perturbation_scale,omitempty"`

	// Run params
	Seed    *int64  `json:"seed,omitempty"`
	Workers *int    `json:"workers,omitempty"`
	DBPath  *string `json:"db_path,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrInt64(v int64) *int64       { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from a config file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated
// with its default value. Useful as a template for writing new config
// files; the Get* methods supply the same values for nil fields.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		DataDir:            ptrString("data"),
		DatasetName:        ptrString("linemod"),
		ObjectIDs:          []int{1, 2, 4, 5, 6, 8, 9},
		TopHypothesesNum:   ptrInt(10),
		CalibrationSetSize: ptrInt(200),

		NonconformityFunc: ptrString("normalized_max_Rt"),
		Epsilon:           ptrFloat64(0.1),

		InitSampleNum:         ptrInt(200),
		NIterations:           ptrInt(5),
		NWalks:                ptrInt(20),
		NTimeSteps:            ptrInt(15),
		NPerturbations:        ptrInt(150),
		NOptimalPerturbations: ptrInt(10),
		BaseAngVel:            ptrFloat64(0.5),
		BaseLinVel:            ptrFloat64(0.2),
		DecayFactor:           ptrFloat64(0.5),
		RPerturbationScale:    ptrFloat64(0.2),
		TPerturbationScale:    ptrFloat64(0.1),

		Seed:    ptrInt64(0),
		Workers: ptrInt(0),
		DBPath:  ptrString("pose.db"),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under
// the max file size. Fields omitted from the JSON retain their default
// values, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/storage/sqlite/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	// Validate Epsilon if set
	if c.Epsilon != nil {
		if *c.Epsilon <= 0 || *c.Epsilon >= 1 {
			return fmt.Errorf("epsilon must be inside (0, 1), got %f", *c.Epsilon)
		}
	}

	// Validate CalibrationSetSize if set
	if c.CalibrationSetSize != nil && *c.CalibrationSetSize <= 0 {
		return fmt.Errorf("calibration_set_size must be positive, got %d", *c.CalibrationSetSize)
	}

	// Validate TopHypothesesNum if set (zero keeps every hypothesis)
	if c.TopHypothesesNum != nil && *c.TopHypothesesNum < 0 {
		return fmt.Errorf("top_hypotheses_num must be non-negative, got %d", *c.TopHypothesesNum)
	}

	// Validate ObjectIDs if set
	for _, id := range c.ObjectIDs {
		if id < 0 {
			return fmt.Errorf("object_ids must be non-negative, got %d", id)
		}
	}

	// Validate search counters if set
	counters := []struct {
		name  string
		value *int
	}{
		{"init_sample_num", c.InitSampleNum},
		{"n_iterations", c.NIterations},
		{"n_walks", c.NWalks},
		{"n_time_steps", c.NTimeSteps},
		{"n_perturbations", c.NPerturbations},
		{"n_optimal_perturbations", c.NOptimalPerturbations},
	}
	for _, counter := range counters {
		if counter.value != nil && *counter.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", counter.name, *counter.value)
		}
	}

	// Validate velocities if set
	if c.BaseAngVel != nil && *c.BaseAngVel <= 0 {
		return fmt.Errorf("base_ang_vel must be positive, got %f", *c.BaseAngVel)
	}
	if c.BaseLinVel != nil && *c.BaseLinVel <= 0 {
		return fmt.Errorf("base_lin_vel must be positive, got %f", *c.BaseLinVel)
	}

	// Validate DecayFactor if set
	if c.DecayFactor != nil {
		if *c.DecayFactor <= 0 || *c.DecayFactor > 1 {
			return fmt.Errorf("decay_factor must be inside (0, 1], got %f", *c.DecayFactor)
		}
	}

	// Validate perturbation scales if set
	if c.RPerturbationScale != nil && *c.RPerturbationScale < 0 {
		return fmt.Errorf("R_perturbation_scale must be non-negative, got %f", *c.RPerturbationScale)
	}
	if c.TPerturbationScale != nil && *c.TPerturbationScale < 0 {
		return fmt.Errorf("t_perturbation_scale must be non-negative, got %f", *c.TPerturbationScale)
	}

	// Validate Workers if set (zero means one worker per CPU)
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}

	return nil
}

// GetDataDir returns the data_dir value or the default.
func (c *TuningConfig) GetDataDir() string {
	if c.DataDir == nil {
		return "data" // default
	}
	return *c.DataDir
}

// GetDatasetName returns the dataset_name value or the default.
func (c *TuningConfig) GetDatasetName() string {
	if c.DatasetName == nil {
		return "linemod" // default
	}
	return *c.DatasetName
}

// GetObjectIDs returns the object_ids value or the default.
func (c *TuningConfig) GetObjectIDs() []int {
	if c.ObjectIDs == nil {
		return []int{1, 2, 4, 5, 6, 8, 9} // default
	}
	return c.ObjectIDs
}

// GetTopHypothesesNum returns the top_hypotheses_num value or the default.
func (c *TuningConfig) GetTopHypothesesNum() int {
	if c.TopHypothesesNum == nil {
		return 10 // default
	}
	return *c.TopHypothesesNum
}

// GetCalibrationSetSize returns the calibration_set_size value or the default.
func (c *TuningConfig) GetCalibrationSetSize() int {
	if c.CalibrationSetSize == nil {
		return 200 // default
	}
	return *c.CalibrationSetSize
}

// GetNonconformityFunc returns the nonconformity_func value or the default.
func (c *TuningConfig) GetNonconformityFunc() string {
	if c.NonconformityFunc == nil {
		return "normalized_max_Rt" // default
	}
	return *c.NonconformityFunc
}

// GetEpsilon returns the epsilon value or the default.
func (c *TuningConfig) GetEpsilon() float64 {
	if c.Epsilon == nil {
		return 0.1 // default
	}
	return *c.Epsilon
}

// GetInitSampleNum returns the init_sample_num value or the default.
func (c *TuningConfig) GetInitSampleNum() int {
	if c.InitSampleNum == nil {
		return 200 // default
	}
	return *c.InitSampleNum
}

// GetNIterations returns the n_iterations value or the default.
func (c *TuningConfig) GetNIterations() int {
	if c.NIterations == nil {
		return 5 // default
	}
	return *c.NIterations
}

// GetNWalks returns the n_walks value or the default.
func (c *TuningConfig) GetNWalks() int {
	if c.NWalks == nil {
		return 20 // default
	}
	return *c.NWalks
}

// GetNTimeSteps returns the n_time_steps value or the default.
func (c *TuningConfig) GetNTimeSteps() int {
	if c.NTimeSteps == nil {
		return 15 // default
	}
	return *c.NTimeSteps
}

// GetNPerturbations returns the n_perturbations value or the default.
func (c *TuningConfig) GetNPerturbations() int {
	if c.NPerturbations == nil {
		return 150 // default
	}
	return *c.NPerturbations
}

// GetNOptimalPerturbations returns the n_optimal_perturbations value or the default.
func (c *TuningConfig) GetNOptimalPerturbations() int {
	if c.NOptimalPerturbations == nil {
		return 10 // default
	}
	return *c.NOptimalPerturbations
}

// GetBaseAngVel returns the base_ang_vel value or the default.
func (c *TuningConfig) GetBaseAngVel() float64 {
	if c.BaseAngVel == nil {
		return 0.5 // default
	}
	return *c.BaseAngVel
}

// GetBaseLinVel returns the base_lin_vel value or the default.
func (c *TuningConfig) GetBaseLinVel() float64 {
	if c.BaseLinVel == nil {
		return 0.2 // default
	}
	return *c.BaseLinVel
}

// GetDecayFactor returns the decay_factor value or the default.
func (c *TuningConfig) GetDecayFactor() float64 {
	if c.DecayFactor == nil {
		return 0.5 // default
	}
	return *c.DecayFactor
}

// GetRPerturbationScale returns the R_perturbation_scale value or the default.
func (c *TuningConfig) GetRPerturbationScale() float64 {
	if c.RPerturbationScale == nil {
		return 0.2 // default
	}
	return *c.RPerturbationScale
}

// GetTPerturbationScale returns the t_perturbation_scale value or the default.
func (c *TuningConfig) GetTPerturbationScale() float64 {
	if c.TPerturbationScale == nil {
		return 0.1 // default
	}
	return *c.TPerturbationScale
}

// GetSeed returns the seed value or the default.
func (c *TuningConfig) GetSeed() int64 {
	if c.Seed == nil {
		return 0 // default
	}
	return *c.Seed
}

// GetWorkers returns the workers value or the default.
// Zero means one worker per logical CPU.
func (c *TuningConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0 // default
	}
	return *c.Workers
}

// GetDBPath returns the db_path value or the default.
func (c *TuningConfig) GetDBPath() string {
	if c.DBPath == nil {
		return "pose.db" // default
	}
	return *c.DBPath
}
