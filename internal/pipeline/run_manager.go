package pipeline

import (
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/banshee-data/pose.report/internal/monitoring"
	"github.com/banshee-data/pose.report/internal/storage/sqlite"
	"github.com/banshee-data/pose.report/internal/timeutil"
)

var logf = monitoring.Scope("RunManager")

// RunManager coordinates run lifecycle and region collection. It is safe
// for concurrent use; the predictor records regions from worker
// goroutines while the HTTP layer polls run state.
type RunManager struct {
	mu         sync.RWMutex
	runs       *sqlite.RunStore
	regions    *sqlite.RegionStore
	sweeps     *sqlite.SweepStore
	clock      timeutil.Clock
	currentRun *sqlite.Run
	startTime  time.Time

	// Stats collected during the run
	samplesDone      int
	samplesCertified int
}

// runManagers stores named run managers, so the HTTP layer can reach the
// manager the CLI registered.
var (
	rmMu       sync.RWMutex
	rmRegistry = make(map[string]*RunManager)
)

// NewRunManager creates a manager persisting through the given database.
func NewRunManager(db *sql.DB) *RunManager {
	return &RunManager{
		runs:    sqlite.NewRunStore(db),
		regions: sqlite.NewRegionStore(db),
		sweeps:  sqlite.NewSweepStore(db),
		clock:   timeutil.RealClock{},
	}
}

// RegisterRunManager registers a manager under a name.
func RegisterRunManager(name string, manager *RunManager) {
	rmMu.Lock()
	defer rmMu.Unlock()
	rmRegistry[name] = manager
}

// GetRunManager retrieves the manager registered under a name.
func GetRunManager(name string) *RunManager {
	rmMu.RLock()
	defer rmMu.RUnlock()
	return rmRegistry[name]
}

// StartRun begins a new prediction run and returns its ID.
func (m *RunManager) StartRun(params RunParams) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	paramsJSON, err := params.ToJSON()
	if err != nil {
		return "", err
	}

	run := &sqlite.Run{
		Dataset:           params.Dataset,
		NonconformityFunc: params.NonconformityFunc,
		Epsilon:           params.Epsilon,
		Seed:              params.Seed,
		ParamsJSON:        paramsJSON,
		Status:            sqlite.RunStatusRunning,
	}
	if err := m.runs.Insert(run); err != nil {
		return "", err
	}

	m.currentRun = run
	m.startTime = m.clock.Now()
	m.samplesDone = 0
	m.samplesCertified = 0

	logf("Started run %s for dataset %s (%s, eps=%g)",
		run.RunID, params.Dataset, params.NonconformityFunc, params.Epsilon)
	return run.RunID, nil
}

// RecordCalibration stores the calibrated threshold and split sizes on
// the current run.
func (m *RunManager) RecordCalibration(threshold, rRatio, tRatio float64, calibrationSize, testSize int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.currentRun == nil {
		return nil
	}
	if err := m.runs.SetCalibration(m.currentRun.RunID, threshold, rRatio, tRatio, calibrationSize, testSize); err != nil {
		return err
	}
	m.currentRun.Threshold = threshold
	m.currentRun.RRatio = rRatio
	m.currentRun.TRatio = tRatio
	m.currentRun.CalibrationSize = calibrationSize
	m.currentRun.TestSize = testSize
	return nil
}

// RecordRegion persists a region for the current run and updates the run
// counters. Returns false when no run is active or the insert failed.
func (m *RunManager) RecordRegion(region *sqlite.Region) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.currentRun == nil {
		return false
	}
	region.RunID = m.currentRun.RunID

	if err := m.regions.Insert(region); err != nil {
		logf("Failed to insert region for sample %d: %v", region.SampleID, err)
		return false
	}

	m.samplesDone++
	if region.Certified {
		m.samplesCertified++
	}
	return true
}

// RecordSweep persists an epsilon sweep point, attached to the current
// run when one is active.
func (m *RunManager) RecordSweep(sweep *sqlite.Sweep) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.currentRun != nil {
		sweep.RunID = m.currentRun.RunID
	}
	if err := m.sweeps.Insert(sweep); err != nil {
		logf("Failed to insert sweep point eps=%g: %v", sweep.Epsilon, err)
		return false
	}
	return true
}

// CompleteRun finalizes the current run with statistics.
func (m *RunManager) CompleteRun(empiricalMiscoverage float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.currentRun == nil {
		return nil
	}

	processingTime := m.clock.Since(m.startTime)
	stats := &sqlite.RunStats{
		SamplesTotal:         m.samplesDone,
		SamplesCertified:     m.samplesCertified,
		EmpiricalMiscoverage: empiricalMiscoverage,
		ProcessingTimeMs:     processingTime.Milliseconds(),
	}

	if err := m.runs.Complete(m.currentRun.RunID, stats); err != nil {
		return err
	}

	logf("Completed run %s: %d/%d samples certified in %.2fs",
		m.currentRun.RunID, m.samplesCertified, m.samplesDone, processingTime.Seconds())

	m.currentRun = nil
	return nil
}

// FailRun marks the current run as failed with an error message.
func (m *RunManager) FailRun(errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.currentRun == nil {
		return nil
	}

	if err := m.runs.Fail(m.currentRun.RunID, errMsg); err != nil {
		return err
	}

	logf("Failed run %s: %s", m.currentRun.RunID, errMsg)
	m.currentRun = nil
	return nil
}

// IsRunActive returns true if there is an active run.
func (m *RunManager) IsRunActive() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentRun != nil
}

// CurrentRunID returns the current run ID, or empty string if no run is
// active.
func (m *RunManager) CurrentRunID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.currentRun == nil {
		return ""
	}
	return m.currentRun.RunID
}

// CurrentRunParams retrieves the current run's parameters for display.
func (m *RunManager) CurrentRunParams() (RunParams, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.currentRun == nil {
		return RunParams{}, false
	}

	var params RunParams
	if err := json.Unmarshal(m.currentRun.ParamsJSON, &params); err != nil {
		return RunParams{}, false
	}
	return params, true
}
