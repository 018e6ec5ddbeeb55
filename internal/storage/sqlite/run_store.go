package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run statuses.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Run represents a persisted prediction run: one calibration of a
// nonconformity function followed by region search over a test split.
type Run struct {
	RunID                string          `json:"run_id"`
	CreatedAt            int64           `json:"created_at"`
	Dataset              string          `json:"dataset"`
	NonconformityFunc    string          `json:"nonconformity_func"`
	Epsilon              float64         `json:"epsilon"`
	Threshold            float64         `json:"threshold"`
	RRatio               float64         `json:"r_ratio"`
	TRatio               float64         `json:"t_ratio"`
	CalibrationSize      int             `json:"calibration_size"`
	TestSize             int             `json:"test_size"`
	Seed                 int64           `json:"seed"`
	ParamsJSON           json.RawMessage `json:"params_json,omitempty"`
	Status               string          `json:"status"`
	ErrorMessage         string          `json:"error_message,omitempty"`
	CompletedAt          *int64          `json:"completed_at,omitempty"`
	SamplesTotal         int             `json:"samples_total"`
	SamplesCertified     int             `json:"samples_certified"`
	EmpiricalMiscoverage *float64        `json:"empirical_miscoverage,omitempty"`
	ProcessingTimeMs     *int64          `json:"processing_time_ms,omitempty"`
}

// RunStats carries the final counters written when a run completes.
type RunStats struct {
	SamplesTotal         int     `json:"samples_total"`
	SamplesCertified     int     `json:"samples_certified"`
	EmpiricalMiscoverage float64 `json:"empirical_miscoverage"`
	ProcessingTimeMs     int64   `json:"processing_time_ms"`
}

// RunStore provides persistence for prediction runs.
type RunStore struct {
	db *sql.DB
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

// Insert persists a new run. If RunID is empty, a UUID is generated; a
// zero CreatedAt is set to now and an empty Status defaults to running.
func (s *RunStore) Insert(run *Run) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = time.Now().UnixNano()
	}
	if run.Status == "" {
		run.Status = RunStatusRunning
	}

	var paramsStr interface{}
	if len(run.ParamsJSON) > 0 {
		paramsStr = string(run.ParamsJSON)
	}

	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO pose_runs (
				run_id, created_at, dataset, nonconformity_func, epsilon,
				threshold, r_ratio, t_ratio, calibration_size, test_size,
				seed, params_json, status, error_message, completed_at,
				samples_total, samples_certified, empirical_miscoverage, processing_time_ms
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, run.CreatedAt, run.Dataset, run.NonconformityFunc, run.Epsilon,
			run.Threshold, run.RRatio, run.TRatio, run.CalibrationSize, run.TestSize,
			run.Seed, paramsStr, run.Status, nullString(run.ErrorMessage), nullInt64(run.CompletedAt),
			run.SamplesTotal, run.SamplesCertified, nullFloat64(run.EmpiricalMiscoverage), nullInt64(run.ProcessingTimeMs),
		)
		return err
	})
}

// SetCalibration records the calibrated threshold and split sizes on a run.
// Called once calibration finishes, before region search starts.
func (s *RunStore) SetCalibration(runID string, threshold, rRatio, tRatio float64, calibrationSize, testSize int) error {
	return s.update(runID, `
		UPDATE pose_runs
		SET threshold = ?, r_ratio = ?, t_ratio = ?, calibration_size = ?, test_size = ?
		WHERE run_id = ?`,
		threshold, rRatio, tRatio, calibrationSize, testSize, runID)
}

// Complete marks a run as completed and writes its final statistics.
func (s *RunStore) Complete(runID string, stats *RunStats) error {
	return s.update(runID, `
		UPDATE pose_runs
		SET status = ?, completed_at = ?, samples_total = ?, samples_certified = ?,
		    empirical_miscoverage = ?, processing_time_ms = ?
		WHERE run_id = ?`,
		RunStatusCompleted, time.Now().UnixNano(), stats.SamplesTotal, stats.SamplesCertified,
		stats.EmpiricalMiscoverage, stats.ProcessingTimeMs, runID)
}

// Fail marks a run as failed with an error message.
func (s *RunStore) Fail(runID, message string) error {
	return s.update(runID, `
		UPDATE pose_runs
		SET status = ?, error_message = ?, completed_at = ?
		WHERE run_id = ?`,
		RunStatusFailed, message, time.Now().UnixNano(), runID)
}

func (s *RunStore) update(runID, query string, args ...interface{}) error {
	return retryOnBusy(func() error {
		result, err := s.db.Exec(query, args...)
		if err != nil {
			return fmt.Errorf("update run: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("run %s not found", runID)
		}
		return nil
	})
}

// Get returns a single run by ID.
func (s *RunStore) Get(runID string) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT run_id, created_at, dataset, nonconformity_func, epsilon,
		       threshold, r_ratio, t_ratio, calibration_size, test_size,
		       seed, params_json, status, error_message, completed_at,
		       samples_total, samples_certified, empirical_miscoverage, processing_time_ms
		FROM pose_runs
		WHERE run_id = ?`, runID)

	r, err := scanRun(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("run %s not found", runID)
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	return r, nil
}

// ListRecent returns up to limit runs ordered by creation time descending.
// A non-positive limit defaults to 50.
func (s *RunStore) ListRecent(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT run_id, created_at, dataset, nonconformity_func, epsilon,
		       threshold, r_ratio, t_ratio, calibration_size, test_size,
		       seed, params_json, status, error_message, completed_at,
		       samples_total, samples_certified, empirical_miscoverage, processing_time_ms
		FROM pose_runs
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Delete removes a run by ID. Regions belonging to the run are removed
// by the foreign key cascade.
func (s *RunStore) Delete(runID string) error {
	return retryOnBusy(func() error {
		result, err := s.db.Exec(`DELETE FROM pose_runs WHERE run_id = ?`, runID)
		if err != nil {
			return fmt.Errorf("delete run: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("run %s not found", runID)
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanRun scans a run from a row or rows cursor.
func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var paramsStr, errorMessage sql.NullString
	var completedAt, processingTime sql.NullInt64
	var miscoverage sql.NullFloat64

	err := row.Scan(
		&r.RunID, &r.CreatedAt, &r.Dataset, &r.NonconformityFunc, &r.Epsilon,
		&r.Threshold, &r.RRatio, &r.TRatio, &r.CalibrationSize, &r.TestSize,
		&r.Seed, &paramsStr, &r.Status, &errorMessage, &completedAt,
		&r.SamplesTotal, &r.SamplesCertified, &miscoverage, &processingTime,
	)
	if err != nil {
		return nil, err
	}

	if paramsStr.Valid {
		r.ParamsJSON = json.RawMessage(paramsStr.String)
	}
	if errorMessage.Valid {
		r.ErrorMessage = errorMessage.String
	}
	if completedAt.Valid {
		r.CompletedAt = &completedAt.Int64
	}
	if miscoverage.Valid {
		r.EmpiricalMiscoverage = &miscoverage.Float64
	}
	if processingTime.Valid {
		r.ProcessingTimeMs = &processingTime.Int64
	}
	return &r, nil
}
