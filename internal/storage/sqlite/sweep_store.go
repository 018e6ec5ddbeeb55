package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sweep represents one point of an epsilon sweep: the calibrated
// threshold at a given miscoverage level and the coverage observed on
// the test split. RunID is empty for standalone sweeps.
type Sweep struct {
	SweepID           string  `json:"sweep_id"`
	RunID             string  `json:"run_id,omitempty"`
	NonconformityFunc string  `json:"nonconformity_func"`
	Epsilon           float64 `json:"epsilon"`
	Threshold         float64 `json:"threshold"`
	Evaluated         int     `json:"evaluated"`
	Covered           int     `json:"covered"`
	Miscoverage       float64 `json:"miscoverage"`
	CreatedAt         int64   `json:"created_at"`
}

// SweepStore provides persistence for epsilon sweep results.
type SweepStore struct {
	db *sql.DB
}

// NewSweepStore creates a new SweepStore.
func NewSweepStore(db *sql.DB) *SweepStore {
	return &SweepStore{db: db}
}

// Insert persists a new sweep point. If SweepID is empty, a UUID is generated.
func (s *SweepStore) Insert(sweep *Sweep) error {
	if sweep.SweepID == "" {
		sweep.SweepID = uuid.New().String()
	}
	if sweep.CreatedAt == 0 {
		sweep.CreatedAt = time.Now().UnixNano()
	}

	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO epsilon_sweeps (
				sweep_id, run_id, nonconformity_func, epsilon, threshold,
				evaluated, covered, miscoverage, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sweep.SweepID, nullString(sweep.RunID), sweep.NonconformityFunc, sweep.Epsilon, sweep.Threshold,
			sweep.Evaluated, sweep.Covered, sweep.Miscoverage, sweep.CreatedAt,
		)
		return err
	})
}

// ListByFunc returns all sweep points recorded for a nonconformity
// function, ordered by epsilon ascending.
func (s *SweepStore) ListByFunc(nonconformityFunc string) ([]*Sweep, error) {
	return s.list(`
		SELECT sweep_id, run_id, nonconformity_func, epsilon, threshold,
		       evaluated, covered, miscoverage, created_at
		FROM epsilon_sweeps
		WHERE nonconformity_func = ?
		ORDER BY epsilon`, nonconformityFunc)
}

// ListByRun returns all sweep points attached to a run, ordered by
// epsilon ascending.
func (s *SweepStore) ListByRun(runID string) ([]*Sweep, error) {
	return s.list(`
		SELECT sweep_id, run_id, nonconformity_func, epsilon, threshold,
		       evaluated, covered, miscoverage, created_at
		FROM epsilon_sweeps
		WHERE run_id = ?
		ORDER BY epsilon`, runID)
}

func (s *SweepStore) list(query string, args ...interface{}) ([]*Sweep, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sweeps: %w", err)
	}
	defer rows.Close()

	var sweeps []*Sweep
	for rows.Next() {
		var sw Sweep
		var runID sql.NullString
		err := rows.Scan(
			&sw.SweepID, &runID, &sw.NonconformityFunc, &sw.Epsilon, &sw.Threshold,
			&sw.Evaluated, &sw.Covered, &sw.Miscoverage, &sw.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan sweep row: %w", err)
		}
		if runID.Valid {
			sw.RunID = runID.String
		}
		sweeps = append(sweeps, &sw)
	}
	return sweeps, rows.Err()
}
