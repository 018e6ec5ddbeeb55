package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Region represents the persisted uncertainty region for one test sample:
// the minimal enclosing rotation ball and translation ball over the
// feasible pose set, plus ground truth errors when they were computed.
// Geometry fields are nil for samples whose feasible set came up empty.
type Region struct {
	RegionID      string    `json:"region_id"`
	RunID         string    `json:"run_id"`
	SampleID      int       `json:"sample_id"`
	ObjectID      int       `json:"object_id"`
	ImageID       int       `json:"image_id"`
	Certified     bool      `json:"certified"`
	FeasibleCount int       `json:"feasible_count"`
	RotCenter     []float64 `json:"rot_center,omitempty"` // row-major 3x3 rotation matrix
	RotRadius     *float64  `json:"rot_radius,omitempty"`
	TransCenter   []float64 `json:"trans_center,omitempty"` // x, y, z
	TransRadius   *float64  `json:"trans_radius,omitempty"`
	RotError      *float64  `json:"rot_error,omitempty"`
	TransError    *float64  `json:"trans_error,omitempty"`
	RotCovered    *bool     `json:"rot_covered,omitempty"`
	TransCovered  *bool     `json:"trans_covered,omitempty"`
	ElapsedMs     float64   `json:"elapsed_ms"`
	CreatedAt     int64     `json:"created_at"`

	// FeasiblePosesJSON holds the full feasible set as produced by the
	// pipeline, so reports can be regenerated without re-searching.
	FeasiblePosesJSON json.RawMessage `json:"feasible_poses_json,omitempty"`
}

// RegionStore provides persistence for per-sample uncertainty regions.
type RegionStore struct {
	db *sql.DB
}

// NewRegionStore creates a new RegionStore.
func NewRegionStore(db *sql.DB) *RegionStore {
	return &RegionStore{db: db}
}

// Insert persists a new region. If RegionID is empty, a UUID is generated.
func (s *RegionStore) Insert(region *Region) error {
	args, err := insertRegionArgs(region)
	if err != nil {
		return err
	}
	return retryOnBusy(func() error {
		_, err := s.db.Exec(insertRegionQuery, args...)
		return err
	})
}

// InsertBatch persists a batch of regions in a single transaction. IDs and
// timestamps are defaulted the same way as Insert.
func (s *RegionStore) InsertBatch(regions []*Region) error {
	if len(regions) == 0 {
		return nil
	}
	return retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin region batch: %w", err)
		}
		defer tx.Rollback()

		stmt, err := tx.Prepare(insertRegionQuery)
		if err != nil {
			return fmt.Errorf("prepare region insert: %w", err)
		}
		defer stmt.Close()

		for _, region := range regions {
			args, err := insertRegionArgs(region)
			if err != nil {
				return err
			}
			if _, err := stmt.Exec(args...); err != nil {
				return fmt.Errorf("insert region %d: %w", region.SampleID, err)
			}
		}
		return tx.Commit()
	})
}

const insertRegionQuery = `
	INSERT INTO pose_regions (
		region_id, run_id, sample_id, object_id, image_id,
		certified, feasible_count, rot_center_json, rot_radius,
		trans_center_x, trans_center_y, trans_center_z, trans_radius,
		rot_error, trans_error, rot_covered, trans_covered,
		elapsed_ms, created_at, feasible_poses_json
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func insertRegionArgs(region *Region) ([]interface{}, error) {
	if region.RegionID == "" {
		region.RegionID = uuid.New().String()
	}
	if region.CreatedAt == 0 {
		region.CreatedAt = time.Now().UnixNano()
	}

	var rotCenterStr interface{}
	if len(region.RotCenter) > 0 {
		b, err := json.Marshal(region.RotCenter)
		if err != nil {
			return nil, fmt.Errorf("encode rotation center: %w", err)
		}
		rotCenterStr = string(b)
	}

	var transX, transY, transZ interface{}
	if len(region.TransCenter) == 3 {
		transX = region.TransCenter[0]
		transY = region.TransCenter[1]
		transZ = region.TransCenter[2]
	} else if len(region.TransCenter) != 0 {
		return nil, fmt.Errorf("translation center has %d components, want 3", len(region.TransCenter))
	}

	var feasibleStr interface{}
	if len(region.FeasiblePosesJSON) > 0 {
		feasibleStr = string(region.FeasiblePosesJSON)
	}

	return []interface{}{
		region.RegionID, region.RunID, region.SampleID, region.ObjectID, region.ImageID,
		region.Certified, region.FeasibleCount, rotCenterStr, nullFloat64(region.RotRadius),
		transX, transY, transZ, nullFloat64(region.TransRadius),
		nullFloat64(region.RotError), nullFloat64(region.TransError),
		nullBool(region.RotCovered), nullBool(region.TransCovered),
		region.ElapsedMs, region.CreatedAt, feasibleStr,
	}, nil
}

// ListByRun returns all regions for a run, ordered by sample ID.
func (s *RegionStore) ListByRun(runID string) ([]*Region, error) {
	rows, err := s.db.Query(`
		SELECT region_id, run_id, sample_id, object_id, image_id,
		       certified, feasible_count, rot_center_json, rot_radius,
		       trans_center_x, trans_center_y, trans_center_z, trans_radius,
		       rot_error, trans_error, rot_covered, trans_covered,
		       elapsed_ms, created_at, feasible_poses_json
		FROM pose_regions
		WHERE run_id = ?
		ORDER BY sample_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query regions: %w", err)
	}
	defer rows.Close()

	var regions []*Region
	for rows.Next() {
		r, err := scanRegion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan region row: %w", err)
		}
		regions = append(regions, r)
	}
	return regions, rows.Err()
}

// Get returns a single region by ID.
func (s *RegionStore) Get(regionID string) (*Region, error) {
	row := s.db.QueryRow(`
		SELECT region_id, run_id, sample_id, object_id, image_id,
		       certified, feasible_count, rot_center_json, rot_radius,
		       trans_center_x, trans_center_y, trans_center_z, trans_radius,
		       rot_error, trans_error, rot_covered, trans_covered,
		       elapsed_ms, created_at, feasible_poses_json
		FROM pose_regions
		WHERE region_id = ?`, regionID)

	r, err := scanRegion(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("region %s not found", regionID)
		}
		return nil, fmt.Errorf("scan region: %w", err)
	}
	return r, nil
}

// CountCertified returns the number of certified regions for a run.
func (s *RegionStore) CountCertified(runID string) (int, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM pose_regions
		WHERE run_id = ? AND certified = 1`, runID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count certified regions: %w", err)
	}
	return count, nil
}

// Delete removes a region by ID.
func (s *RegionStore) Delete(regionID string) error {
	return retryOnBusy(func() error {
		result, err := s.db.Exec(`DELETE FROM pose_regions WHERE region_id = ?`, regionID)
		if err != nil {
			return fmt.Errorf("delete region: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("region %s not found", regionID)
		}
		return nil
	})
}

// scanRegion scans a region from a row or rows cursor.
func scanRegion(row rowScanner) (*Region, error) {
	var r Region
	var rotCenterStr, feasibleStr sql.NullString
	var rotRadius, transX, transY, transZ, transRadius sql.NullFloat64
	var rotError, transError, elapsed sql.NullFloat64
	var rotCovered, transCovered sql.NullBool

	err := row.Scan(
		&r.RegionID, &r.RunID, &r.SampleID, &r.ObjectID, &r.ImageID,
		&r.Certified, &r.FeasibleCount, &rotCenterStr, &rotRadius,
		&transX, &transY, &transZ, &transRadius,
		&rotError, &transError, &rotCovered, &transCovered,
		&elapsed, &r.CreatedAt, &feasibleStr,
	)
	if err != nil {
		return nil, err
	}

	if feasibleStr.Valid {
		r.FeasiblePosesJSON = json.RawMessage(feasibleStr.String)
	}

	if rotCenterStr.Valid {
		if err := json.Unmarshal([]byte(rotCenterStr.String), &r.RotCenter); err != nil {
			return nil, fmt.Errorf("decode rotation center: %w", err)
		}
	}
	if rotRadius.Valid {
		r.RotRadius = &rotRadius.Float64
	}
	if transX.Valid && transY.Valid && transZ.Valid {
		r.TransCenter = []float64{transX.Float64, transY.Float64, transZ.Float64}
	}
	if transRadius.Valid {
		r.TransRadius = &transRadius.Float64
	}
	if rotError.Valid {
		r.RotError = &rotError.Float64
	}
	if transError.Valid {
		r.TransError = &transError.Float64
	}
	if rotCovered.Valid {
		r.RotCovered = &rotCovered.Bool
	}
	if transCovered.Valid {
		r.TransCovered = &transCovered.Bool
	}
	if elapsed.Valid {
		r.ElapsedMs = elapsed.Float64
	}
	return &r, nil
}
