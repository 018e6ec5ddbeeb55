package db

import (
	"encoding/json"
	"fmt"
	"net/http"

	"tailscale.com/tsweb"
)

// DatabaseStats summarizes table sizes for the admin debug page.
type DatabaseStats struct {
	TotalSizeMB float64 `json:"total_size_mb"`
	PageCount   int64   `json:"page_count"`
	PageSize    int64   `json:"page_size"`
	RunCount    int64   `json:"run_count"`
	RegionCount int64   `json:"region_count"`
	SweepCount  int64   `json:"sweep_count"`
}

// GetDatabaseStats returns row counts for the main tables plus the
// database file size derived from the page statistics.
func (db *DB) GetDatabaseStats() (*DatabaseStats, error) {
	stats := &DatabaseStats{}

	if err := db.QueryRow("PRAGMA page_count").Scan(&stats.PageCount); err != nil {
		return nil, fmt.Errorf("failed to read page_count: %w", err)
	}
	if err := db.QueryRow("PRAGMA page_size").Scan(&stats.PageSize); err != nil {
		return nil, fmt.Errorf("failed to read page_size: %w", err)
	}
	stats.TotalSizeMB = float64(stats.PageCount*stats.PageSize) / (1024 * 1024)

	counts := []struct {
		table string
		dest  *int64
	}{
		{"pose_runs", &stats.RunCount},
		{"pose_regions", &stats.RegionCount},
		{"epsilon_sweeps", &stats.SweepCount},
	}
	for _, c := range counts {
		if err := db.QueryRow("SELECT COUNT(*) FROM " + c.table).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", c.table, err)
		}
	}

	return stats, nil
}

// attachStatsRoute registers the db-stats debug endpoint.
func (db *DB) attachStatsRoute(debug *tsweb.DebugHandler) {
	debug.Handle("db-stats", "Database table sizes and row counts", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stats, err := db.GetDatabaseStats()
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to collect stats: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(stats); err != nil {
			http.Error(w, fmt.Sprintf("Failed to encode stats: %v", err), http.StatusInternalServerError)
		}
	}))
}
