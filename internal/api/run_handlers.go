package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/banshee-data/pose.report/internal/report"
	"github.com/banshee-data/pose.report/internal/storage/sqlite"
)

// handleListRuns lists stored runs, most recent first.
// GET /api/runs?limit=50&status=completed
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed; use GET")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "database not configured")
		return
	}

	query := r.URL.Query()
	status := query.Get("status")

	limit := 50
	if limitStr := query.Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}

	store := sqlite.NewRunStore(s.db.DB)
	runs, err := store.ListRecent(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list runs: %v", err))
		return
	}

	var filtered []*sqlite.Run
	for _, run := range runs {
		if status != "" && run.Status != status {
			continue
		}
		filtered = append(filtered, run)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"runs":  filtered,
		"count": len(filtered),
	})
}

// handleRunAPI is the dispatcher for /api/runs/{run_id}[/...] endpoints.
func (s *Server) handleRunAPI(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "database not configured")
		return
	}

	runID, subPath := parseRunPath(r.URL.Path)

	// Handle /api/runs/ (list runs)
	if runID == "" {
		s.handleListRuns(w, r)
		return
	}

	switch subPath {
	case "":
		if r.Method == http.MethodDelete {
			s.handleDeleteRun(w, r, runID)
			return
		}
		s.handleGetRun(w, r, runID)
	case "regions":
		s.handleRunRegions(w, r, runID)
	case "summary":
		s.handleRunSummary(w, r, runID)
	case "report":
		s.handleRunReport(w, r, runID)
	case "sweeps":
		s.handleRunSweeps(w, r, runID)
	default:
		s.writeJSONError(w, http.StatusNotFound, "endpoint not found")
	}
}

// parseRunPath extracts run_id and remaining path segments from
// /api/runs/{run_id}/...
func parseRunPath(path string) (runID string, subPath string) {
	trimmed := strings.TrimPrefix(path, "/api/runs/")
	if trimmed == path {
		return "", ""
	}
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) == 0 {
		return "", ""
	}
	runID = parts[0]
	if len(parts) > 1 {
		subPath = parts[1]
	}
	return
}

// handleGetRun returns details for a specific run.
// GET /api/runs/{run_id}
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request, runID string) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed; use GET")
		return
	}

	store := sqlite.NewRunStore(s.db.DB)
	run, err := store.Get(runID)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			s.writeJSONError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get run: %v", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(run)
}

// handleDeleteRun deletes a run and its regions.
// DELETE /api/runs/{run_id}
func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request, runID string) {
	store := sqlite.NewRunStore(s.db.DB)
	if err := store.Delete(runID); err != nil {
		if strings.Contains(err.Error(), "not found") {
			s.writeJSONError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to delete run: %v", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "ok",
		"run_id": runID,
	})
}

// handleRunRegions lists the region rows of a run in sample order.
// GET /api/runs/{run_id}/regions
func (s *Server) handleRunRegions(w http.ResponseWriter, r *http.Request, runID string) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed; use GET")
		return
	}

	store := sqlite.NewRegionStore(s.db.DB)
	regions, err := store.ListByRun(runID)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list regions: %v", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"run_id":  runID,
		"regions": regions,
		"count":   len(regions),
	})
}

// handleRunSummary returns the aggregate statistics for a run.
// GET /api/runs/{run_id}/summary
func (s *Server) handleRunSummary(w http.ResponseWriter, r *http.Request, runID string) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed; use GET")
		return
	}

	run, regions, err := s.loadRun(runID)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			s.writeJSONError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	summary, err := report.Summarize(run, regions)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to summarize run: %v", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}

// handleRunReport renders the chart page for a run.
// GET /api/runs/{run_id}/report
func (s *Server) handleRunReport(w http.ResponseWriter, r *http.Request, runID string) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed; use GET")
		return
	}

	run, regions, err := s.loadRun(runID)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			s.writeJSONError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := report.RenderRunHTML(w, run, regions); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
}

// handleRunSweeps lists the sweep points recorded during a run.
// GET /api/runs/{run_id}/sweeps
func (s *Server) handleRunSweeps(w http.ResponseWriter, r *http.Request, runID string) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed; use GET")
		return
	}

	store := sqlite.NewSweepStore(s.db.DB)
	sweeps, err := store.ListByRun(runID)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list sweeps: %v", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"run_id": runID,
		"sweeps": sweeps,
		"count":  len(sweeps),
	})
}

// loadRun fetches a run row and its regions in one step for the summary
// and report handlers.
func (s *Server) loadRun(runID string) (*sqlite.Run, []*sqlite.Region, error) {
	run, err := sqlite.NewRunStore(s.db.DB).Get(runID)
	if err != nil {
		return nil, nil, err
	}
	regions, err := sqlite.NewRegionStore(s.db.DB).ListByRun(runID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list regions: %v", err)
	}
	return run, regions, nil
}
