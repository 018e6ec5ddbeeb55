package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/banshee-data/pose.report/internal/report"
	"github.com/banshee-data/pose.report/internal/storage/sqlite"
)

// handleListSweeps lists epsilon sweep points for a nonconformity function.
// GET /api/sweeps?func=normalized_max_Rt
func (s *Server) handleListSweeps(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed; use GET")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "database not configured")
		return
	}

	fn := r.URL.Query().Get("func")
	if fn == "" {
		s.writeJSONError(w, http.StatusBadRequest, "missing 'func' parameter")
		return
	}

	store := sqlite.NewSweepStore(s.db.DB)
	sweeps, err := store.ListByFunc(fn)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list sweeps: %v", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"func":   fn,
		"sweeps": sweeps,
		"count":  len(sweeps),
	})
}

// handleSweepReport renders the sweep chart page for a nonconformity
// function.
// GET /api/sweeps/report?func=normalized_max_Rt
func (s *Server) handleSweepReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed; use GET")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "database not configured")
		return
	}

	fn := r.URL.Query().Get("func")
	if fn == "" {
		s.writeJSONError(w, http.StatusBadRequest, "missing 'func' parameter")
		return
	}

	store := sqlite.NewSweepStore(s.db.DB)
	sweeps, err := store.ListByFunc(fn)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list sweeps: %v", err))
		return
	}
	if len(sweeps) == 0 {
		s.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("no sweep points for function '%s'", fn))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := report.RenderSweepHTML(w, fn, sweeps); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
}
