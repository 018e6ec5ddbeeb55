package api

import (
	"encoding/json"
	"io"
	"net/http"
)

// handleRunStart launches a prediction run in the background.
// POST /api/runs/start with an optional JSON body of tuning overrides
// (same keys as the run config file).
func (s *Server) handleRunStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	if s.runner == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "run trigger not configured")
		return
	}

	overrides, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	if err := s.runner.Start(r.Context(), overrides); err != nil {
		s.writeJSONError(w, http.StatusConflict, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "started"})
}

// handleRunActive reports whether a run is in flight and which one.
// GET /api/runs/active
func (s *Server) handleRunActive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed; use GET")
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if s.manager == nil {
		json.NewEncoder(w).Encode(map[string]interface{}{"active": false})
		return
	}

	resp := map[string]interface{}{
		"active": s.manager.IsRunActive(),
	}
	if runID := s.manager.CurrentRunID(); runID != "" {
		resp["run_id"] = runID
	}
	if params, ok := s.manager.CurrentRunParams(); ok {
		resp["params"] = params
	}

	json.NewEncoder(w).Encode(resp)
}
