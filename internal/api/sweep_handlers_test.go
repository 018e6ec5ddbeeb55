package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/banshee-data/pose.report/internal/storage/sqlite"
)

func TestHandleListSweeps(t *testing.T) {
	s := setupTestServer(t)
	runID := insertTestRun(t, s, "sweep")
	insertTestSweep(t, s, "normalized_max_Rt", 0.2, runID)
	insertTestSweep(t, s, "normalized_max_Rt", 0.05, runID)
	insertTestSweep(t, s, "pointwise_add", 0.1, runID)

	req := httptest.NewRequest(http.MethodGet, "/api/sweeps?func=normalized_max_Rt", nil)
	w := httptest.NewRecorder()
	s.handleListSweeps(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	var resp struct {
		Func   string          `json:"func"`
		Sweeps []*sqlite.Sweep `json:"sweeps"`
		Count  int             `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Count != 2 {
		t.Fatalf("count = %d, want 2", resp.Count)
	}
	// Points come back ordered by epsilon.
	if resp.Sweeps[0].Epsilon != 0.05 || resp.Sweeps[1].Epsilon != 0.2 {
		t.Errorf("epsilon order = %g,%g, want 0.05,0.2", resp.Sweeps[0].Epsilon, resp.Sweeps[1].Epsilon)
	}
}

func TestHandleListSweepsMissingFunc(t *testing.T) {
	s := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/sweeps", nil)
	w := httptest.NewRecorder()
	s.handleListSweeps(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleSweepReport(t *testing.T) {
	s := setupTestServer(t)
	runID := insertTestRun(t, s, "sweep-report")
	insertTestSweep(t, s, "normalized_max_Rt", 0.05, runID)
	insertTestSweep(t, s, "normalized_max_Rt", 0.1, runID)

	req := httptest.NewRequest(http.MethodGet, "/api/sweeps/report?func=normalized_max_Rt", nil)
	w := httptest.NewRecorder()
	s.handleSweepReport(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("content type = %q, want text/html", ct)
	}
	if !strings.Contains(w.Body.String(), "Empirical vs. target miscoverage") {
		t.Errorf("report body missing sweep chart title")
	}
}

func TestHandleSweepReportNoPoints(t *testing.T) {
	s := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/sweeps/report?func=nothing_here", nil)
	w := httptest.NewRecorder()
	s.handleSweepReport(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}
