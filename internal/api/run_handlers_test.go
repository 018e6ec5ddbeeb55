package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/banshee-data/pose.report/internal/report"
	"github.com/banshee-data/pose.report/internal/storage/sqlite"
)

func TestHandleListRuns(t *testing.T) {
	s := setupTestServer(t)
	insertTestRun(t, s, "a")
	insertTestRun(t, s, "b")

	req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
	w := httptest.NewRecorder()
	s.handleListRuns(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp struct {
		Runs  []*sqlite.Run `json:"runs"`
		Count int           `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Count != 2 || len(resp.Runs) != 2 {
		t.Errorf("count = %d (%d runs), want 2", resp.Count, len(resp.Runs))
	}
}

func TestHandleListRunsStatusFilter(t *testing.T) {
	s := setupTestServer(t)
	insertTestRun(t, s, "done")

	store := sqlite.NewRunStore(s.db.DB)
	failed := &sqlite.Run{
		RunID:             "api-run-failed",
		Dataset:           "linemod",
		NonconformityFunc: "normalized_max_Rt",
		Epsilon:           0.1,
		Status:            sqlite.RunStatusFailed,
	}
	if err := store.Insert(failed); err != nil {
		t.Fatalf("Insert run: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/runs?status=completed", nil)
	w := httptest.NewRecorder()
	s.handleListRuns(w, req)

	var resp struct {
		Runs  []*sqlite.Run `json:"runs"`
		Count int           `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Count != 1 {
		t.Fatalf("count = %d, want 1", resp.Count)
	}
	if resp.Runs[0].Status != sqlite.RunStatusCompleted {
		t.Errorf("status = %q, want completed", resp.Runs[0].Status)
	}
}

func TestHandleListRunsMethodNotAllowed(t *testing.T) {
	s := setupTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/runs", nil)
	w := httptest.NewRecorder()
	s.handleListRuns(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

func TestHandleGetRun(t *testing.T) {
	s := setupTestServer(t)
	runID := insertTestRun(t, s, "get")

	req := httptest.NewRequest(http.MethodGet, "/api/runs/"+runID, nil)
	w := httptest.NewRecorder()
	s.handleRunAPI(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	var run sqlite.Run
	if err := json.Unmarshal(w.Body.Bytes(), &run); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if run.RunID != runID {
		t.Errorf("run_id = %q, want %q", run.RunID, runID)
	}
}

func TestHandleGetRunNotFound(t *testing.T) {
	s := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/runs/no-such-run", nil)
	w := httptest.NewRecorder()
	s.handleRunAPI(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestHandleDeleteRun(t *testing.T) {
	s := setupTestServer(t)
	runID := insertTestRun(t, s, "del")
	insertTestRegion(t, s, runID, 0)

	req := httptest.NewRequest(http.MethodDelete, "/api/runs/"+runID, nil)
	w := httptest.NewRecorder()
	s.handleRunAPI(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	// The run and its regions are gone.
	req = httptest.NewRequest(http.MethodDelete, "/api/runs/"+runID, nil)
	w = httptest.NewRecorder()
	s.handleRunAPI(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want %d", w.Code, http.StatusNotFound)
	}

	regions, err := sqlite.NewRegionStore(s.db.DB).ListByRun(runID)
	if err != nil {
		t.Fatalf("ListByRun: %v", err)
	}
	if len(regions) != 0 {
		t.Errorf("regions remaining = %d, want 0", len(regions))
	}
}

func TestHandleRunAPIUnknownEndpoint(t *testing.T) {
	s := setupTestServer(t)
	runID := insertTestRun(t, s, "unknown")

	req := httptest.NewRequest(http.MethodGet, "/api/runs/"+runID+"/no-such-endpoint", nil)
	w := httptest.NewRecorder()
	s.handleRunAPI(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestHandleRunRegions(t *testing.T) {
	s := setupTestServer(t)
	runID := insertTestRun(t, s, "regions")
	insertTestRegion(t, s, runID, 1)
	insertTestRegion(t, s, runID, 0)

	req := httptest.NewRequest(http.MethodGet, "/api/runs/"+runID+"/regions", nil)
	w := httptest.NewRecorder()
	s.handleRunAPI(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	var resp struct {
		RunID   string           `json:"run_id"`
		Regions []*sqlite.Region `json:"regions"`
		Count   int              `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Count != 2 {
		t.Fatalf("count = %d, want 2", resp.Count)
	}
	// Regions come back in sample order regardless of insert order.
	if resp.Regions[0].SampleID != 0 || resp.Regions[1].SampleID != 1 {
		t.Errorf("sample order = %d,%d, want 0,1", resp.Regions[0].SampleID, resp.Regions[1].SampleID)
	}
}

func TestHandleRunSummary(t *testing.T) {
	s := setupTestServer(t)
	runID := insertTestRun(t, s, "summary")
	insertTestRegion(t, s, runID, 0)
	insertTestRegion(t, s, runID, 1)

	req := httptest.NewRequest(http.MethodGet, "/api/runs/"+runID+"/summary", nil)
	w := httptest.NewRecorder()
	s.handleRunAPI(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	var summary report.RunSummary
	if err := json.Unmarshal(w.Body.Bytes(), &summary); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if summary.RunID != runID {
		t.Errorf("run_id = %q, want %q", summary.RunID, runID)
	}
	if summary.Samples != 2 || summary.Certified != 2 {
		t.Errorf("samples/certified = %d/%d, want 2/2", summary.Samples, summary.Certified)
	}
	if summary.RotRadius.Count != 2 {
		t.Errorf("rot radius count = %d, want 2", summary.RotRadius.Count)
	}
}

func TestHandleRunSummaryNotFound(t *testing.T) {
	s := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/runs/no-such-run/summary", nil)
	w := httptest.NewRecorder()
	s.handleRunAPI(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestHandleRunReport(t *testing.T) {
	s := setupTestServer(t)
	runID := insertTestRun(t, s, "report")
	insertTestRegion(t, s, runID, 0)

	req := httptest.NewRequest(http.MethodGet, "/api/runs/"+runID+"/report", nil)
	w := httptest.NewRecorder()
	s.handleRunAPI(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("content type = %q, want text/html", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, "Rotation radius vs. geodesic error") {
		t.Errorf("report body missing rotation chart title")
	}
	if !strings.Contains(body, runID) {
		t.Errorf("report body missing run id %q", runID)
	}
}
