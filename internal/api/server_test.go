package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/pose.report/internal/db"
	"github.com/banshee-data/pose.report/internal/pipeline"
	"github.com/banshee-data/pose.report/internal/storage/sqlite"
)

// setupTestServer creates a Server over a fresh migrated database.
func setupTestServer(t *testing.T) *Server {
	t.Helper()
	database, err := db.NewDB(filepath.Join(t.TempDir(), "api_test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewServer(Config{Address: ":0", DB: database})
}

// insertTestRun inserts a completed run and returns its ID.
func insertTestRun(t *testing.T, s *Server, suffix string) string {
	t.Helper()
	store := sqlite.NewRunStore(s.db.DB)
	run := &sqlite.Run{
		RunID:             "api-run-" + suffix,
		Dataset:           "linemod",
		NonconformityFunc: "normalized_max_Rt",
		Epsilon:           0.1,
		Threshold:         0.8,
		Status:            sqlite.RunStatusCompleted,
	}
	if err := store.Insert(run); err != nil {
		t.Fatalf("Insert run: %v", err)
	}
	return run.RunID
}

// insertTestRegion inserts a certified region with full geometry.
func insertTestRegion(t *testing.T, s *Server, runID string, sampleID int) {
	t.Helper()
	radius := 0.1 + 0.05*float64(sampleID)
	gtErr := radius / 2
	covered := true
	store := sqlite.NewRegionStore(s.db.DB)
	region := &sqlite.Region{
		RunID:         runID,
		SampleID:      sampleID,
		ObjectID:      1,
		ImageID:       sampleID,
		Certified:     true,
		FeasibleCount: 4,
		RotCenter:     []float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
		RotRadius:     &radius,
		TransCenter:   []float64{0.01, -0.02, 0.95},
		TransRadius:   &radius,
		RotError:      &gtErr,
		TransError:    &gtErr,
		RotCovered:    &covered,
		TransCovered:  &covered,
	}
	if err := store.Insert(region); err != nil {
		t.Fatalf("Insert region: %v", err)
	}
}

func insertTestSweep(t *testing.T, s *Server, fn string, eps float64, runID string) {
	t.Helper()
	store := sqlite.NewSweepStore(s.db.DB)
	sweep := &sqlite.Sweep{
		RunID:             runID,
		NonconformityFunc: fn,
		Epsilon:           eps,
		Threshold:         1 - eps,
		Evaluated:         40,
		Covered:           int(40 * (1 - eps)),
		Miscoverage:       eps,
	}
	if err := store.Insert(sweep); err != nil {
		t.Fatalf("Insert sweep: %v", err)
	}
}

func TestHandleHealth(t *testing.T) {
	s := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.handleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `"status": "ok"`) {
		t.Errorf("body = %q, want status ok", w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "pose-report") {
		t.Errorf("body = %q, want service name", w.Body.String())
	}
}

// Exact routes must win over the /api/runs/ dispatcher, otherwise "active"
// would be parsed as a run id.
func TestRoutePrecedence(t *testing.T) {
	s := setupTestServer(t)
	mux := s.setupRoutes()

	req := httptest.NewRequest(http.MethodGet, "/api/runs/active", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if active, ok := resp["active"].(bool); !ok || active {
		t.Errorf("active = %v, want false", resp["active"])
	}
}

type fakeRunner struct {
	started  int
	lastBody []byte
	err      error
}

func (f *fakeRunner) Start(ctx context.Context, overrides []byte) error {
	f.started++
	f.lastBody = overrides
	return f.err
}

func TestHandleRunStart(t *testing.T) {
	s := setupTestServer(t)
	runner := &fakeRunner{}
	s.runner = runner

	body := bytes.NewReader([]byte(`{"epsilon": 0.2}`))
	req := httptest.NewRequest(http.MethodPost, "/api/runs/start", body)
	w := httptest.NewRecorder()
	s.handleRunStart(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if runner.started != 1 {
		t.Errorf("started = %d, want 1", runner.started)
	}
	if !strings.Contains(string(runner.lastBody), "epsilon") {
		t.Errorf("overrides not forwarded: %q", runner.lastBody)
	}
	if !strings.Contains(w.Body.String(), "started") {
		t.Errorf("body = %q, want started", w.Body.String())
	}
}

func TestHandleRunStartConflict(t *testing.T) {
	s := setupTestServer(t)
	s.runner = &fakeRunner{err: fmt.Errorf("a prediction run is already active")}

	req := httptest.NewRequest(http.MethodPost, "/api/runs/start", nil)
	w := httptest.NewRecorder()
	s.handleRunStart(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestHandleRunStartNotConfigured(t *testing.T) {
	s := setupTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/runs/start", nil)
	w := httptest.NewRecorder()
	s.handleRunStart(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestHandleRunStartMethodNotAllowed(t *testing.T) {
	s := setupTestServer(t)
	s.runner = &fakeRunner{}

	req := httptest.NewRequest(http.MethodGet, "/api/runs/start", nil)
	w := httptest.NewRecorder()
	s.handleRunStart(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

func TestHandleRunActiveWithManager(t *testing.T) {
	s := setupTestServer(t)
	s.manager = pipeline.NewRunManager(s.db.DB)

	params := pipeline.RunParams{
		Dataset:           "linemod",
		NonconformityFunc: "normalized_max_Rt",
		Epsilon:           0.1,
		Seed:              7,
	}
	runID, err := s.manager.StartRun(params)
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/runs/active", nil)
	w := httptest.NewRecorder()
	s.handleRunActive(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if active, _ := resp["active"].(bool); !active {
		t.Errorf("active = %v, want true", resp["active"])
	}
	if got, _ := resp["run_id"].(string); got != runID {
		t.Errorf("run_id = %q, want %q", got, runID)
	}
	if _, ok := resp["params"]; !ok {
		t.Error("params missing from active response")
	}
}
