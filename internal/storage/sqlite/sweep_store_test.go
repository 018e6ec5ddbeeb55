package sqlite

import (
	"errors"
	"testing"
)

func TestSweepStoreInsertDefaults(t *testing.T) {
	db, cleanup := setupStoreTestDB(t)
	defer cleanup()

	store := NewSweepStore(db)
	sweep := &Sweep{
		NonconformityFunc: "max_R",
		Epsilon:           0.1,
		Threshold:         0.42,
		Evaluated:         35,
		Covered:           32,
		Miscoverage:       3.0 / 35.0,
	}
	if err := store.Insert(sweep); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if sweep.SweepID == "" {
		t.Error("Insert should generate a sweep ID")
	}
	if sweep.CreatedAt == 0 {
		t.Error("Insert should set CreatedAt")
	}
}

func TestSweepStoreListByFuncOrdersByEpsilon(t *testing.T) {
	db, cleanup := setupStoreTestDB(t)
	defer cleanup()

	store := NewSweepStore(db)
	for _, eps := range []float64{0.3, 0.1, 0.2} {
		sweep := &Sweep{
			NonconformityFunc: "max_R",
			Epsilon:           eps,
			Threshold:         1 - eps,
			Evaluated:         10,
			Covered:           9,
			Miscoverage:       0.1,
		}
		if err := store.Insert(sweep); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}
	if err := store.Insert(&Sweep{NonconformityFunc: "mean_t", Epsilon: 0.15, Threshold: 0.5, Evaluated: 10, Covered: 8, Miscoverage: 0.2}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	sweeps, err := store.ListByFunc("max_R")
	if err != nil {
		t.Fatalf("ListByFunc failed: %v", err)
	}
	if len(sweeps) != 3 {
		t.Fatalf("got %d sweeps, want 3", len(sweeps))
	}
	for i, want := range []float64{0.1, 0.2, 0.3} {
		if sweeps[i].Epsilon != want {
			t.Errorf("sweeps[%d].Epsilon = %v, want %v", i, sweeps[i].Epsilon, want)
		}
	}
	if sweeps[0].RunID != "" {
		t.Errorf("standalone sweep RunID = %q, want empty", sweeps[0].RunID)
	}
}

func TestSweepStoreListByRun(t *testing.T) {
	db, cleanup := setupStoreTestDB(t)
	defer cleanup()

	runID := insertTestRun(t, db)
	store := NewSweepStore(db)

	attached := &Sweep{RunID: runID, NonconformityFunc: "mean_Rt", Epsilon: 0.1, Threshold: 2.1, Evaluated: 20, Covered: 18, Miscoverage: 0.1}
	standalone := &Sweep{NonconformityFunc: "mean_Rt", Epsilon: 0.2, Threshold: 1.8, Evaluated: 20, Covered: 16, Miscoverage: 0.2}
	if err := store.Insert(attached); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Insert(standalone); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	sweeps, err := store.ListByRun(runID)
	if err != nil {
		t.Fatalf("ListByRun failed: %v", err)
	}
	if len(sweeps) != 1 {
		t.Fatalf("got %d sweeps, want 1", len(sweeps))
	}
	if sweeps[0].SweepID != attached.SweepID {
		t.Errorf("got sweep %s, want %s", sweeps[0].SweepID, attached.SweepID)
	}
}

func TestSweepStoreRunDeleteDetachesSweeps(t *testing.T) {
	db, cleanup := setupStoreTestDB(t)
	defer cleanup()

	runID := insertTestRun(t, db)
	store := NewSweepStore(db)
	sweep := &Sweep{RunID: runID, NonconformityFunc: "max_t", Epsilon: 0.1, Threshold: 0.02, Evaluated: 15, Covered: 14, Miscoverage: 1.0 / 15.0}
	if err := store.Insert(sweep); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if err := NewRunStore(db).Delete(runID); err != nil {
		t.Fatalf("Delete run failed: %v", err)
	}

	sweeps, err := store.ListByFunc("max_t")
	if err != nil {
		t.Fatalf("ListByFunc failed: %v", err)
	}
	if len(sweeps) != 1 {
		t.Fatalf("got %d sweeps, want 1 surviving the run delete", len(sweeps))
	}
	if sweeps[0].RunID != "" {
		t.Errorf("RunID = %q, want empty after ON DELETE SET NULL", sweeps[0].RunID)
	}
}

func TestRetryOnBusyRetriesLockErrors(t *testing.T) {
	calls := 0
	err := retryOnBusy(func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked (5) (SQLITE_BUSY)")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("retryOnBusy = %v, want nil", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryOnBusyPassesThroughOtherErrors(t *testing.T) {
	calls := 0
	wantErr := errors.New("UNIQUE constraint failed")
	err := retryOnBusy(func() error {
		calls++
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("retryOnBusy = %v, want %v", err, wantErr)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
