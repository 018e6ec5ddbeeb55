package main

import (
	"encoding/json"
	"testing"

	"github.com/banshee-data/pose.report/internal/db"
	"github.com/banshee-data/pose.report/internal/pipeline"
	"github.com/banshee-data/pose.report/internal/storage/sqlite"
	"github.com/google/go-cmp/cmp"
)

func ptrF(v float64) *float64 { return &v }
func ptrB(v bool) *bool       { return &v }

func TestParseEpsilonList(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		want    []float64
		wantErr bool
	}{
		{"single", "0.1", []float64{0.1}, false},
		{"list", "0.02,0.05,0.1", []float64{0.02, 0.05, 0.1}, false},
		{"spaces and trailing comma", " 0.02 , 0.05 ,", []float64{0.02, 0.05}, false},
		{"empty", "", nil, true},
		{"only commas", ",,", nil, true},
		{"not a number", "0.02,abc", nil, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseEpsilonList(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("parseEpsilonList(%q) succeeded, want error", tc.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseEpsilonList(%q): %v", tc.input, err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("parseEpsilonList(%q) mismatch (-want +got):\n%s", tc.input, diff)
			}
		})
	}
}

func TestRegionRecordingEndToEnd(t *testing.T) {
	testingDir := t.TempDir()

	// Print out the testing directory for debugging purposes
	t.Logf("Testing directory: %s", testingDir)

	// Initialise the database through the real migration path
	d, err := db.NewDB(testingDir + "/test_pose_report.db")
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	defer func() {
		if err := d.Close(); err != nil {
			t.Errorf("Failed to close test database: %v", err)
		}
	}()

	manager := pipeline.NewRunManager(d.DB)
	runID, err := manager.StartRun(pipeline.RunParams{
		Dataset:           "lmo",
		NonconformityFunc: "maxnorm",
		Epsilon:           0.1,
		Seed:              42,
	})
	if err != nil {
		t.Fatalf("Failed to start run: %v", err)
	}

	// Record a region the way the predictor does during a run. Every
	// field is pinned so the retrieved row can be compared whole.
	region := &sqlite.Region{
		RegionID:      "region-fixture-001",
		SampleID:      3,
		ObjectID:      5,
		ImageID:       17,
		Certified:     true,
		FeasibleCount: 2,
		RotCenter:     []float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
		RotRadius:     ptrF(0.12),
		TransCenter:   []float64{0.25, -0.5, 1.75},
		TransRadius:   ptrF(0.04),
		RotError:      ptrF(0.08),
		TransError:    ptrF(0.02),
		RotCovered:    ptrB(true),
		TransCovered:  ptrB(true),
		ElapsedMs:     125.5,
		CreatedAt:     1756100000000000000,
		FeasiblePosesJSON: json.RawMessage(
			`[{"r":[1,0,0,0,1,0,0,0,1],"t":[0.25,-0.5,1.75],"score":0.91},` +
				`{"r":[0,-1,0,1,0,0,0,0,1],"t":[0.24,-0.49,1.76],"score":0.87}]`),
	}
	if !manager.RecordRegion(region) {
		t.Fatal("Failed to record region")
	}

	// Retrieve the regions from the database using the region store
	regions, err := sqlite.NewRegionStore(d.DB).ListByRun(runID)
	if err != nil {
		t.Fatalf("Failed to retrieve regions from database: %v", err)
	}
	if len(regions) != 1 {
		t.Fatal("Expected only one region in the database")
	}

	// set expectations on the region
	expectedRegion := &sqlite.Region{
		RegionID:      "region-fixture-001",
		RunID:         runID,
		SampleID:      3,
		ObjectID:      5,
		ImageID:       17,
		Certified:     true,
		FeasibleCount: 2,
		RotCenter:     []float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
		RotRadius:     ptrF(0.12),
		TransCenter:   []float64{0.25, -0.5, 1.75},
		TransRadius:   ptrF(0.04),
		RotError:      ptrF(0.08),
		TransError:    ptrF(0.02),
		RotCovered:    ptrB(true),
		TransCovered:  ptrB(true),
		ElapsedMs:     125.5,
		CreatedAt:     1756100000000000000,
		FeasiblePosesJSON: json.RawMessage(
			`[{"r":[1,0,0,0,1,0,0,0,1],"t":[0.25,-0.5,1.75],"score":0.91},` +
				`{"r":[0,-1,0,1,0,0,0,0,1],"t":[0.24,-0.49,1.76],"score":0.87}]`),
	}

	// Check if the stored region matches the expected region
	if diff := cmp.Diff(expectedRegion, regions[0]); diff != "" {
		t.Errorf("Region mismatch (-want +got):\n%s", diff)
	}
}
