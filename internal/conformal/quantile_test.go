package conformal

import (
	"errors"
	"math/rand"
	"testing"
)

func TestQuantileKnownRanks(t *testing.T) {
	scores := make([]float64, 10)
	for i := range scores {
		scores[i] = float64(i + 1)
	}

	cases := []struct {
		epsilon float64
		want    float64
	}{
		// k = ceil((1-eps)*11)
		{0.5, 6},
		{0.2, 9},
		{0.1, 10},
	}
	for _, tc := range cases {
		got, err := Quantile(scores, tc.epsilon)
		if err != nil {
			t.Errorf("Quantile(eps=%v): %v", tc.epsilon, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Quantile(eps=%v) = %v, want %v", tc.epsilon, got, tc.want)
		}
	}
}

func TestQuantileUnsortedInput(t *testing.T) {
	scores := make([]float64, 19)
	for i := range scores {
		scores[i] = float64(i + 1)
	}
	rand.New(rand.NewSource(3)).Shuffle(len(scores), func(i, j int) {
		scores[i], scores[j] = scores[j], scores[i]
	})
	before := append([]float64{}, scores...)

	// k = ceil(0.9*20) = 18
	got, err := Quantile(scores, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	if got != 18 {
		t.Errorf("Quantile = %v, want 18", got)
	}
	for i := range scores {
		if scores[i] != before[i] {
			t.Fatal("Quantile mutated its input")
		}
	}
}

func TestQuantileMonotoneInEpsilon(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	scores := make([]float64, 200)
	for i := range scores {
		scores[i] = rng.ExpFloat64()
	}

	// Loosening epsilon can only lower the rank, never raise it.
	prev := -1.0
	for _, eps := range []float64{0.02, 0.05, 0.1, 0.2, 0.4, 0.8} {
		got, err := Quantile(scores, eps)
		if err != nil {
			t.Fatalf("Quantile(eps=%v): %v", eps, err)
		}
		if prev >= 0 && got > prev {
			t.Errorf("Quantile(eps=%v) = %v, above threshold %v at a tighter epsilon", eps, got, prev)
		}
		prev = got
	}
}

func TestQuantileInsufficientData(t *testing.T) {
	scores := []float64{1, 2, 3}
	if _, err := Quantile(scores, 0.1); !errors.Is(err, ErrInsufficientCalibrationData) {
		t.Errorf("error = %v, want ErrInsufficientCalibrationData", err)
	}
	if _, err := Quantile(nil, 0.5); !errors.Is(err, ErrInsufficientCalibrationData) {
		t.Errorf("empty scores error = %v, want ErrInsufficientCalibrationData", err)
	}
}

func TestQuantileEpsilonRange(t *testing.T) {
	scores := []float64{1, 2, 3, 4, 5}
	for _, eps := range []float64{0, 1, -0.3, 1.5} {
		if _, err := Quantile(scores, eps); !errors.Is(err, ErrInvalidConfiguration) {
			t.Errorf("epsilon %v error = %v, want ErrInvalidConfiguration", eps, err)
		}
	}
}

func TestMinCalibrationSize(t *testing.T) {
	// Smallest n admitting a valid rank: ceil((1-eps)*(n+1)) <= n.
	cases := []struct {
		epsilon float64
		want    int
	}{
		{0.5, 1},
		{0.1, 9},
		{0.05, 19},
	}
	for _, tc := range cases {
		if got := minCalibrationSize(tc.epsilon); got != tc.want {
			t.Errorf("minCalibrationSize(%v) = %d, want %d", tc.epsilon, got, tc.want)
		}
	}
}
