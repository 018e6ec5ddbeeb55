package conformal

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrInsufficientCalibrationData reports a calibration set too small for
// the requested epsilon: the conformal rank lands past the largest score.
var ErrInsufficientCalibrationData = errors.New("insufficient calibration data")

// Quantile returns the split-conformal threshold for the given scores:
// the k-th smallest score with k = ceil((1-epsilon)*(n+1)). The finite
// sample correction (n+1 instead of n) is what buys the coverage
// guarantee, and it is also why small sets can fail: k > n means no score
// is a valid threshold.
func Quantile(scores []float64, epsilon float64) (float64, error) {
	if epsilon <= 0 || epsilon >= 1 || math.IsNaN(epsilon) {
		return 0, fmt.Errorf("%w: epsilon %v outside (0, 1)", ErrInvalidConfiguration, epsilon)
	}
	n := len(scores)
	k := int(math.Ceil((1 - epsilon) * float64(n+1)))
	if k < 1 {
		k = 1
	}
	if k > n {
		return 0, fmt.Errorf("%w: rank %d exceeds %d scores (epsilon %v needs at least %d)",
			ErrInsufficientCalibrationData, k, n, epsilon, minCalibrationSize(epsilon))
	}
	sorted := make([]float64, n)
	copy(sorted, scores)
	sort.Float64s(sorted)
	return sorted[k-1], nil
}

// minCalibrationSize is the smallest n with ceil((1-epsilon)*(n+1)) <= n.
func minCalibrationSize(epsilon float64) int {
	for n := 1; ; n++ {
		if int(math.Ceil((1-epsilon)*float64(n+1))) <= n {
			return n
		}
	}
}
