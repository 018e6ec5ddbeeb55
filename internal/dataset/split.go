package dataset

import (
	"fmt"
	"math/rand"
)

// Split partitions observations into a calibration subset drawn without
// replacement and a test subset holding everything else. The draw is a
// seeded permutation, so one seed always produces one partition. The
// test subset keeps the original dataset order.
func Split(seed int64, obs []Observation, calibrationSize int) (calibration, test []Observation, err error) {
	if calibrationSize <= 0 {
		return nil, nil, fmt.Errorf("%w: calibration size %d must be positive", ErrInvalidInput, calibrationSize)
	}
	if calibrationSize > len(obs) {
		return nil, nil, fmt.Errorf("%w: calibration size %d exceeds dataset size %d",
			ErrInvalidInput, calibrationSize, len(obs))
	}

	perm := rand.New(rand.NewSource(seed)).Perm(len(obs))
	inCalibration := make([]bool, len(obs))
	calibration = make([]Observation, 0, calibrationSize)
	for _, idx := range perm[:calibrationSize] {
		calibration = append(calibration, obs[idx])
		inCalibration[idx] = true
	}
	test = make([]Observation, 0, len(obs)-calibrationSize)
	for i, o := range obs {
		if !inCalibration[i] {
			test = append(test, o)
		}
	}
	return calibration, test, nil
}
