// Package conformal owns the Layer 3 (Calibration) scoring machinery.
//
// Responsibilities: nonconformity scoring functions over pose hypothesis
// sets, the split-conformal calibration quantile, two-pass joint
// rotation/translation calibration, and empirical coverage evaluation of
// a calibrated threshold.
// Key types: Func, Config, Scorer, Calibrator, Threshold, CoverageReport.
//
// Dependency rule: conformal may depend on pose, parallel and dataset.
// No SQL or file I/O code is allowed in this package.
package conformal
