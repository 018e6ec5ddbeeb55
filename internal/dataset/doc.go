// Package dataset owns the Layer 2 (Ingest) data model.
//
// Responsibilities: the Observation and HypothesisSet types, NPY file
// parsing for estimator exports, input validation, hypothesis truncation,
// and the seeded calibration/test split.
// Key types: Observation, HypothesisSet, Source.
//
// Dependency rule: dataset may depend on pose only. No SQL/database code
// is allowed in this package.
package dataset
