// Package pipeline orchestrates prediction runs: load a dataset, split
// it, calibrate a nonconformity threshold, grow a feasible pose set per
// test observation, wrap each set in minimal enclosing balls, and hand
// the results to storage.
//
// The numeric packages underneath (conformal, closure, miniball) stay
// free of persistence and logging; everything operational lives here.
package pipeline
