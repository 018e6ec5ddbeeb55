// Package closure owns the Layer 4 (Search) feasible-set expansion.
//
// Responsibilities: seeding candidate poses from confidence-weighted
// convex combinations of the hypotheses, and growing the feasible set by
// greedy random-walk trajectories that stay under the calibrated
// nonconformity threshold.
// Key types: Params, Search, FeasibleSet.
//
// Dependency rule: closure may depend on pose, parallel, dataset and
// conformal. No SQL or I/O code is allowed in this package. All
// randomness flows through the caller's seeded source, so a run is
// reproducible from its seed alone.
package closure
