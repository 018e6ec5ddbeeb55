// Package parallel owns the batched array kernels behind scoring and
// search.
//
// Responsibilities: pairwise geodesic and Euclidean distance grids plus
// batched pose perturbation, behind the Backend interface so the compute
// substrate can be swapped without touching callers. CPU is the reference
// implementation; it fans row blocks out across goroutines.
// Key types: Backend, CPU.
//
// Dependency rule: parallel may depend on pose only. Every kernel is an
// order-independent map or reduction, so implementations are free to
// partition work however they like.
package parallel
