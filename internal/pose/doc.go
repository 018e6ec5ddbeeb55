// Package pose owns the Layer 1 (Primitives) rigid-body math.
//
// Responsibilities: rotation-matrix algebra (composition, geodesic distance,
// axis-angle and quaternion conversions, SVD re-orthonormalization),
// weighted rotation averaging, and translation vectors.
// Key types: Rotation, Vec3.
//
// Dependency rule: pose is a leaf package and may not depend on any other
// internal package. No SQL or I/O code is allowed in this package.
package pose
