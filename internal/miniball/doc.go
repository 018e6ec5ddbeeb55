// Package miniball computes minimal enclosing balls for uncertainty
// regions.
//
// Responsibilities: the exact Welzl move-to-front ball in R3 for
// translation regions, and the Badoiu-Clarkson geodesic 1-center
// approximation on SO(3) for rotation regions.
// Key types: Ball, RotationBall.
//
// Dependency rule: miniball may depend on pose only. No SQL or I/O code
// is allowed in this package.
package miniball
