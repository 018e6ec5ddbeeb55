package parallel

import (
	"github.com/banshee-data/pose.report/internal/pose"
)

// Backend computes the batched kernels used by scoring and closure search.
// All kernels are total functions of their inputs: implementations must not
// fail, and must produce identical values regardless of how they partition
// the work.
type Backend interface {
	// Name identifies the backend in logs and run metadata.
	Name() string

	// GeodesicGrid fills dst with the pairwise angular distances between
	// rows and cols: dst[i*len(cols)+j] = geodesic(rows[i], cols[j]).
	// dst must have length len(rows)*len(cols).
	GeodesicGrid(dst []float64, rows, cols []pose.Rotation)

	// EuclideanGrid fills dst with the pairwise Euclidean distances between
	// rows and cols: dst[i*len(cols)+j] = |rows[i] - cols[j]|.
	// dst must have length len(rows)*len(cols).
	EuclideanGrid(dst []float64, rows, cols []pose.Vec3)

	// PerturbRotations returns base pre-rotated by angle about each axis:
	// out[k] = FromAxisAngle(axes[k], angle) * base.
	PerturbRotations(base pose.Rotation, axes []pose.Vec3, angle float64) []pose.Rotation

	// PerturbTranslations returns base stepped by dist along each direction:
	// out[k] = base + dirs[k]*dist.
	PerturbTranslations(base pose.Vec3, dirs []pose.Vec3, dist float64) []pose.Vec3
}
