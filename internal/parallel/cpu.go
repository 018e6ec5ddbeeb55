package parallel

import (
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/pose.report/internal/pose"
)

// Grids smaller than this are computed inline; goroutine handoff costs more
// than the arithmetic below it.
const parallelThreshold = 4096

// CPU is the reference Backend. Large grids are split into row blocks and
// computed concurrently; each goroutine writes a disjoint slice of dst, so
// no synchronization beyond the final join is required.
type CPU struct {
	workers int
}

// NewCPU returns a CPU backend using the given number of workers.
// workers <= 0 selects GOMAXPROCS.
func NewCPU(workers int) *CPU {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &CPU{workers: workers}
}

// Name implements Backend.
func (c *CPU) Name() string { return "cpu" }

// Workers returns the configured worker count.
func (c *CPU) Workers() int { return c.workers }

// GeodesicGrid implements Backend.
func (c *CPU) GeodesicGrid(dst []float64, rows, cols []pose.Rotation) {
	n := len(cols)
	fill := func(lo, hi int) {
		for i := lo; i < hi; i++ {
			ri := rows[i]
			for j := 0; j < n; j++ {
				dst[i*n+j] = ri.Geodesic(cols[j])
			}
		}
	}
	c.forRows(len(rows), n, fill)
}

// EuclideanGrid implements Backend.
func (c *CPU) EuclideanGrid(dst []float64, rows, cols []pose.Vec3) {
	n := len(cols)
	fill := func(lo, hi int) {
		for i := lo; i < hi; i++ {
			ri := rows[i]
			for j := 0; j < n; j++ {
				dst[i*n+j] = ri.Dist(cols[j])
			}
		}
	}
	c.forRows(len(rows), n, fill)
}

// PerturbRotations implements Backend.
func (c *CPU) PerturbRotations(base pose.Rotation, axes []pose.Vec3, angle float64) []pose.Rotation {
	out := make([]pose.Rotation, len(axes))
	for k, axis := range axes {
		out[k] = pose.FromAxisAngle(axis, angle).Mul(base)
	}
	return out
}

// PerturbTranslations implements Backend.
func (c *CPU) PerturbTranslations(base pose.Vec3, dirs []pose.Vec3, dist float64) []pose.Vec3 {
	out := make([]pose.Vec3, len(dirs))
	for k, dir := range dirs {
		out[k] = base.Add(dir.Scale(dist))
	}
	return out
}

// forRows runs fill over [0, rows) either inline or split into contiguous
// row blocks across the worker pool.
func (c *CPU) forRows(rows, cols int, fill func(lo, hi int)) {
	if rows == 0 || cols == 0 {
		return
	}
	if rows*cols < parallelThreshold || c.workers == 1 {
		fill(0, rows)
		return
	}

	workers := c.workers
	if workers > rows {
		workers = rows
	}
	block := (rows + workers - 1) / workers

	var g errgroup.Group
	for lo := 0; lo < rows; lo += block {
		hi := lo + block
		if hi > rows {
			hi = rows
		}
		lo, hi := lo, hi
		g.Go(func() error {
			fill(lo, hi)
			return nil
		})
	}
	// Workers never return errors; Wait is only the join point.
	_ = g.Wait()
}

// Verify at compile time that *CPU implements Backend.
var _ Backend = (*CPU)(nil)
