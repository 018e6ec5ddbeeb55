package report

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/pose.report/internal/security"
	"github.com/banshee-data/pose.report/internal/storage/sqlite"
	"github.com/banshee-data/pose.report/internal/timeutil"
)

// clock feeds the artifact directory timestamps. Tests pin it.
var clock timeutil.Clock = timeutil.RealClock{}

// WriteRunPlots renders PNG diagnostics for a stored run into outputDir:
// per-object radius profiles for rotation and translation, and a cumulative
// coverage curve over regions sorted by radius. Returns the files written.
func WriteRunPlots(outputDir string, run *sqlite.Run, regions []*sqlite.Region) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	var written []string

	rotFile := filepath.Join(outputDir, "rot_radius_profile.png")
	if err := radiusProfilePlot(rotFile,
		fmt.Sprintf("Rotation radius profile (run %s)", run.RunID),
		"Geodesic radius (rad)", regions,
		func(r *sqlite.Region) *float64 { return r.RotRadius },
	); err != nil {
		return written, fmt.Errorf("rotation radius plot: %w", err)
	}
	written = append(written, rotFile)

	transFile := filepath.Join(outputDir, "trans_radius_profile.png")
	if err := radiusProfilePlot(transFile,
		fmt.Sprintf("Translation radius profile (run %s)", run.RunID),
		"Radius (m)", regions,
		func(r *sqlite.Region) *float64 { return r.TransRadius },
	); err != nil {
		return written, fmt.Errorf("translation radius plot: %w", err)
	}
	written = append(written, transFile)

	coverageFile := filepath.Join(outputDir, "coverage_curve.png")
	if err := coverageCurvePlot(coverageFile, run, regions); err != nil {
		return written, fmt.Errorf("coverage curve plot: %w", err)
	}
	written = append(written, coverageFile)

	return written, nil
}

// WriteSweepPlot renders target vs. empirical miscoverage over an epsilon
// grid as a PNG and returns the file written.
func WriteSweepPlot(outputDir, nonconformityFunc string, sweeps []*sqlite.Sweep) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}

	ordered := make([]*sqlite.Sweep, len(sweeps))
	copy(ordered, sweeps)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Epsilon < ordered[j].Epsilon })

	targetPts := make(plotter.XYs, 0, len(ordered))
	empiricalPts := make(plotter.XYs, 0, len(ordered))
	for _, s := range ordered {
		targetPts = append(targetPts, plotter.XY{X: s.Epsilon, Y: s.Epsilon})
		empiricalPts = append(empiricalPts, plotter.XY{X: s.Epsilon, Y: s.Miscoverage})
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Miscoverage vs. epsilon (%s)", nonconformityFunc)
	p.X.Label.Text = "Target epsilon"
	p.Y.Label.Text = "Miscoverage"

	colors := generateColors(2)

	targetLine, err := plotter.NewLine(targetPts)
	if err != nil {
		return "", err
	}
	targetLine.Color = colors[0]
	targetLine.Width = vg.Points(1)
	p.Add(targetLine)
	p.Legend.Add("target", targetLine)

	empiricalLine, err := plotter.NewLine(empiricalPts)
	if err != nil {
		return "", err
	}
	empiricalLine.Color = colors[1]
	empiricalLine.Width = vg.Points(1)
	p.Add(empiricalLine)
	p.Legend.Add("empirical", empiricalLine)

	p.Legend.Top = true
	p.Legend.Left = true
	p.Legend.XOffs = 10
	p.Legend.YOffs = -10

	file := filepath.Join(outputDir, "epsilon_sweep.png")
	if err := p.Save(10*vg.Inch, 6*vg.Inch, file); err != nil {
		return "", fmt.Errorf("save sweep plot: %w", err)
	}
	return file, nil
}

// radiusProfilePlot draws one line per object id: that object's certified
// radii sorted ascending, x = rank within the object. Flat lines mean the
// search produces stable regions; long tails flag hard samples.
func radiusProfilePlot(file, title, yLabel string, regions []*sqlite.Region, pick func(*sqlite.Region) *float64) error {
	byObject := make(map[int][]float64)
	for _, region := range regions {
		if !region.Certified {
			continue
		}
		if radius := pick(region); radius != nil {
			byObject[region.ObjectID] = append(byObject[region.ObjectID], *radius)
		}
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Certified sample (sorted by radius)"
	p.Y.Label.Text = yLabel

	var objectIDs []int
	for id := range byObject {
		objectIDs = append(objectIDs, id)
	}
	sort.Ints(objectIDs)

	colors := generateColors(len(objectIDs))

	for i, id := range objectIDs {
		radii := byObject[id]
		sort.Float64s(radii)

		pts := make(plotter.XYs, 0, len(radii))
		for rank, radius := range radii {
			pts = append(pts, plotter.XY{X: float64(rank + 1), Y: radius})
		}

		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("obj %d", id), line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(10*vg.Inch, 6*vg.Inch, file); err != nil {
		return fmt.Errorf("save radius profile: %w", err)
	}
	return nil
}

// coverageCurvePlot draws cumulative ground-truth coverage over certified
// regions sorted by radius. A calibrated run holds coverage near 1-epsilon
// even among the smallest regions.
func coverageCurvePlot(file string, run *sqlite.Run, regions []*sqlite.Region) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Cumulative GT coverage (run %s)", run.RunID)
	p.X.Label.Text = "Certified samples (sorted by radius)"
	p.Y.Label.Text = "Coverage fraction"
	p.Y.Min = 0
	p.Y.Max = 1.05

	colors := generateColors(2)

	rotPts := cumulativeCoverage(regions,
		func(r *sqlite.Region) *float64 { return r.RotRadius },
		func(r *sqlite.Region) *bool { return r.RotCovered },
	)
	if len(rotPts) > 0 {
		line, err := plotter.NewLine(rotPts)
		if err != nil {
			return err
		}
		line.Color = colors[0]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add("rotation", line)
	}

	transPts := cumulativeCoverage(regions,
		func(r *sqlite.Region) *float64 { return r.TransRadius },
		func(r *sqlite.Region) *bool { return r.TransCovered },
	)
	if len(transPts) > 0 {
		line, err := plotter.NewLine(transPts)
		if err != nil {
			return err
		}
		line.Color = colors[1]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add("translation", line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(10*vg.Inch, 6*vg.Inch, file); err != nil {
		return fmt.Errorf("save coverage curve: %w", err)
	}
	return nil
}

// cumulativeCoverage sorts certified regions by radius and returns, for each
// prefix, the fraction whose ball contains the ground truth.
func cumulativeCoverage(regions []*sqlite.Region, pickRadius func(*sqlite.Region) *float64, pickCovered func(*sqlite.Region) *bool) plotter.XYs {
	type entry struct {
		radius  float64
		covered bool
	}
	var entries []entry
	for _, region := range regions {
		if !region.Certified {
			continue
		}
		radius := pickRadius(region)
		covered := pickCovered(region)
		if radius == nil || covered == nil {
			continue
		}
		entries = append(entries, entry{radius: *radius, covered: *covered})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].radius < entries[j].radius })

	pts := make(plotter.XYs, 0, len(entries))
	covered := 0
	for i, e := range entries {
		if e.covered {
			covered++
		}
		pts = append(pts, plotter.XY{X: float64(i + 1), Y: float64(covered) / float64(i+1)})
	}
	return pts
}

// generateColors creates a palette of distinct colors for plot lines.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}

	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64

	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}

	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	if t < 1.0/6.0 {
		return p + (q-p)*6*t
	}
	if t < 1.0/2.0 {
		return q
	}
	if t < 2.0/3.0 {
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}

// FormatTimestamp generates a timestamp string for directory naming.
func FormatTimestamp(t time.Time) string {
	return t.Format("20060102_150405")
}

// MakeReportOutputDir builds a timestamped output directory for run
// artifacts: <baseDir>/<runID>/<timestamp>, or <baseDir>/sweep_<timestamp>
// when no run id is involved. Run ids can arrive over the API, so they
// are sanitized before becoming a path component.
func MakeReportOutputDir(baseDir, runID string) string {
	ts := FormatTimestamp(clock.Now())
	if runID != "" {
		return filepath.Join(baseDir, security.SanitizeFilename(runID), ts)
	}
	return filepath.Join(baseDir, "sweep_"+ts)
}
