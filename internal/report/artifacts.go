package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/pose.report/internal/storage/sqlite"
)

// Artifacts bundles the stored rows needed to render one run.
type Artifacts struct {
	Run     *sqlite.Run
	Regions []*sqlite.Region
	Sweeps  []*sqlite.Sweep
}

// WriteArtifacts renders the full artifact set for a run into outputDir:
// index.html with the chart page, summary.json, the PNG diagnostics, and
// the sweep page when sweep rows exist. Returns the files written, in
// order, including any written before an error.
func WriteArtifacts(outputDir string, a Artifacts) ([]string, error) {
	if a.Run == nil {
		return nil, fmt.Errorf("write artifacts: run is nil")
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	var written []string

	htmlFile := filepath.Join(outputDir, "index.html")
	if err := renderToFile(htmlFile, func(f *os.File) error {
		return RenderRunHTML(f, a.Run, a.Regions)
	}); err != nil {
		return written, err
	}
	written = append(written, htmlFile)

	summary, err := Summarize(a.Run, a.Regions)
	if err != nil {
		return written, fmt.Errorf("summarize run %s: %w", a.Run.RunID, err)
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return written, fmt.Errorf("encode summary: %w", err)
	}
	summaryFile := filepath.Join(outputDir, "summary.json")
	if err := os.WriteFile(summaryFile, data, 0644); err != nil {
		return written, fmt.Errorf("write summary: %w", err)
	}
	written = append(written, summaryFile)

	pngs, err := WriteRunPlots(outputDir, a.Run, a.Regions)
	written = append(written, pngs...)
	if err != nil {
		return written, err
	}

	if len(a.Sweeps) > 0 {
		sweepFile := filepath.Join(outputDir, "sweep.html")
		if err := renderToFile(sweepFile, func(f *os.File) error {
			return RenderSweepHTML(f, a.Run.NonconformityFunc, a.Sweeps)
		}); err != nil {
			return written, err
		}
		written = append(written, sweepFile)

		sweepPNG, err := WriteSweepPlot(outputDir, a.Run.NonconformityFunc, a.Sweeps)
		if err != nil {
			return written, err
		}
		written = append(written, sweepPNG)
	}

	return written, nil
}

// WriteSweepArtifacts renders the sweep page and PNG for one scoring
// function into outputDir, independent of any run.
func WriteSweepArtifacts(outputDir, nonconformityFunc string, sweeps []*sqlite.Sweep) ([]string, error) {
	if len(sweeps) == 0 {
		return nil, fmt.Errorf("write sweep artifacts: no sweep points")
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	var written []string

	sweepFile := filepath.Join(outputDir, "sweep.html")
	if err := renderToFile(sweepFile, func(f *os.File) error {
		return RenderSweepHTML(f, nonconformityFunc, sweeps)
	}); err != nil {
		return written, err
	}
	written = append(written, sweepFile)

	sweepPNG, err := WriteSweepPlot(outputDir, nonconformityFunc, sweeps)
	if err != nil {
		return written, err
	}
	return append(written, sweepPNG), nil
}

func renderToFile(path string, render func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := render(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
