package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/pose.report/internal/storage/sqlite"
)

// echartsAssetsPrefix points chart pages at the published echarts bundles
// so rendered reports work without a local asset server.
const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// viridis ramp for the visual maps on scatter charts.
var visualMapColors = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

const histogramBins = 20

// RenderRunHTML writes a chart page for one stored run: radius vs. error
// scatters for rotation and translation, plus radius histograms. Uncertified
// regions carry no geometry and are skipped.
func RenderRunHTML(w io.Writer, run *sqlite.Run, regions []*sqlite.Region) error {
	subtitle := fmt.Sprintf("run=%s dataset=%s func=%s eps=%g threshold=%.4g", run.RunID, run.Dataset, run.NonconformityFunc, run.Epsilon, run.Threshold)

	rotScatter := radiusErrorScatter(
		"Rotation radius vs. geodesic error", subtitle,
		"Radius (rad)", "GT error (rad)",
		certifiedPairs(regions, func(r *sqlite.Region) (*float64, *float64) { return r.RotRadius, r.RotError }),
	)
	transScatter := radiusErrorScatter(
		"Translation radius vs. center error", subtitle,
		"Radius (m)", "GT error (m)",
		certifiedPairs(regions, func(r *sqlite.Region) (*float64, *float64) { return r.TransRadius, r.TransError }),
	)

	rotHist := radiusHistogram("Rotation radius distribution", "Radius (rad)", collectRadii(regions, func(r *sqlite.Region) *float64 { return r.RotRadius }))
	transHist := radiusHistogram("Translation radius distribution", "Radius (m)", collectRadii(regions, func(r *sqlite.Region) *float64 { return r.TransRadius }))

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(rotScatter, transScatter, rotHist, transHist)

	if err := page.Render(w); err != nil {
		return fmt.Errorf("render run report: %w", err)
	}
	return nil
}

// RenderSweepHTML writes a chart page for an epsilon sweep: empirical vs.
// target miscoverage, and the calibrated threshold at each epsilon.
func RenderSweepHTML(w io.Writer, nonconformityFunc string, sweeps []*sqlite.Sweep) error {
	ordered := make([]*sqlite.Sweep, len(sweeps))
	copy(ordered, sweeps)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Epsilon < ordered[j].Epsilon })

	var target, empirical []opts.ScatterData
	var labels []string
	var thresholds []opts.BarData
	maxX, maxY := 0.0, 0.0
	for _, s := range ordered {
		target = append(target, opts.ScatterData{Value: []interface{}{s.Epsilon, s.Epsilon}})
		empirical = append(empirical, opts.ScatterData{Value: []interface{}{s.Epsilon, s.Miscoverage}})
		labels = append(labels, fmt.Sprintf("%g", s.Epsilon))
		thresholds = append(thresholds, opts.BarData{Value: s.Threshold})
		if s.Epsilon > maxX {
			maxX = s.Epsilon
		}
		if s.Miscoverage > maxY {
			maxY = s.Miscoverage
		}
		if s.Epsilon > maxY {
			maxY = s.Epsilon
		}
	}

	padX := maxX * 1.05
	if padX == 0 {
		padX = 1.0
	}
	padY := maxY * 1.05
	if padY == 0 {
		padY = 1.0
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Epsilon Sweep", Theme: "dark", Width: "900px", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Empirical vs. target miscoverage", Subtitle: fmt.Sprintf("func=%s points=%d", nonconformityFunc, len(ordered))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: padX, Name: "Target epsilon", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: padY, Name: "Miscoverage", NameLocation: "middle", NameGap: 30}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	scatter.AddSeries("target", target,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#31688e"}),
	)
	scatter.AddSeries("empirical", empirical,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#fde725"}),
	)

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "900px", Height: "400px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Calibrated threshold by epsilon", Subtitle: fmt.Sprintf("func=%s", nonconformityFunc)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(labels).
		AddSeries("threshold", thresholds,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(scatter, bar)

	if err := page.Render(w); err != nil {
		return fmt.Errorf("render sweep report: %w", err)
	}
	return nil
}

// scatterPoint is one certified sample: radius, error, and feasible count
// for the visual map dimension.
type scatterPoint struct {
	radius   float64
	err      float64
	feasible int
}

func certifiedPairs(regions []*sqlite.Region, pick func(*sqlite.Region) (*float64, *float64)) []scatterPoint {
	var points []scatterPoint
	for _, region := range regions {
		if !region.Certified {
			continue
		}
		radius, gtErr := pick(region)
		if radius == nil || gtErr == nil {
			continue
		}
		points = append(points, scatterPoint{radius: *radius, err: *gtErr, feasible: region.FeasibleCount})
	}
	return points
}

func collectRadii(regions []*sqlite.Region, pick func(*sqlite.Region) *float64) []float64 {
	var values []float64
	for _, region := range regions {
		if !region.Certified {
			continue
		}
		if radius := pick(region); radius != nil {
			values = append(values, *radius)
		}
	}
	return values
}

func radiusErrorScatter(title, subtitle, xName, yName string, points []scatterPoint) *charts.Scatter {
	data := make([]opts.ScatterData, 0, len(points))
	maxX, maxY, maxFeasible := 0.0, 0.0, 0.0
	for _, p := range points {
		if p.radius > maxX {
			maxX = p.radius
		}
		if p.err > maxY {
			maxY = p.err
		}
		if float64(p.feasible) > maxFeasible {
			maxFeasible = float64(p.feasible)
		}
		data = append(data, opts.ScatterData{Value: []interface{}{p.radius, p.err, float64(p.feasible)}})
	}

	// Small padding so points at the edges stay visible.
	padX := maxX * 1.05
	if padX == 0 {
		padX = 1.0
	}
	padY := maxY * 1.05
	if padY == 0 {
		padY = 1.0
	}
	if maxFeasible == 0 {
		maxFeasible = 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Pose Regions", Theme: "dark", Width: "900px", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: padX, Name: xName, NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: padY, Name: yName, NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxFeasible),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: visualMapColors},
		}),
	)
	scatter.AddSeries("certified", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	return scatter
}

func radiusHistogram(title, xName string, values []float64) *charts.Bar {
	labels, counts := histogram(values, histogramBins)

	data := make([]opts.BarData, 0, len(counts))
	for _, c := range counts {
		data = append(data, opts.BarData{Value: c})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "900px", Height: "400px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("n=%d", len(values))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: xName, NameLocation: "middle", NameGap: 25}),
	)
	bar.SetXAxis(labels).AddSeries("count", data)
	return bar
}

// histogram buckets values into evenly spaced bins between min and max and
// labels each bin by its center. A constant column collapses to one bin.
func histogram(values []float64, bins int) ([]string, []int) {
	if len(values) == 0 {
		return nil, nil
	}

	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if max == min {
		return []string{fmt.Sprintf("%.3g", min)}, []int{len(values)}
	}

	width := (max - min) / float64(bins)
	counts := make([]int, bins)
	for _, v := range values {
		idx := int((v - min) / width)
		if idx >= bins {
			idx = bins - 1
		}
		counts[idx]++
	}

	labels := make([]string, bins)
	for i := range labels {
		labels[i] = fmt.Sprintf("%.3g", min+(float64(i)+0.5)*width)
	}
	return labels, counts
}
