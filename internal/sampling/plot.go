package sampling

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// DefaultBins is the histogram bin count used by the charts.
const DefaultBins = 20

// EchartsAssetsHost serves the echarts JS bundle for rendered pages.
var EchartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// Histogram bins x into n equal-width bins. It returns the bin edges (n+1)
// and the counts (n). A constant column gets a unit-wide range around it.
func Histogram(x []float64, n int) (edges, counts []float64) {
	if n <= 0 {
		n = DefaultBins
	}
	if len(x) == 0 {
		return nil, nil
	}
	sorted := make([]float64, len(x))
	copy(sorted, x)
	sort.Float64s(sorted)

	lo, hi := sorted[0], sorted[len(sorted)-1]
	if hi == lo {
		lo, hi = lo-0.5, hi+0.5
	}
	edges = floats.Span(make([]float64, n+1), lo, hi)
	// stat.Histogram treats the last edge as exclusive.
	upper := make([]float64, n+1)
	copy(upper, edges)
	upper[n] = math.Nextafter(hi, math.Inf(1))

	counts = stat.Histogram(nil, upper, sorted, nil)
	return edges, counts
}

// WriteHistogramPNG renders one field as a PNG histogram.
func WriteHistogramPNG(w io.Writer, samples []Sample, field string) error {
	if _, ok := (Sample{}).Value(field); !ok {
		return fmt.Errorf("unknown sample field %q", field)
	}
	values := plotter.Values(Column(samples, field))
	if len(values) == 0 {
		return fmt.Errorf("no samples to plot")
	}

	p := plot.New()
	p.Title.Text = field
	p.X.Label.Text = fieldUnit(field)
	p.Y.Label.Text = "count"

	h, err := plotter.NewHist(values, DefaultBins)
	if err != nil {
		return fmt.Errorf("failed to build histogram: %w", err)
	}
	p.Add(h)

	wt, err := p.WriterTo(6*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("failed to render plot: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write plot: %w", err)
	}
	return nil
}

// WriteChartHTML renders a page with one bar histogram per field.
func WriteChartHTML(w io.Writer, samples []Sample, title string) error {
	page := components.NewPage()
	page.SetAssetsHost(EchartsAssetsHost)
	page.PageTitle = title

	for _, field := range Fields {
		edges, counts := Histogram(Column(samples, field), DefaultBins)
		labels := make([]string, len(counts))
		data := make([]opts.BarData, len(counts))
		for i, c := range counts {
			labels[i] = fmt.Sprintf("%.2f", (edges[i]+edges[i+1])/2)
			data[i] = opts.BarData{Value: c}
		}

		bar := charts.NewBar()
		bar.SetGlobalOptions(
			charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px", AssetsHost: EchartsAssetsHost}),
			charts.WithTitleOpts(opts.Title{Title: field, Subtitle: fmt.Sprintf("n=%d (%s)", len(samples), fieldUnit(field))}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		)
		bar.SetXAxis(labels).AddSeries(field, data)
		page.AddCharts(bar)
	}

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return fmt.Errorf("render error: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func fieldUnit(field string) string {
	if IsAngle(field) {
		return "deg"
	}
	return "mm"
}
