package report

import (
	"fmt"
	"math"
	"path/filepath"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/signalworks/gridsweep/internal/confidence"
	"github.com/signalworks/gridsweep/internal/engine"
)

// metricPoint is one section's contribution to a metric curve.
type metricPoint struct {
	x, y, hw float64
}

// PlotMetric renders one metric against one swept dimension as a PNG: the
// running estimate per section with the confidence half-width as error bars.
// Sections without a numeric value for the dimension, and failed sections,
// are skipped. Only the first metric element is plotted.
func PlotMetric(res *engine.GridResult, dim, metric, outputDir string) (string, error) {
	var pts []metricPoint
	var scale confidence.Scale

	for _, s := range res.Sections {
		if s.Status == engine.SectionFailed {
			continue
		}
		x, ok := toFloat(s.Params[dim])
		if !ok {
			continue
		}
		for _, ev := range s.Evaluators {
			if ev.Name != metric || len(ev.Estimates) == 0 {
				continue
			}
			scale = ev.Scale
			est := ev.Estimates[0]
			if est.Count == 0 {
				continue
			}
			pts = append(pts, metricPoint{x: x, y: est.Mean, hw: est.HalfWidth})
		}
	}
	if len(pts) == 0 {
		return "", fmt.Errorf("no data for metric %q over dimension %q", metric, dim)
	}
	sort.Slice(pts, func(i, j int) bool { return pts[i].x < pts[j].x })

	p := plot.New()
	p.Title.Text = metric
	p.X.Label.Text = dim
	p.Y.Label.Text = metric
	p.Add(plotter.NewGrid())

	if scale == confidence.ScaleLog && allPositive(pts) {
		p.Y.Scale = plot.LogScale{}
		p.Y.Tick.Marker = plot.LogTicks{Prec: -1}
	}

	xys := make(plotter.XYs, len(pts))
	yerrs := make(plotter.YErrors, len(pts))
	for i, pt := range pts {
		xys[i] = plotter.XY{X: pt.x, Y: pt.y}
		lo, hi := errorBounds(pt, scale)
		yerrs[i] = struct{ Low, High float64 }{Low: lo, High: hi}
	}

	line, points, err := plotter.NewLinePoints(xys)
	if err != nil {
		return "", err
	}
	line.Width = vg.Points(1)
	p.Add(line, points)
	p.Legend.Add(metric, line, points)

	bars, err := plotter.NewYErrorBars(struct {
		plotter.XYer
		plotter.YErrorer
	}{xys, yerrs})
	if err != nil {
		return "", err
	}
	p.Add(bars)

	file := filepath.Join(outputDir, fmt.Sprintf("%s_vs_%s.png", metric, dim))
	if err := p.Save(8*vg.Inch, 6*vg.Inch, file); err != nil {
		return "", fmt.Errorf("save plot: %w", err)
	}
	return file, nil
}

// errorBounds converts a half-width into plot error bar offsets. On the log
// scale the half-width is in decades, so the bounds are multiplicative, and
// the lower bound is clamped to keep the point on a positive axis.
func errorBounds(pt metricPoint, scale confidence.Scale) (low, high float64) {
	if scale != confidence.ScaleLog {
		return pt.hw, pt.hw
	}
	factor := math.Pow(10, pt.hw)
	if pt.y <= 0 || factor <= 0 {
		return 0, 0
	}
	return pt.y - pt.y/factor, pt.y*factor - pt.y
}

func allPositive(pts []metricPoint) bool {
	for _, p := range pts {
		if p.y <= 0 {
			return false
		}
	}
	return true
}

// toFloat converts a sweep parameter value to a plottable float.
func toFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	}
	return 0, false
}
