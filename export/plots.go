package export

import (
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/tieravm/aggregate"
	"github.com/YuminosukeSato/tieravm/pkg/errors"
)

// Chart file names
const (
	DepthSearchPlot       = "depth_search.png"
	ActualVsPredictedPlot = "actual_vs_predicted.png"
)

// WritePlots renders the depth-search and actual-vs-predicted charts into dir.
func WritePlots(dir string, res *aggregate.Result) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create output dir %s", dir)
	}

	var paths []string
	p, err := depthSearchPlot(res)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, DepthSearchPlot)
	if err := p.Save(8*vg.Inch, 6*vg.Inch, path); err != nil {
		return nil, errors.Wrapf(err, "save %s", path)
	}
	paths = append(paths, path)

	p, err = actualVsPredictedPlot(res)
	if err != nil {
		return paths, err
	}
	path = filepath.Join(dir, ActualVsPredictedPlot)
	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return paths, errors.Wrapf(err, "save %s", path)
	}
	return append(paths, path), nil
}

// depthSearchPlot draws one MAPE-vs-depth line per tier.
func depthSearchPlot(res *aggregate.Result) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Depth search"
	p.X.Label.Text = "max depth"
	p.Y.Label.Text = "MAPE (%)"
	p.Add(plotter.NewGrid())

	for i, tm := range res.TierMetrics {
		var pts plotter.XYs
		for _, d := range res.DepthTrace {
			if d.Tier == tm.Tier {
				pts = append(pts, plotter.XY{X: float64(d.Depth), Y: d.MAPE})
			}
		}
		if len(pts) == 0 {
			continue
		}
		line, points, err := plotter.NewLinePoints(pts)
		if err != nil {
			return nil, errors.Wrapf(err, "depth line for %s", tm.Tier)
		}
		c := plotutil.Color(i)
		line.Color = c
		points.Color = c
		points.Shape = plotutil.Shape(i)
		points.Radius = vg.Points(3)
		p.Add(line, points)
		p.Legend.Add(tm.Tier, line, points)
	}
	p.Legend.Top = true
	return p, nil
}

// actualVsPredictedPlot scatters pooled held-out predictions against a y=x
// reference line.
func actualVsPredictedPlot(res *aggregate.Result) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Actual vs predicted"
	p.X.Label.Text = "actual price"
	p.Y.Label.Text = "predicted price"
	p.Add(plotter.NewGrid())

	if len(res.Predictions) == 0 {
		return p, nil
	}

	pts := make(plotter.XYs, len(res.Predictions))
	hi := 0.0
	for i, pr := range res.Predictions {
		pts[i] = plotter.XY{X: pr.Actual, Y: pr.Predicted}
		hi = max(hi, pr.Actual, pr.Predicted)
	}
	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, errors.Wrap(err, "prediction scatter")
	}
	scatter.GlyphStyle.Color = plotutil.Color(0)
	scatter.GlyphStyle.Radius = vg.Points(1.5)

	ref, err := plotter.NewLine(plotter.XYs{{X: 0, Y: 0}, {X: hi, Y: hi}})
	if err != nil {
		return nil, errors.Wrap(err, "reference line")
	}
	ref.Color = plotutil.Color(1)
	ref.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}

	p.Add(scatter, ref)
	p.Legend.Add("held-out", scatter)
	p.Legend.Add("y = x", ref)
	p.Legend.Top = true
	p.Legend.Left = true
	return p, nil
}
