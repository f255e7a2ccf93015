package main

import (
	"fmt"
	"image/color"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// newTrajectoryPlot lays the ground-truth, dead-reckoned and filtered
// XY paths of a replay run on one set of axes as connected lines
// rather than scatter points, since a trajectory (unlike the teacher
// library's independent model/measurement/filter samples) is an
// ordered path through time. It fails if any matrix is nil or has
// fewer than 2 columns.
func newTrajectoryPlot(truth, deadReck, filtered *mat.Dense) (*plot.Plot, error) {
	if truth == nil || deadReck == nil || filtered == nil {
		return nil, fmt.Errorf("invalid trajectory data: nil matrix")
	}

	_, ct := truth.Dims()
	_, cd := deadReck.Dims()
	_, cf := filtered.Dims()
	if ct < 2 || cd < 2 || cf < 2 {
		return nil, fmt.Errorf("invalid trajectory data: need at least 2 columns")
	}

	p := plot.New()
	p.Title.Text = "LIO replay"
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"

	legend := plot.NewLegend()
	legend.Top = true
	p.Legend = legend

	truthLine, err := plotter.NewLine(pathPoints(truth))
	if err != nil {
		return nil, err
	}
	truthLine.Color = color.RGBA{R: 255, B: 128, A: 255}
	p.Add(truthLine)
	p.Legend.Add("ground truth", truthLine)

	drLine, err := plotter.NewLine(pathPoints(deadReck))
	if err != nil {
		return nil, err
	}
	drLine.Color = color.RGBA{G: 200, A: 128}
	drLine.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(drLine)
	p.Legend.Add("dead-reckoned", drLine)

	filteredLine, err := plotter.NewLine(pathPoints(filtered))
	if err != nil {
		return nil, fmt.Errorf("failed to create filtered path line: %v", err)
	}
	filteredLine.Color = color.RGBA{R: 60, G: 60, B: 60, A: 255}
	p.Add(filteredLine)
	p.Legend.Add("lio.Core estimate", filteredLine)

	return p, nil
}

func pathPoints(m *mat.Dense) plotter.XYs {
	r, _ := m.Dims()
	pts := make(plotter.XYs, r)
	for i := 0; i < r; i++ {
		pts[i].X = m.At(i, 0)
		pts[i].Y = m.At(i, 1)
	}
	return pts
}
