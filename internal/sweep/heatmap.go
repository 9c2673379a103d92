package sweep

import (
	"fmt"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// scoreGrid adapts the sweep result to plotter.GridXYZ: columns are window
// values, rows are burst values, Z is the selection score. Cells absent from
// the result are NaN and left blank by the heat map.
type scoreGrid struct {
	bursts  []float64
	windows []float64
	scores  [][]float64 // [burst][window]
}

func newScoreGrid(grid Grid, cells []CellResult) *scoreGrid {
	sg := &scoreGrid{bursts: grid.BurstValues, windows: grid.WindowValues}
	sg.scores = make([][]float64, len(sg.bursts))
	for i := range sg.scores {
		sg.scores[i] = make([]float64, len(sg.windows))
		for j := range sg.scores[i] {
			sg.scores[i][j] = math.NaN()
		}
	}
	for _, c := range cells {
		i := indexOf(sg.bursts, c.Burst)
		j := indexOf(sg.windows, c.Window)
		if i >= 0 && j >= 0 {
			sg.scores[i][j] = c.SelectionScore()
		}
	}
	return sg
}

func indexOf(vals []float64, v float64) int {
	for i, x := range vals {
		if x == v {
			return i
		}
	}
	return -1
}

func (g *scoreGrid) Dims() (c, r int)   { return len(g.windows), len(g.bursts) }
func (g *scoreGrid) Z(c, r int) float64 { return g.scores[r][c] }
func (g *scoreGrid) X(c int) float64    { return float64(c) }
func (g *scoreGrid) Y(r int) float64    { return float64(r) }

// SaveHeatmap renders the selection score surface as a PNG so a quick glance
// shows where the good parameter region sits.
func SaveHeatmap(grid Grid, cells []CellResult, path string) error {
	if len(grid.BurstValues) == 0 || len(grid.WindowValues) == 0 {
		return fmt.Errorf("empty parameter grid")
	}
	sg := newScoreGrid(grid, cells)
	hm := plotter.NewHeatMap(sg, palette.Heat(16, 1))

	p := plot.New()
	p.Title.Text = "Sweep selection score"
	p.X.Label.Text = "window criterion"
	p.Y.Label.Text = "burst criterion"

	xTicks := make([]plot.Tick, len(grid.WindowValues))
	for i, w := range grid.WindowValues {
		label := fmt.Sprintf("%g", w)
		if w < 0 {
			label = "disabled"
		}
		xTicks[i] = plot.Tick{Value: float64(i), Label: label}
	}
	yTicks := make([]plot.Tick, len(grid.BurstValues))
	for i, b := range grid.BurstValues {
		yTicks[i] = plot.Tick{Value: float64(i), Label: fmt.Sprintf("%g", b)}
	}
	p.X.Tick.Marker = plot.ConstantTicks(xTicks)
	p.Y.Tick.Marker = plot.ConstantTicks(yTicks)

	p.Add(hm)
	if err := p.Save(8*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save heatmap: %w", err)
	}
	return nil
}
