// Package lossplot draws train and dev loss curves over the evaluated epochs.
package lossplot

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Curve is one named series of losses, one value per sampled epoch.
type Curve struct {
	Name   string
	Values []float64
}

// Save writes the curves against epochs to a PNG, SVG or PDF file, chosen
// by the extension of path.
func Save(path, title string, epochs []int, curves ...Curve) error {
	if len(epochs) == 0 {
		return errors.New("lossplot: nothing to plot")
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "epoch"
	p.Y.Label.Text = "loss"

	var lines []interface{}
	for _, c := range curves {
		if len(c.Values) != len(epochs) {
			return errors.Errorf("lossplot: curve %q has %d values for %d epochs", c.Name, len(c.Values), len(epochs))
		}
		pts := make(plotter.XYs, len(epochs))
		for i, e := range epochs {
			pts[i].X = float64(e)
			pts[i].Y = c.Values[i]
		}
		lines = append(lines, c.Name, pts)
	}
	if err := plotutil.AddLinePoints(p, lines...); err != nil {
		return errors.Wrap(err, "lossplot: add curves")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "lossplot: create %s", dir)
		}
	}
	return errors.Wrap(p.Save(6*vg.Inch, 4*vg.Inch, path), "lossplot: save")
}
