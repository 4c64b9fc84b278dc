package steering

import (
	"image/color"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// EpochStats reports one pass over the training split.
type EpochStats struct {
	Epoch     int
	TrainLoss float64
	// ValidationLoss is NaN when there is no validation split.
	ValidationLoss float64
	Duration       time.Duration
}

// History collects the per-epoch results of a training run. Nothing in it
// feeds back into training.
type History struct {
	TrainSize      int
	ValidationSize int
	Epochs         []EpochStats
}

// Final returns the stats of the last epoch.
func (h History) Final() (EpochStats, bool) {
	if len(h.Epochs) == 0 {
		return EpochStats{}, false
	}
	return h.Epochs[len(h.Epochs)-1], true
}

// PlotHistory writes a PNG with the training loss (blue) and validation loss
// (orange) per epoch.
func PlotHistory(h History, path string) error {
	if len(h.Epochs) == 0 {
		return errors.New("history has no epochs")
	}
	p := plot.New()
	p.Title.Text = "Steering MSE per epoch"
	p.X.Label.Text = "epoch"
	p.Y.Label.Text = "mean squared error"

	trainXY := make(plotter.XYs, 0, len(h.Epochs))
	valXY := make(plotter.XYs, 0, len(h.Epochs))
	for _, e := range h.Epochs {
		if !math.IsNaN(e.TrainLoss) {
			trainXY = append(trainXY, plotter.XY{X: float64(e.Epoch), Y: e.TrainLoss})
		}
		if !math.IsNaN(e.ValidationLoss) {
			valXY = append(valXY, plotter.XY{X: float64(e.Epoch), Y: e.ValidationLoss})
		}
	}

	series := []struct {
		name string
		xys  plotter.XYs
		col  color.RGBA
	}{
		{"training", trainXY, color.RGBA{R: 20, G: 80, B: 200, A: 255}},
		{"validation", valXY, color.RGBA{R: 230, G: 120, B: 20, A: 255}},
	}
	for _, s := range series {
		if len(s.xys) == 0 {
			continue
		}
		line, points, err := plotter.NewLinePoints(s.xys)
		if err != nil {
			return err
		}
		line.Color = s.col
		line.Width = vg.Points(1.2)
		points.GlyphStyle.Color = s.col
		points.GlyphStyle.Radius = vg.Points(2.5)
		p.Add(line, points)
		p.Legend.Add(s.name, line, points)
	}
	p.Add(plotter.NewGrid())
	p.X.Min = 0.5
	p.X.Max = float64(len(h.Epochs)) + 0.5

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}
