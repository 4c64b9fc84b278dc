// Command evaluate reloads a trained steering model and compares its
// predictions with the angles recorded in a driving log.
//
// Usage:
//
//	go run ./cmd/evaluate -model model.gob.xz -log data/driving_log.csv -img data/IMG/
//
// Only center-camera frames are scored unless -all-cameras is set, in which
// case side frames are scored against their corrected labels.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Noofbiz/steerclone/datasets"
	"github.com/Noofbiz/steerclone/steering"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"k8s.io/klog/v2"
)

// scored is one evaluated frame.
type scored struct {
	Path      string
	Camera    datasets.Camera
	Label     float32
	Predicted float32
}

type options struct {
	modelPath  string
	logPath    string
	imageDir   string
	correction float32
	allCameras bool
	batchSize  int
	limit      int
}

// evaluate predicts every selected frame of the log, batchSize frames at a
// time. Frames that cannot be decoded are skipped with a warning.
func evaluate(opts options) ([]scored, error) {
	model, err := steering.Load(opts.modelPath, steering.Config{BatchSize: opts.batchSize})
	if err != nil {
		return nil, err
	}
	records, logStats, err := datasets.ReadDrivingLog(opts.logPath)
	if err != nil {
		return nil, err
	}
	if opts.limit > 0 && len(records) > opts.limit {
		records = records[:opts.limit]
	}
	klog.Infof("Evaluating %d records from %s (%d rows skipped)", len(records), opts.logPath, logStats.Skipped)

	in := model.InputShape()
	loader := &datasets.ImageLoader{ImageDir: opts.imageDir, Height: in[0], Width: in[1]}
	cameras := []datasets.Camera{datasets.Center}
	if opts.allCameras {
		cameras = datasets.Cameras[:]
	}

	batchSize := opts.batchSize
	if batchSize <= 0 {
		batchSize = 32
	}
	var out []scored
	var pending []scored
	var images []datasets.Image
	flush := func() error {
		if len(images) == 0 {
			return nil
		}
		preds, err := model.Predict(images)
		if err != nil {
			return err
		}
		for i := range pending {
			pending[i].Predicted = preds[i]
		}
		out = append(out, pending...)
		pending, images = pending[:0], images[:0]
		return nil
	}
	for _, rec := range records {
		for _, cam := range cameras {
			img, err := loader.Load(rec.Path(cam))
			if err != nil {
				klog.Warningf("skipping frame: %v", &datasets.ImageDecodeError{Path: rec.Path(cam), Camera: cam, Err: err})
				continue
			}
			images = append(images, img)
			pending = append(pending, scored{
				Path:   rec.Path(cam),
				Camera: cam,
				Label:  datasets.CameraLabel(rec.Steering, cam, opts.correction),
			})
			if len(images) == batchSize {
				if err := flush(); err != nil {
					return nil, err
				}
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.New("no frame could be evaluated")
	}
	return out, nil
}

// mse returns the mean squared error and the RMSE of the scored frames.
func mse(results []scored) (float64, float64) {
	if len(results) == 0 {
		return 0, 0
	}
	var sum float64
	for _, r := range results {
		d := float64(r.Predicted) - float64(r.Label)
		sum += d * d
	}
	m := sum / float64(len(results))
	return m, math.Sqrt(m)
}

func writeCSV(path string, results []scored) error {
	if err := ensureDir(filepath.Dir(path)); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write([]string{"path", "camera", "label", "predicted"}); err != nil {
		return err
	}
	for _, r := range results {
		row := []string{
			r.Path,
			r.Camera.String(),
			strconv.FormatFloat(float64(r.Label), 'f', 6, 32),
			strconv.FormatFloat(float64(r.Predicted), 'f', 6, 32),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// plotPredictions writes a PNG scattering predicted against recorded
// steering (blue) over the identity line (grey).
func plotPredictions(outDir string, results []scored) error {
	p := plot.New()
	p.Title.Text = "Steering: recorded vs predicted"
	p.X.Label.Text = "recorded"
	p.Y.Label.Text = "predicted"

	xys := make(plotter.XYs, 0, len(results))
	for _, r := range results {
		xys = append(xys, plotter.XY{X: float64(r.Label), Y: float64(r.Predicted)})
	}
	xmin, xmax, ymin, ymax := autoRange(xys)
	lo, hi := math.Min(xmin, ymin), math.Max(xmax, ymax)

	ident, err := plotter.NewLine(plotter.XYs{{X: lo, Y: lo}, {X: hi, Y: hi}})
	if err != nil {
		return err
	}
	ident.Color = color.RGBA{R: 120, G: 120, B: 120, A: 180}
	ident.Width = vg.Points(0.8)
	p.Add(ident)
	p.Legend.Add("ideal", ident)

	sc, err := plotter.NewScatter(xys)
	if err != nil {
		return err
	}
	sc.GlyphStyle.Color = color.RGBA{R: 20, G: 80, B: 200, A: 200}
	sc.GlyphStyle.Radius = vg.Points(1.8)
	p.Add(sc)
	p.Legend.Add("model", sc)

	p.Add(plotter.NewGrid())
	p.X.Min, p.X.Max = lo, hi
	p.Y.Min, p.Y.Max = lo, hi

	if err := ensureDir(outDir); err != nil {
		return err
	}
	return p.Save(6*vg.Inch, 6*vg.Inch, filepath.Join(outDir, "steering_predictions.png"))
}

// autoRange computes padded min/max for X and Y for a set of points.
func autoRange(xs plotter.XYs) (xmin, xmax, ymin, ymax float64) {
	if len(xs) == 0 {
		return -1, 1, -1, 1
	}
	xmin = math.Inf(1)
	xmax = math.Inf(-1)
	ymin = math.Inf(1)
	ymax = math.Inf(-1)
	for _, p := range xs {
		xmin = math.Min(xmin, p.X)
		xmax = math.Max(xmax, p.X)
		ymin = math.Min(ymin, p.Y)
		ymax = math.Max(ymax, p.Y)
	}
	padx := (xmax - xmin) * 0.06
	pady := (ymax - ymin) * 0.06
	if padx == 0 {
		padx = 0.1
	}
	if pady == 0 {
		pady = 0.1
	}
	return xmin - padx, xmax + padx, ymin - pady, ymax + pady
}

func ensureDir(path string) error {
	if path == "" {
		return nil
	}
	return os.MkdirAll(path, 0755)
}

func main() {
	klog.InitFlags(nil)
	modelPath := flag.String("model", steering.DefaultArtifactPath, "model artifact written by cmd/train")
	logPath := flag.String("log", "data/driving_log.csv", "driving log CSV (no header row)")
	imageDir := flag.String("img", "data/IMG/", "directory the logged frame file names are resolved against")
	correction := flag.Float64("correction", float64(datasets.DefaultCorrection), "side-camera steering correction (with -all-cameras)")
	allCameras := flag.Bool("all-cameras", false, "also score left and right frames against their corrected labels")
	batchSize := flag.Int("batch-size", 32, "prediction batch size")
	limit := flag.Int("limit", 0, "evaluate at most this many records (0 = all)")
	outDir := flag.String("out", "plots", "output directory for generated plots (empty disables plotting)")
	outCSV := flag.String("out-csv", "", "if set, write per-frame predictions to this CSV")
	flag.Parse()
	defer klog.Flush()

	results, err := evaluate(options{
		modelPath:  *modelPath,
		logPath:    *logPath,
		imageDir:   *imageDir,
		correction: float32(*correction),
		allCameras: *allCameras,
		batchSize:  *batchSize,
		limit:      *limit,
	})
	if err != nil {
		klog.Exitf("evaluation failed: %v", err)
	}
	m, rmse := mse(results)
	fmt.Printf("frames=%d mse=%.6f rmse=%.6f\n", len(results), m, rmse)

	if *outCSV != "" {
		if err := writeCSV(*outCSV, results); err != nil {
			klog.Exitf("failed to write %s: %v", *outCSV, err)
		}
		klog.Infof("Wrote predictions to %s", *outCSV)
	}
	if *outDir != "" {
		if err := plotPredictions(*outDir, results); err != nil {
			klog.Exitf("failed to plot predictions: %v", err)
		}
		klog.Infof("Wrote prediction plot to %s", *outDir)
	}
}
