package main

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/Noofbiz/steerclone/datasets"
	"github.com/Noofbiz/steerclone/steering"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/plot/plotter"
)

func writeFrame(t *testing.T, path string, height, width, seed int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x*7 + seed), G: uint8(y*3 + seed), B: 90, A: 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

// savedSmallModel writes an (untrained) small model artifact.
func savedSmallModel(t *testing.T, dir string) string {
	t.Helper()
	m, err := steering.NewModel(steering.Config{Seed: 5}, steering.SmallArchitecture(), steering.SmallInputShape)
	require.NoError(t, err)
	_, err = m.Predict([]datasets.Image{datasets.NewImage(steering.SmallInputShape[0], steering.SmallInputShape[1])})
	require.NoError(t, err)
	path := filepath.Join(dir, "model.gob.xz")
	require.NoError(t, m.Save(path))
	return path
}

func TestEvaluate(t *testing.T) {
	tmp := t.TempDir()
	imgDir := filepath.Join(tmp, "IMG")
	require.NoError(t, os.MkdirAll(imgDir, 0o755))
	in := steering.SmallInputShape

	log := ""
	for i := 0; i < 5; i++ {
		var names []string
		for j, cam := range []string{"center", "left", "right"} {
			name := fmt.Sprintf("%s_%d.png", cam, i)
			names = append(names, "IMG/"+name)
			if i == 4 && cam == "center" {
				continue // missing frame
			}
			writeFrame(t, filepath.Join(imgDir, name), in[0], in[1], i*3+j)
		}
		log += fmt.Sprintf("%s,%s,%s,%.2f\n", names[0], names[1], names[2], float64(i)/10)
	}
	logPath := filepath.Join(tmp, "driving_log.csv")
	require.NoError(t, os.WriteFile(logPath, []byte(log), 0o644))

	opts := options{
		modelPath:  savedSmallModel(t, tmp),
		logPath:    logPath,
		imageDir:   imgDir,
		correction: datasets.DefaultCorrection,
		batchSize:  2,
	}
	results, err := evaluate(opts)
	require.NoError(t, err)
	assert.Len(t, results, 4, "the missing center frame is skipped")

	opts.allCameras = true
	all, err := evaluate(opts)
	require.NoError(t, err)
	require.Len(t, all, 14)
	assert.Equal(t, datasets.Left, all[1].Camera)
	assert.InDelta(t, 0.18, all[1].Label, 1e-6)
	assert.InDelta(t, -0.18, all[2].Label, 1e-6)

	m, rmse := mse(all)
	assert.InDelta(t, math.Sqrt(m), rmse, 1e-12)

	outCSV := filepath.Join(tmp, "out", "preds.csv")
	require.NoError(t, writeCSV(outCSV, all))
	require.NoError(t, plotPredictions(filepath.Join(tmp, "plots"), all))
	_, err = os.Stat(filepath.Join(tmp, "plots", "steering_predictions.png"))
	assert.NoError(t, err)

	opts.limit = 1
	opts.allCameras = false
	limited, err := evaluate(opts)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestMSE(t *testing.T) {
	m, rmse := mse([]scored{{Label: 1, Predicted: 0}, {Label: -1, Predicted: 1}})
	assert.InDelta(t, 2.5, m, 1e-12)
	assert.InDelta(t, math.Sqrt(2.5), rmse, 1e-12)
	m, rmse = mse(nil)
	assert.Zero(t, m)
	assert.Zero(t, rmse)
}

func TestAutoRange(t *testing.T) {
	xmin, xmax, ymin, ymax := autoRange(nil)
	assert.Equal(t, []float64{-1, 1, -1, 1}, []float64{xmin, xmax, ymin, ymax})
	xmin, xmax, _, _ = autoRange(plotter.XYs{{X: 0, Y: 0}, {X: 1, Y: 2}})
	assert.Less(t, xmin, 0.0)
	assert.Greater(t, xmax, 1.0)
}
