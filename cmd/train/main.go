// Command train builds the augmented steering dataset from a simulator
// driving log, trains the steering network on it and writes the model
// artifact.
//
// Usage:
//
//	go run ./cmd/train
//
// With no arguments it reads data/driving_log.csv, loads frames from
// data/IMG/ and writes model.gob.xz in the working directory. Flags and an
// optional JSON file (-config) override those defaults; explicit flags win
// over JSON values.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/Noofbiz/steerclone/datasets"
	"github.com/Noofbiz/steerclone/steering"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// runConfig is the effective configuration of a training run.
type runConfig struct {
	LogPath     string  `json:"log"`
	ImageDir    string  `json:"image_dir"`
	Output      string  `json:"output"`
	Correction  float64 `json:"correction"`
	Resize      bool    `json:"resize"`
	HistoryPlot string  `json:"history_plot"`

	Training trainingConfig `json:"training"`
}

type trainingConfig struct {
	BatchSize       int     `json:"batch_size"`
	Epochs          int     `json:"epochs"`
	ValidationSplit float64 `json:"validation_split"`
	LearningRate    float64 `json:"learning_rate"`
	Seed            int64   `json:"seed"`
}

func defaultConfig() runConfig {
	return runConfig{
		LogPath:    "data/driving_log.csv",
		ImageDir:   "data/IMG/",
		Output:     steering.DefaultArtifactPath,
		Correction: float64(datasets.DefaultCorrection),
		Training: trainingConfig{
			BatchSize:       32,
			Epochs:          3,
			ValidationSplit: 0.2,
			LearningRate:    0.001,
		},
	}
}

// loadConfigFile overlays the JSON file at path onto cfg.
func loadConfigFile(path string, cfg *runConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read config %s", path)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return errors.Wrapf(err, "failed to parse config %s", path)
	}
	return nil
}

// modelConfig converts the run configuration to the model's. defaultConfig
// already fills the validation split, so a zero here was asked for and
// disables validation.
func (c runConfig) modelConfig() steering.Config {
	valSplit := c.Training.ValidationSplit
	if valSplit <= 0 {
		valSplit = steering.NoValidation
	}
	return steering.Config{
		BatchSize:       c.Training.BatchSize,
		Epochs:          c.Training.Epochs,
		ValidationSplit: valSplit,
		LearningRate:    c.Training.LearningRate,
		Seed:            c.Training.Seed,
	}
}

// run executes the whole pipeline: read log, build dataset, train, save.
func run(cfg runConfig, layers []steering.LayerSpec, input steering.Shape) (steering.History, error) {
	records, logStats, err := datasets.ReadDrivingLog(cfg.LogPath)
	if err != nil {
		return steering.History{}, err
	}
	klog.Infof("Read %d records from %s (%d rows, %d skipped)", len(records), cfg.LogPath, logStats.Rows, logStats.Skipped)

	loader := &datasets.ImageLoader{
		ImageDir: cfg.ImageDir,
		Height:   input[0],
		Width:    input[1],
		Resize:   cfg.Resize,
	}
	ds, buildStats, err := datasets.Build(records, loader, float32(cfg.Correction))
	if err != nil {
		return steering.History{}, err
	}
	klog.Infof("Built dataset: %d labeled frames from %d records (%d frames skipped), %s resident",
		ds.Len(), buildStats.Records, buildStats.Skipped, humanize.Bytes(ds.MemoryBytes()))
	klog.Infof("Labels: %s", datasets.Summarize(ds.Labels()))

	model, err := steering.NewModel(cfg.modelConfig(), layers, input)
	if err != nil {
		return steering.History{}, err
	}
	for i, l := range model.Layers() {
		klog.V(1).Infof("layer %02d %-32s -> %v", i, l, model.LayerShapes()[i])
	}

	history, err := model.Fit(ds)
	if err != nil {
		return history, errors.Wrap(err, "training failed")
	}

	if cfg.HistoryPlot != "" {
		if err := steering.PlotHistory(history, cfg.HistoryPlot); err != nil {
			klog.Warningf("failed to plot training history to %s: %v", cfg.HistoryPlot, err)
		} else {
			klog.Infof("Wrote training history plot to %s", cfg.HistoryPlot)
		}
	}

	if err := model.Save(cfg.Output); err != nil {
		return history, err
	}
	klog.Infof("Saved model to %s", cfg.Output)
	return history, nil
}

func main() {
	klog.InitFlags(nil)
	def := defaultConfig()

	configPath := flag.String("config", "", "path to JSON run configuration (optional)")
	logPath := flag.String("log", def.LogPath, "driving log CSV (no header row)")
	imageDir := flag.String("img", def.ImageDir, "directory the logged frame file names are resolved against")
	output := flag.String("out", def.Output, "model artifact path (overwritten)")
	correction := flag.Float64("correction", def.Correction, "steering correction added to left and subtracted from right camera labels")
	resize := flag.Bool("resize", def.Resize, "rescale frames that are not 160x320 instead of skipping them")
	historyPlot := flag.String("history-plot", def.HistoryPlot, "if set, write a PNG of per-epoch losses to this path")
	batchSize := flag.Int("batch-size", def.Training.BatchSize, "training batch size")
	epochs := flag.Int("epochs", def.Training.Epochs, "number of passes over the training split")
	valSplit := flag.Float64("validation-split", def.Training.ValidationSplit, "fraction of frames, taken from the end, held out for validation (0 disables validation)")
	learningRate := flag.Float64("learning-rate", def.Training.LearningRate, "Adam learning rate")
	seed := flag.Int64("seed", def.Training.Seed, "shuffle seed (0 = time based)")
	flag.Parse()
	defer klog.Flush()

	cfg := def
	if *configPath != "" {
		if err := loadConfigFile(*configPath, &cfg); err != nil {
			klog.Exitf("%v", err)
		}
		klog.Infof("Loaded run config from %s", *configPath)
	}
	// Explicit flags override JSON values.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "log":
			cfg.LogPath = *logPath
		case "img":
			cfg.ImageDir = *imageDir
		case "out":
			cfg.Output = *output
		case "correction":
			cfg.Correction = *correction
		case "resize":
			cfg.Resize = *resize
		case "history-plot":
			cfg.HistoryPlot = *historyPlot
		case "batch-size":
			cfg.Training.BatchSize = *batchSize
		case "epochs":
			cfg.Training.Epochs = *epochs
		case "validation-split":
			cfg.Training.ValidationSplit = *valSplit
		case "learning-rate":
			cfg.Training.LearningRate = *learningRate
		case "seed":
			cfg.Training.Seed = *seed
		}
	})

	history, err := run(cfg, steering.Architecture(), steering.InputShape)
	if err != nil {
		if msg, ok := lostModelSummary(history, err); ok {
			klog.Errorf("%s", msg)
		}
		klog.Exitf("train: %v", err)
	}
}

// lostModelSummary describes the final losses of a run whose model was
// trained but could not be saved.
func lostModelSummary(history steering.History, err error) (string, bool) {
	var perr *steering.PersistenceError
	if !errors.As(err, &perr) {
		return "", false
	}
	final, ok := history.Final()
	if !ok {
		return "", false
	}
	return fmt.Sprintf("Trained model is lost: final loss=%.6f val_loss=%.6f after %d epochs",
		final.TrainLoss, final.ValidationLoss, final.Epoch), true
}
