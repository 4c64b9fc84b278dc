package steering

import (
	"math"
	"time"

	"github.com/Noofbiz/steerclone/datasets"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/backends/simplego"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gomlx/pkg/ml/train/losses"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Config holds the training hyperparameters.
type Config struct {
	// BatchSize for mini-batch updates (default if 0: 32).
	BatchSize int

	// Epochs is the exact number of passes over the training split
	// (default if 0: 3). There is no early stopping.
	Epochs int

	// ValidationSplit is the fraction of the dataset, taken from its end,
	// held out from gradient updates (default if 0: 0.2). NoValidation, or
	// any negative value, disables validation.
	ValidationSplit float64

	// LearningRate used by Adam (default if 0: 0.001).
	LearningRate float64

	// Seed controls shuffling. If zero, time-based seed is used.
	Seed int64
}

// NoValidation as Config.ValidationSplit trains on the whole dataset.
const NoValidation = -1.0

func (c Config) withDefaults() Config {
	if c.BatchSize == 0 {
		c.BatchSize = 32
	}
	if c.Epochs == 0 {
		c.Epochs = 3
	}
	if c.ValidationSplit == 0 {
		c.ValidationSplit = 0.2
	}
	if c.ValidationSplit < 0 {
		c.ValidationSplit = 0
	}
	if c.LearningRate == 0 {
		c.LearningRate = 0.001
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
	return c
}

// Model is the steering regressor: a fixed stack of layers mapping a camera
// frame to one unbounded steering value, backed by gomlx on the pure Go
// CPU backend.
type Model struct {
	// Config used for training.
	Config Config

	layers []LayerSpec
	input  Shape
	shapes []Shape

	backend backends.Backend
	ctx     *context.Context
	exec    *context.Exec
}

// NewModel creates a model with freshly initialized weights for frames of
// the given shape (height, width, channels).
func NewModel(cfg Config, specs []LayerSpec, input Shape) (*Model, error) {
	shapes, err := InferShapes(specs, input)
	if err != nil {
		return nil, err
	}
	backend, err := simplego.New("")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create gomlx simplego backend")
	}
	cfg = cfg.withDefaults()
	ctx := context.New().Checked(false)
	ctx.SetParam(optimizers.ParamLearningRate, cfg.LearningRate)
	return &Model{
		Config:  cfg,
		layers:  append([]LayerSpec(nil), specs...),
		input:   append(Shape(nil), input...),
		shapes:  shapes,
		backend: backend,
		ctx:     ctx,
	}, nil
}

// Layers returns the layer descriptors of the model.
func (m *Model) Layers() []LayerSpec {
	return append([]LayerSpec(nil), m.layers...)
}

// InputShape returns the frame shape the model accepts.
func (m *Model) InputShape() Shape {
	return append(Shape(nil), m.input...)
}

// LayerShapes returns the per-example output shape of every layer.
func (m *Model) LayerShapes() []Shape {
	out := make([]Shape, len(m.shapes))
	copy(out, m.shapes)
	return out
}

// modelGraph implements train.ModelFn.
func (m *Model) modelGraph(ctx *context.Context, spec any, inputs []*graph.Node) []*graph.Node {
	return []*graph.Node{buildGraph(ctx, m.layers, inputs[0])}
}

func (m *Model) checkFrames(height, width int) error {
	if height != m.input[0] || width != m.input[1] {
		return errors.Errorf("frames are %dx%d, model expects %dx%d", height, width, m.input[0], m.input[1])
	}
	return nil
}

// Fit splits ds into training and validation parts according to
// Config.ValidationSplit and trains on them.
func (m *Model) Fit(ds *datasets.SteeringDataset) (History, error) {
	trainDS, valDS, err := ds.Split(m.Config.ValidationSplit)
	if err != nil {
		return History{}, err
	}
	return m.Train(trainDS, valDS)
}

// Train minimizes the mean squared error on trainDS with Adam, for exactly
// Config.Epochs passes. trainDS is reshuffled before every pass. valDS may be
// nil or empty; otherwise its MSE is reported after every pass but it never
// contributes gradients.
func (m *Model) Train(trainDS, valDS *datasets.SteeringDataset) (History, error) {
	if trainDS == nil || trainDS.Len() == 0 {
		return History{}, errors.New("training dataset is empty")
	}
	if err := m.checkFrames(trainDS.FrameShape()); err != nil {
		return History{}, err
	}
	trainDS.BatchSize = m.Config.BatchSize
	trainDS.Shuffle(m.Config.Seed)

	history := History{TrainSize: trainDS.Len()}
	if valDS != nil {
		history.ValidationSize = valDS.Len()
	}

	var loop *train.Loop
	err := tryCatch(func() {
		trainer := train.NewTrainer(m.backend, m.ctx, m.modelGraph,
			losses.MeanSquaredError,
			optimizers.Adam().Done(),
			nil, // trainMetrics
			nil) // evalMetrics
		loop = train.NewLoop(trainer)
	})
	if err != nil {
		return history, errors.Wrap(err, "failed to build trainer")
	}

	for epoch := 1; epoch <= m.Config.Epochs; epoch++ {
		start := time.Now()
		trainDS.Reset()
		var metrics []*tensors.Tensor
		err := tryCatch(func() {
			var runErr error
			metrics, runErr = loop.RunEpochs(trainDS, 1)
			if runErr != nil {
				panic(runErr)
			}
		})
		if err != nil {
			return history, errors.Wrapf(err, "epoch %d", epoch)
		}
		stats := EpochStats{
			Epoch:          epoch,
			TrainLoss:      lossMetric(metrics),
			ValidationLoss: math.NaN(),
		}
		if valDS != nil && valDS.Len() > 0 {
			valLoss, err := m.Evaluate(valDS)
			if err != nil {
				return history, errors.Wrapf(err, "epoch %d validation", epoch)
			}
			stats.ValidationLoss = valLoss
		}
		stats.Duration = time.Since(start)
		history.Epochs = append(history.Epochs, stats)
		klog.Infof("epoch %d/%d: loss=%.6f val_loss=%.6f (%s)",
			epoch, m.Config.Epochs, stats.TrainLoss, stats.ValidationLoss, stats.Duration.Round(time.Millisecond))
	}
	return history, nil
}

// lossMetric extracts the training loss from the metrics returned by the
// gomlx loop: the moving average of the loss when present, else the last
// batch loss.
func lossMetric(metrics []*tensors.Tensor) float64 {
	if len(metrics) == 0 {
		return math.NaN()
	}
	t := metrics[min(1, len(metrics)-1)]
	switch v := t.Value().(type) {
	case float32:
		return float64(v)
	case float64:
		return v
	}
	return math.NaN()
}

// Predict returns one steering prediction per image.
func (m *Model) Predict(images []datasets.Image) ([]float32, error) {
	if len(images) == 0 {
		return nil, nil
	}
	if err := m.checkFrames(images[0].Height, images[0].Width); err != nil {
		return nil, err
	}
	batch, err := datasets.MakeSteeringBatchFlat(images, nil)
	if err != nil {
		return nil, err
	}
	in, err := batch.ImagesTensor()
	if err != nil {
		return nil, err
	}
	return m.predictTensor(in)
}

func (m *Model) predictTensor(images *tensors.Tensor) ([]float32, error) {
	if m.exec == nil {
		exec, err := context.NewExec(m.backend, m.ctx, func(ctx *context.Context, images *graph.Node) *graph.Node {
			return buildGraph(ctx, m.layers, images)
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to create prediction executor")
		}
		m.exec = exec
	}
	var preds []float32
	err := tryCatch(func() {
		outs, err := m.exec.Exec(images)
		if err != nil {
			panic(err)
		}
		preds = tensors.CopyFlatData[float32](outs[0])
	})
	if err != nil {
		return nil, errors.Wrap(err, "prediction failed")
	}
	return preds, nil
}

// Evaluate returns the mean squared error of the model over ds, in batches
// of Config.BatchSize, without touching the weights.
func (m *Model) Evaluate(ds *datasets.SteeringDataset) (float64, error) {
	n := ds.Len()
	if n == 0 {
		return 0, errors.New("evaluation dataset is empty")
	}
	if err := m.checkFrames(ds.FrameShape()); err != nil {
		return 0, err
	}
	var sum float64
	indices := make([]int, 0, m.Config.BatchSize)
	for start := 0; start < n; start += m.Config.BatchSize {
		end := min(start+m.Config.BatchSize, n)
		indices = indices[:0]
		for i := start; i < end; i++ {
			indices = append(indices, i)
		}
		images, labels, err := ds.Batch(indices)
		if err != nil {
			return 0, err
		}
		preds, err := m.Predict(images)
		if err != nil {
			return 0, err
		}
		for i, p := range preds {
			d := float64(p) - float64(labels[i])
			sum += d * d
		}
	}
	return sum / float64(n), nil
}
