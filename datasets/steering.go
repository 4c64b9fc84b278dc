package datasets

import (
	"io"
	"math/rand"
	"time"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
)

var _ Dataset = (*SteeringDataset)(nil)

// SteeringDataset is the fully materialized set of labeled frames. It
// implements gomlx's train.Dataset: Yield walks the examples in the current
// order in batches of BatchSize and returns io.EOF at the end of an epoch.
type SteeringDataset struct {
	// BatchSize for yielding batches
	BatchSize int

	name   string
	images []Image
	labels []float32

	height int
	width  int

	// order is the iteration order used by Yield.
	order []int
	pos   int

	// Random generator for shuffling; nil means Reset keeps the order.
	rand *rand.Rand
}

// NewSteeringDataset creates an empty dataset with room for capacity frames.
func NewSteeringDataset(capacity int) *SteeringDataset {
	return &SteeringDataset{
		BatchSize: 32,
		name:      "SteeringDataset",
		images:    make([]Image, 0, capacity),
		labels:    make([]float32, 0, capacity),
	}
}

// Append adds one labeled frame. All frames must share the same size.
func (d *SteeringDataset) Append(img Image, label float32) error {
	if len(img.Pix) != img.Height*img.Width*FrameChannels {
		return errors.Errorf("image buffer holds %d bytes, want %dx%dx%d", len(img.Pix), img.Height, img.Width, FrameChannels)
	}
	if len(d.images) == 0 {
		d.height, d.width = img.Height, img.Width
	} else if img.Height != d.height || img.Width != d.width {
		return errors.Errorf("image is %dx%d, dataset frames are %dx%d", img.Height, img.Width, d.height, d.width)
	}
	d.order = append(d.order, len(d.images))
	d.images = append(d.images, img)
	d.labels = append(d.labels, label)
	return nil
}

// Len returns the number of labeled frames.
func (d *SteeringDataset) Len() int {
	return len(d.images)
}

// FrameShape returns the height and width shared by every frame.
func (d *SteeringDataset) FrameShape() (height, width int) {
	return d.height, d.width
}

// Example returns the frame and label at index i (insertion order).
func (d *SteeringDataset) Example(i int) (Image, float32, error) {
	if i < 0 || i >= len(d.images) {
		return Image{}, 0, errors.Errorf("index %d out of range [0, %d)", i, len(d.images))
	}
	return d.images[i], d.labels[i], nil
}

// Batch returns the frames and labels at the given indices.
func (d *SteeringDataset) Batch(indices []int) ([]Image, []float32, error) {
	images := make([]Image, len(indices))
	labels := make([]float32, len(indices))
	for pos, idx := range indices {
		img, label, err := d.Example(idx)
		if err != nil {
			return nil, nil, err
		}
		images[pos] = img
		labels[pos] = label
	}
	return images, labels, nil
}

// Labels returns a copy of all labels in insertion order.
func (d *SteeringDataset) Labels() []float32 {
	out := make([]float32, len(d.labels))
	copy(out, d.labels)
	return out
}

// Shuffle enables shuffling with the given seed (zero means time-based) and
// shuffles the iteration order immediately. Every later Reset reshuffles.
func (d *SteeringDataset) Shuffle(seed int64) {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	d.rand = rand.New(rand.NewSource(seed))
	d.shuffleOrder()
}

func (d *SteeringDataset) shuffleOrder() {
	d.rand.Shuffle(len(d.order), func(i, j int) {
		d.order[i], d.order[j] = d.order[j], d.order[i]
	})
}

// Order returns a copy of the current iteration order.
func (d *SteeringDataset) Order() []int {
	out := make([]int, len(d.order))
	copy(out, d.order)
	return out
}

// Split holds out the last valFrac of the frames (in insertion order) for
// validation and returns the remaining head for training. Both views share
// the frame buffers with d and start unshuffled.
func (d *SteeringDataset) Split(valFrac float64) (train, validation *SteeringDataset, err error) {
	if valFrac < 0 || valFrac >= 1 {
		return nil, nil, errors.Errorf("validation fraction %g out of range [0, 1)", valFrac)
	}
	at := int(float64(d.Len()) * (1 - valFrac))
	if at == 0 {
		return nil, nil, errors.Errorf("validation fraction %g leaves no training frames out of %d", valFrac, d.Len())
	}
	return d.view("train", 0, at), d.view("validation", at, d.Len()), nil
}

func (d *SteeringDataset) view(name string, from, to int) *SteeringDataset {
	v := &SteeringDataset{
		BatchSize: d.BatchSize,
		name:      d.name + "/" + name,
		images:    d.images[from:to:to],
		labels:    d.labels[from:to:to],
		height:    d.height,
		width:     d.width,
		order:     make([]int, to-from),
	}
	for i := range v.order {
		v.order[i] = i
	}
	return v
}

// MemoryBytes is the size of the resident pixel buffers.
func (d *SteeringDataset) MemoryBytes() uint64 {
	var n uint64
	for _, img := range d.images {
		n += uint64(len(img.Pix))
	}
	return n + uint64(len(d.labels))*4
}

// Tensors reads a batch of examples and returns them as gomlx tensors
func (d *SteeringDataset) Tensors(indices []int) (images *tensors.Tensor, labels *tensors.Tensor, err error) {
	imgs, labs, err := d.Batch(indices)
	if err != nil {
		return nil, nil, err
	}

	batch, err := MakeSteeringBatchFlat(imgs, labs)
	if err != nil {
		return nil, nil, err
	}

	return batch.ToGomlxTensors()
}

// Name returns the name of the dataset
func (d *SteeringDataset) Name() string {
	return d.name
}

// Yield returns the next batch of data for the gomlx Dataset interface. Batch
// is determined by the BatchSize field. The last batch of an epoch may be
// short; after it Yield returns io.EOF until Reset is called.
func (d *SteeringDataset) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	if d.pos >= len(d.order) {
		return nil, nil, nil, io.EOF
	}
	batchSize := d.BatchSize
	if batchSize <= 0 {
		batchSize = 32
	}
	end := min(d.pos+batchSize, len(d.order))
	in, la, err := d.Tensors(d.order[d.pos:end])
	if err != nil {
		return nil, nil, nil, err
	}
	d.pos = end
	return d, []*tensors.Tensor{in}, []*tensors.Tensor{la}, nil
}

// Reset rewinds the dataset for a new epoch, reshuffling if Shuffle was
// called.
func (d *SteeringDataset) Reset() {
	d.pos = 0
	if d.rand != nil {
		d.shuffleOrder()
	}
}
