package datasets

import (
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
)

// SteeringBatchFlat stores a batch in flat contiguous buffers. Pixels are
// widened to float32 but keep their 0..255 range; normalization is part of
// the model.
type SteeringBatchFlat struct {
	Images    []float32
	Labels    []float32
	BatchSize int
	Height    int
	Width     int
	Channels  int
}

// MakeSteeringBatchFlat flattens a batch into contiguous buffers. labels may
// be nil for inference batches.
func MakeSteeringBatchFlat(images []Image, labels []float32) (*SteeringBatchFlat, error) {
	if labels != nil && len(images) != len(labels) {
		return nil, errors.Errorf("images and labels batch sizes don't match: %d != %d", len(images), len(labels))
	}
	if len(images) == 0 {
		return &SteeringBatchFlat{}, nil
	}

	batchSize := len(images)
	height, width := images[0].Height, images[0].Width
	frame := height * width * FrameChannels

	flat := make([]float32, batchSize*frame)
	for i, img := range images {
		if img.Height != height || img.Width != width || len(img.Pix) != frame {
			return nil, errors.Errorf("inconsistent image dimensions at example %d: expected %dx%d, got %dx%d",
				i, height, width, img.Height, img.Width)
		}
		dst := flat[i*frame : (i+1)*frame]
		for j, v := range img.Pix {
			dst[j] = float32(v)
		}
	}
	var flatLabels []float32
	if labels != nil {
		flatLabels = make([]float32, batchSize)
		copy(flatLabels, labels)
	}

	return &SteeringBatchFlat{
		Images:    flat,
		Labels:    flatLabels,
		BatchSize: batchSize,
		Height:    height,
		Width:     width,
		Channels:  FrameChannels,
	}, nil
}

// ImagesTensor converts the flat images into a [batch, height, width, channels] tensor.
func (b *SteeringBatchFlat) ImagesTensor() (*tensors.Tensor, error) {
	if b.BatchSize == 0 {
		return nil, errors.New("empty batch")
	}
	return tensors.FromFlatDataAndDimensions(b.Images, b.BatchSize, b.Height, b.Width, b.Channels), nil
}

// ToGomlxTensors converts SteeringBatchFlat to gomlx tensors: images shaped
// [batch, height, width, channels] and labels shaped [batch, 1].
func (b *SteeringBatchFlat) ToGomlxTensors() (*tensors.Tensor, *tensors.Tensor, error) {
	inT, err := b.ImagesTensor()
	if err != nil {
		return nil, nil, err
	}
	if len(b.Labels) != b.BatchSize {
		return nil, nil, errors.Errorf("batch has %d labels for %d images", len(b.Labels), b.BatchSize)
	}
	labT := tensors.FromFlatDataAndDimensions(b.Labels, b.BatchSize, 1)
	return inT, labT, nil
}
