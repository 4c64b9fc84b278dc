package datasets

import "github.com/gomlx/gomlx/pkg/core/tensors"

// This file describes the dataset side of the behavioral-cloning pipeline:
// a driving log of (center, left, right, steering) rows is turned into an
// in-memory set of labeled camera frames ready for a gomlx training loop.
//
// Layout and intended usage:
//
// ReadDrivingLog
//   - Parses the simulator's driving_log.csv (no header row, 4+ columns).
//   - Malformed rows are skipped and counted, never fatal.
//
// Samples / Build
//   - For every record and every camera (center, left, right) the frame is
//     decoded and labeled with the camera-offset correction, then emitted
//     together with its horizontal mirror (label negated).
//   - Frames that fail to decode are skipped and counted.
//
// SteeringDataset
//   - Holds every frame as HWC uint8 pixels plus a float32 label. The whole
//     augmented set stays resident: peak memory is roughly
//     6 x records x 160 x 320 x 3 bytes.
//   - Converts batches to float32 gomlx tensors on demand.
//
// The datasets implement this interface in order to interact with GoMLX
// training loops and batching utilities.
type Dataset interface {
	Len() int
	Example(i int) (image Image, label float32, err error)
	Batch(indices []int) (images []Image, labels []float32, err error)
	Shuffle(seed int64)

	// To implement gomlx's train.Dataset interface
	Yield() (any, []*tensors.Tensor, []*tensors.Tensor, error)
}
