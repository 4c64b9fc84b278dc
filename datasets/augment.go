package datasets

import (
	"iter"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// DefaultCorrection is the steering offset applied to the side cameras.
const DefaultCorrection float32 = 0.18

// CameraLabel returns the steering label for a frame of the given camera
// when the center camera recorded base. The left camera sees the road as if
// the car had drifted left, so it is labeled with a stronger right turn
// (base+correction); the right camera gets base-correction.
func CameraLabel(base float32, c Camera, correction float32) float32 {
	switch c {
	case Left:
		return base + correction
	case Right:
		return base - correction
	default:
		return base
	}
}

// LabeledImage is one training example.
type LabeledImage struct {
	Image   Image
	Label   float32
	Camera  Camera
	Flipped bool
}

// Mirror returns the horizontally flipped example with its label negated.
func (li LabeledImage) Mirror() LabeledImage {
	return LabeledImage{
		Image:   li.Image.Flip(),
		Label:   -li.Label,
		Camera:  li.Camera,
		Flipped: !li.Flipped,
	}
}

// BuildStats counts what happened while expanding a driving log.
type BuildStats struct {
	Records int
	Frames  int
	Skipped int

	// Errors holds the first few ImageDecodeErrors, for reporting.
	Errors []error
}

func (s *BuildStats) skip(err error) {
	s.Skipped++
	if len(s.Errors) < maxReportedErrors {
		s.Errors = append(s.Errors, err)
	}
}

// Samples expands records into labeled frames: for each record, for each of
// center, left and right, the decoded frame with its camera label followed by
// its mirror. Frames that fail to load are skipped (with their mirror) and
// reported through stats, which may be nil. The sequence is lazy and can be
// ranged over again; stats is reset at the start of every pass.
func Samples(records []LogRecord, loader FrameLoader, correction float32, stats *BuildStats) iter.Seq[LabeledImage] {
	return func(yield func(LabeledImage) bool) {
		if stats == nil {
			stats = &BuildStats{}
		}
		*stats = BuildStats{}
		for _, rec := range records {
			stats.Records++
			for _, cam := range Cameras {
				img, err := loader.Load(rec.Path(cam))
				if err != nil {
					derr := &ImageDecodeError{Path: rec.Path(cam), Camera: cam, Err: err}
					stats.skip(derr)
					klog.Warningf("skipping frame: %v", derr)
					continue
				}
				li := LabeledImage{Image: img, Label: CameraLabel(rec.Steering, cam, correction), Camera: cam}
				stats.Frames++
				if !yield(li) {
					return
				}
				stats.Frames++
				if !yield(li.Mirror()) {
					return
				}
			}
		}
	}
}

// Build materializes Samples into a SteeringDataset, preserving order.
func Build(records []LogRecord, loader FrameLoader, correction float32) (*SteeringDataset, BuildStats, error) {
	var stats BuildStats
	ds := NewSteeringDataset(len(records) * len(Cameras) * 2)
	for li := range Samples(records, loader, correction, &stats) {
		if err := ds.Append(li.Image, li.Label); err != nil {
			return nil, stats, errors.Wrapf(err, "%s camera frame", li.Camera)
		}
	}
	if ds.Len() == 0 {
		return nil, stats, errors.Errorf("no usable frames in %d records (%d skipped)", stats.Records, stats.Skipped)
	}
	return ds, stats, nil
}
