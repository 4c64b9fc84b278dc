package datasets

import (
	"io"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func smallDataset(t *testing.T, n int) *SteeringDataset {
	t.Helper()
	ds := NewSteeringDataset(n)
	for i := 0; i < n; i++ {
		if err := ds.Append(patternImage(2, 3, i), float32(i)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	return ds
}

func TestSteeringDatasetAppendRejectsMixedSizes(t *testing.T) {
	ds := smallDataset(t, 1)
	if err := ds.Append(patternImage(3, 3, 0), 0); err == nil {
		t.Fatal("expected error for mismatched frame size")
	}
	if err := ds.Append(Image{Height: 2, Width: 3, Pix: make([]uint8, 5)}, 0); err == nil {
		t.Fatal("expected error for short pixel buffer")
	}
}

func TestSteeringDatasetSplit(t *testing.T) {
	ds := smallDataset(t, 10)
	train, val, err := ds.Split(0.2)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if train.Len() != 8 || val.Len() != 2 {
		t.Fatalf("expected 8/2 split, got %d/%d", train.Len(), val.Len())
	}
	if diff := cmp.Diff([]float32{8, 9}, val.Labels()); diff != "" {
		t.Fatalf("validation must be the tail (-want +got):\n%s", diff)
	}
	if _, _, err := ds.Split(1); err == nil {
		t.Fatal("expected error for validation fraction 1")
	}
	if _, _, err := smallDataset(t, 1).Split(0.5); err == nil {
		t.Fatal("expected error when no training frame remains")
	}
}

func TestSteeringDatasetYield(t *testing.T) {
	ds := smallDataset(t, 5)
	ds.BatchSize = 2

	var sizes []int
	var seen []float32
	for {
		_, inputs, labels, err := ds.Yield()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Yield failed: %v", err)
		}
		dims := inputs[0].Shape().Dimensions
		if len(dims) != 4 || dims[1] != 2 || dims[2] != 3 || dims[3] != FrameChannels {
			t.Fatalf("unexpected image tensor dims %v", dims)
		}
		if ld := labels[0].Shape().Dimensions; len(ld) != 2 || ld[0] != dims[0] || ld[1] != 1 {
			t.Fatalf("unexpected label tensor dims %v", ld)
		}
		sizes = append(sizes, dims[0])
		for _, row := range labels[0].Value().([][]float32) {
			seen = append(seen, row[0])
		}
	}
	if diff := cmp.Diff([]int{2, 2, 1}, sizes); diff != "" {
		t.Fatalf("unexpected batch sizes (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float32{0, 1, 2, 3, 4}, seen); diff != "" {
		t.Fatalf("unshuffled dataset must yield in order (-want +got):\n%s", diff)
	}
	if _, _, _, err := ds.Yield(); err != io.EOF {
		t.Fatalf("expected io.EOF until Reset, got %v", err)
	}
	ds.Reset()
	if _, _, _, err := ds.Yield(); err != nil {
		t.Fatalf("Yield after Reset failed: %v", err)
	}
}

func TestSteeringDatasetShuffle(t *testing.T) {
	ds := smallDataset(t, 50)
	ds.Shuffle(42)
	first := ds.Order()
	ds.Reset()
	second := ds.Order()
	if cmp.Equal(first, second) {
		t.Fatal("Reset did not reshuffle")
	}
	for _, order := range [][]int{first, second} {
		sorted := append([]int(nil), order...)
		sort.Ints(sorted)
		for i, v := range sorted {
			if v != i {
				t.Fatalf("order is not a permutation: %v", order)
			}
		}
	}
	// Example keeps insertion order regardless of shuffling.
	if _, label, _ := ds.Example(7); label != 7 {
		t.Fatalf("Example(7) label = %v", label)
	}

	other := smallDataset(t, 50)
	other.Shuffle(42)
	if diff := cmp.Diff(first, other.Order()); diff != "" {
		t.Fatalf("same seed must give the same order (-want +got):\n%s", diff)
	}
}

func TestMakeSteeringBatchFlat(t *testing.T) {
	images := []Image{patternImage(2, 2, 0), patternImage(2, 2, 1)}
	batch, err := MakeSteeringBatchFlat(images, []float32{0.1, -0.1})
	if err != nil {
		t.Fatalf("MakeSteeringBatchFlat failed: %v", err)
	}
	if len(batch.Images) != 2*2*2*FrameChannels || batch.Images[12] != float32(images[1].Pix[0]) {
		t.Fatalf("unexpected flat images %v", batch.Images)
	}
	if _, err := MakeSteeringBatchFlat(images, []float32{0}); err == nil {
		t.Fatal("expected error for mismatched label count")
	}
	if _, err := MakeSteeringBatchFlat([]Image{patternImage(2, 2, 0), patternImage(3, 2, 0)}, nil); err == nil {
		t.Fatal("expected error for mismatched image sizes")
	}
	noLabels, err := MakeSteeringBatchFlat(images, nil)
	if err != nil {
		t.Fatalf("inference batch failed: %v", err)
	}
	if _, _, err := noLabels.ToGomlxTensors(); err == nil {
		t.Fatal("expected error converting a batch without labels")
	}
	if _, err := noLabels.ImagesTensor(); err != nil {
		t.Fatalf("ImagesTensor failed: %v", err)
	}
}

func TestMemoryBytes(t *testing.T) {
	ds := smallDataset(t, 4)
	if got, want := ds.MemoryBytes(), uint64(4*2*3*FrameChannels+4*4); got != want {
		t.Fatalf("MemoryBytes = %d, want %d", got, want)
	}
}
