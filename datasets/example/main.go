package main

// Example command that demonstrates reading a simulator driving log, building
// the augmented steering dataset and converting a small batch into gomlx
// tensors using the helpers provided in the package.
//
// The dataset is fully materialized: every decoded frame and its mirror stay
// in memory, so point it at a small log.
//
// Usage:
//   go run ./datasets/example -data ../data
//
// The directory is expected to hold driving_log.csv (or any other CSV) and an
// IMG/ directory with the frames.

import (
	"flag"
	"fmt"
	"log"
	"path/filepath"

	"github.com/Noofbiz/steerclone/datasets"

	"github.com/dustin/go-humanize"
)

func main() {
	dataDir := flag.String("data", "data", "directory holding the driving log and IMG/")
	limit := flag.Int("limit", 50, "use at most this many log records (0 = all)")
	flag.Parse()

	logPath, err := datasets.FindDrivingLog(*dataDir)
	if err != nil {
		log.Fatalf("failed to find driving log: %v", err)
	}
	records, logStats, err := datasets.ReadDrivingLog(logPath)
	if err != nil {
		log.Fatalf("failed to read driving log: %v", err)
	}
	fmt.Printf("Using driving log: %s\n", logPath)
	fmt.Printf("Records: %d (rows=%d, skipped=%d)\n", len(records), logStats.Rows, logStats.Skipped)
	for _, e := range logStats.Errors {
		fmt.Printf("  skipped: %v\n", e)
	}
	if *limit > 0 && len(records) > *limit {
		records = records[:*limit]
	}

	loader := &datasets.ImageLoader{ImageDir: filepath.Join(*dataDir, "IMG")}
	ds, buildStats, err := datasets.Build(records, loader, datasets.DefaultCorrection)
	if err != nil {
		log.Fatalf("failed to build dataset: %v", err)
	}
	fmt.Printf("Labeled frames: %d from %d records (skipped %d), %s in memory\n",
		ds.Len(), buildStats.Records, buildStats.Skipped, humanize.Bytes(ds.MemoryBytes()))

	labels := ds.Labels()
	fmt.Printf("Labels: %s\n", datasets.Summarize(labels))
	dividers, counts := datasets.Histogram(labels, 10, -1, 1)
	for i, c := range counts {
		fmt.Printf("  [%+.1f, %+.1f) %d\n", dividers[i], dividers[i+1], int(c))
	}

	// Prepare a small batch (first N examples) and convert it to gomlx tensors.
	n := min(8, ds.Len())
	indices := make([]int, n)
	for i := range n {
		indices[i] = i
	}
	images, batchLabels, err := ds.Batch(indices)
	if err != nil {
		log.Fatalf("failed to build batch: %v", err)
	}
	flat, err := datasets.MakeSteeringBatchFlat(images, batchLabels)
	if err != nil {
		log.Fatalf("failed to flatten batch: %v", err)
	}
	inT, laT, err := flat.ToGomlxTensors()
	if err != nil {
		log.Fatalf("failed to convert batch to gomlx tensors: %v", err)
	}
	fmt.Printf("Created tensors: images=%s labels=%s\n", inT.Shape(), laT.Shape())
	fmt.Printf("First labels: %v\n", batchLabels)
}
