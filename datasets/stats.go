package datasets

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// straightEpsilon is the largest |label| still counted as driving straight.
const straightEpsilon = 1e-3

// LabelSummary describes the steering-label distribution of a dataset. With
// flip augmentation Negative and Positive are always equal and Mean is zero.
type LabelSummary struct {
	Count    int
	Mean     float64
	StdDev   float64
	Min      float64
	Max      float64
	Negative int
	Positive int
	Straight int
}

func (s LabelSummary) String() string {
	return fmt.Sprintf("n=%d mean=%.4f std=%.4f min=%.4f max=%.4f negative=%d straight=%d positive=%d",
		s.Count, s.Mean, s.StdDev, s.Min, s.Max, s.Negative, s.Straight, s.Positive)
}

// Summarize computes the label distribution of labels.
func Summarize(labels []float32) LabelSummary {
	if len(labels) == 0 {
		return LabelSummary{}
	}
	xs := make([]float64, len(labels))
	s := LabelSummary{Count: len(labels)}
	for i, l := range labels {
		xs[i] = float64(l)
		switch {
		case xs[i] < -straightEpsilon:
			s.Negative++
		case xs[i] > straightEpsilon:
			s.Positive++
		default:
			s.Straight++
		}
	}
	s.Mean, s.StdDev = stat.MeanStdDev(xs, nil)
	s.Min = floats.Min(xs)
	s.Max = floats.Max(xs)
	return s
}

// Histogram buckets labels into bins equal-width bins spanning [lo, hi].
// Labels outside the range are clamped into the edge bins.
func Histogram(labels []float32, bins int, lo, hi float64) (dividers []float64, counts []float64) {
	if bins < 1 || hi <= lo {
		return nil, nil
	}
	xs := make([]float64, len(labels))
	for i, l := range labels {
		xs[i] = min(max(float64(l), lo), hi)
	}
	sort.Float64s(xs)
	dividers = make([]float64, bins+1)
	floats.Span(dividers, lo, hi)
	// stat.Histogram wants the last divider strictly above the data.
	dividers[bins] = math.Nextafter(hi, math.Inf(1))
	counts = stat.Histogram(nil, dividers, xs, nil)
	return dividers, counts
}
