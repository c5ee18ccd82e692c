// Package pricing turns comparable-sale prices into a price distribution, a
// suggested price, and confidence scores.
package pricing

import (
	"errors"
	"math"
	"sort"

	"github.com/rewired-gh/resaleoracle/internal/models"
)

// ErrEmptySample is returned by Summarize when there are no prices.
var ErrEmptySample = errors.New("price sample is empty")

// Summarize reduces a price sample to summary statistics.
//
// Quartiles are taken by index on the sorted sample (Q1 = sorted[n/4],
// Q3 = sorted[3n/4]) without interpolation. For n < 4 they can coincide with
// the minimum.
func Summarize(prices []float64) (models.PriceDistribution, error) {
	n := len(prices)
	if n == 0 {
		return models.PriceDistribution{}, ErrEmptySample
	}

	sorted := make([]float64, n)
	copy(sorted, prices)
	sort.Float64s(sorted)

	var sum float64
	for _, p := range sorted {
		sum += p
	}
	mean := sum / float64(n)
	median := medianOf(sorted)

	return models.PriceDistribution{
		Min:    sorted[0],
		Max:    sorted[n-1],
		Mean:   round2(mean),
		Median: median,
		Mode:   modeOf(sorted, median),
		StdDev: round2(sampleStdDev(sorted, mean)),
		Quartiles: models.Quartiles{
			Q1: sorted[n/4],
			Q2: median,
			Q3: sorted[3*n/4],
		},
	}, nil
}

func medianOf(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// modeOf returns the most frequent value of a sorted sample. Ties resolve to
// the smallest value. When every value is distinct the median is returned.
func modeOf(sorted []float64, median float64) float64 {
	best, bestCount := sorted[0], 0
	for i := 0; i < len(sorted); {
		j := i
		for j < len(sorted) && sorted[j] == sorted[i] {
			j++
		}
		if count := j - i; count > bestCount {
			best, bestCount = sorted[i], count
		}
		i = j
	}
	if bestCount <= 1 {
		return median
	}
	return best
}

func sampleStdDev(values []float64, mean float64) float64 {
	n := len(values)
	if n <= 1 {
		return 0
	}
	var m2 float64
	for _, v := range values {
		d := v - mean
		m2 += d * d
	}
	return math.Sqrt(m2 / float64(n-1))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
