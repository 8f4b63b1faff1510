// Package neighbor provides the LSH approximate nearest-neighbor index.
package neighbor

import (
	"fmt"
	"math"
)

// Metric identifies the fine-ranking distance metric.
type Metric string

const (
	// MetricEuclidean ranks by squared L2 distance.
	MetricEuclidean Metric = "euclidean"
	// MetricCosine ranks by cosine distance (1 - cosine similarity).
	MetricCosine Metric = "cosine"
)

// DistanceFunc computes the distance between two vectors. Lower is nearer.
type DistanceFunc func(a, b []float32) float64

// Provider returns the distance function for the given metric. Swapping the
// metric changes ranking behavior without changing the index interface.
func Provider(m Metric) (DistanceFunc, error) {
	switch m {
	case MetricEuclidean, "":
		return SquaredEuclidean, nil
	case MetricCosine:
		return CosineDistance, nil
	default:
		return nil, fmt.Errorf("unsupported distance metric: %s (supported: euclidean, cosine)", m)
	}
}

// SquaredEuclidean returns the squared L2 distance between two vectors.
// Assumes vectors are the same length (caller's responsibility).
func SquaredEuclidean(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return sum
}

// CosineDistance returns 1 minus the cosine similarity of two vectors.
// Zero-norm vectors are treated as maximally distant.
func CosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i] * b[i])
		na += float64(a[i] * a[i])
		nb += float64(b[i] * b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
