package anomaly

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/todmy/isoforest/pkg/iforest"
)

// DistanceDetector scores rows by their average distance to the k nearest
// rows of a reference set
type DistanceDetector struct {
	reference *iforest.Matrix
	k         int
}

// NewDistanceDetector creates a kNN detector over reference.
func NewDistanceDetector(reference *iforest.Matrix, k int) *DistanceDetector {
	if k <= 0 {
		k = DefaultConfig().K
	}
	return &DistanceDetector{reference: reference, k: k}
}

// Detect computes anomaly scores in [0, 1] for every row of x, where higher
// means more anomalous. Scores are min-max normalized over the batch. When x
// is the reference set itself, a row is not counted as its own neighbor.
func (d *DistanceDetector) Detect(x *iforest.Matrix) ([]float64, error) {
	if d.reference == nil || d.reference.Rows() == 0 || x == nil || x.Rows() == 0 {
		return nil, iforest.ErrEmptyInput
	}
	if x.Cols() != d.reference.Cols() {
		return nil, fmt.Errorf("%w: matrix has %d columns, reference has %d",
			iforest.ErrIndexOutOfRange, x.Cols(), d.reference.Cols())
	}

	self := x == d.reference
	n := d.reference.Rows()
	k := d.k
	if self && k >= n {
		k = n - 1
	}
	if k > n {
		k = n
	}

	scores := make([]float64, x.Rows())
	distances := make([]float64, 0, n)
	for i := 0; i < x.Rows(); i++ {
		distances = distances[:0]
		for j := 0; j < n; j++ {
			if self && i == j {
				continue
			}
			distances = append(distances, floats.Distance(x.Row(i), d.reference.Row(j), 2))
		}

		sort.Float64s(distances)
		if k > 0 {
			scores[i] = floats.Sum(distances[:k]) / float64(k)
		}
	}

	return normalizeScores(scores), nil
}

// normalizeScores normalizes scores to 0-1 range using min-max normalization
func normalizeScores(scores []float64) []float64 {
	normalized := make([]float64, len(scores))
	if len(scores) == 0 {
		return normalized
	}

	minScore, maxScore := floats.Min(scores), floats.Max(scores)
	scoreRange := maxScore - minScore
	if scoreRange == 0 {
		// All scores are the same
		for i := range normalized {
			normalized[i] = 0.5
		}
		return normalized
	}

	for i, score := range scores {
		normalized[i] = (score - minScore) / scoreRange
	}
	return normalized
}
