// Package visualization projects feature rows to two or three dimensions so
// anomaly scores can be plotted.
package visualization

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/todmy/isoforest/pkg/iforest"
)

// Reducer defines the interface for dimensionality reduction
type Reducer interface {
	Reduce(x *iforest.Matrix, dims int) ([][]float64, []float64, error)
	Name() string
}

// PCAReducer implements PCA dimensionality reduction
type PCAReducer struct{}

// NewPCAReducer creates a new PCA reducer
func NewPCAReducer() *PCAReducer {
	return &PCAReducer{}
}

// Name returns the reducer name
func (r *PCAReducer) Name() string {
	return "pca"
}

// Reduce projects x onto its first dims principal components. It also returns
// the share of variance explained by each kept component.
func (r *PCAReducer) Reduce(x *iforest.Matrix, dims int) ([][]float64, []float64, error) {
	if x == nil || x.Rows() == 0 {
		return nil, nil, iforest.ErrEmptyInput
	}

	n, d := x.Rows(), x.Cols()
	if dims > d {
		dims = d
	}
	if dims > n {
		dims = n
	}

	X := mat.NewDense(n, d, nil)
	for i := 0; i < n; i++ {
		X.SetRow(i, x.Row(i))
	}

	// Center the data
	centered := mat.NewDense(n, d, nil)
	for j := 0; j < d; j++ {
		col := mat.Col(nil, j, X)
		mean := stat.Mean(col, nil)
		for i := range col {
			centered.Set(i, j, col[i]-mean)
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(centered, mat.SVDThin); !ok {
		return nil, nil, fmt.Errorf("SVD factorization failed")
	}

	// Get V matrix (right singular vectors)
	var v mat.Dense
	svd.VTo(&v)

	// Project onto first dims components
	vReduced := v.Slice(0, d, 0, dims).(*mat.Dense)
	result := mat.NewDense(n, dims, nil)
	result.Mul(centered, vReduced)

	reduced := make([][]float64, n)
	for i := range reduced {
		reduced[i] = mat.Row(nil, i, result)
	}

	return normalizeCoordinates(reduced), explainedVariance(svd.Values(nil), dims), nil
}

func explainedVariance(singular []float64, dims int) []float64 {
	var total float64
	for _, s := range singular {
		total += s * s
	}

	explained := make([]float64, dims)
	if total == 0 {
		return explained
	}
	for i := 0; i < dims && i < len(singular); i++ {
		explained[i] = singular[i] * singular[i] / total
	}
	return explained
}

// normalizeCoordinates scales coordinates to [-1, 1] range
func normalizeCoordinates(coords [][]float64) [][]float64 {
	if len(coords) == 0 {
		return coords
	}

	dims := len(coords[0])
	mins := make([]float64, dims)
	maxs := make([]float64, dims)

	for j := 0; j < dims; j++ {
		mins[j] = math.MaxFloat64
		maxs[j] = -math.MaxFloat64
	}

	for _, coord := range coords {
		for j, v := range coord {
			mins[j] = math.Min(mins[j], v)
			maxs[j] = math.Max(maxs[j], v)
		}
	}

	normalized := make([][]float64, len(coords))
	for i, coord := range coords {
		normalized[i] = make([]float64, dims)
		for j, v := range coord {
			if rng := maxs[j] - mins[j]; rng != 0 {
				normalized[i][j] = 2*(v-mins[j])/rng - 1
			}
		}
	}

	return normalized
}
