package iforest

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

// RandomSplitter picks the feature and threshold of a Decision node.
// It is not safe for concurrent use; each build task owns one.
type RandomSplitter struct {
	rng *rand.Rand
}

// NewRandomSplitter returns a splitter drawing from rng.
func NewRandomSplitter(rng *rand.Rand) *RandomSplitter {
	return &RandomSplitter{rng: rng}
}

// Split selects a column uniformly at random and a threshold uniformly in
// [min, max) of that column over sample. A constant column yields its single
// value, which sends every row of sample to the right child.
// The sample must have at least one row and one column.
func (s *RandomSplitter) Split(sample *Matrix) (attr int, value float64) {
	attr, value, _ = s.split(sample)
	return attr, value
}

// split is Split that also reports whether the chosen column was constant.
func (s *RandomSplitter) split(sample *Matrix) (attr int, value float64, degenerate bool) {
	attr = s.rng.IntN(sample.Cols())

	col := sample.Col(attr)
	lo, hi := floats.Min(col), floats.Max(col)
	if lo == hi {
		return attr, lo, true
	}

	u := s.rng.Float64()
	if span := hi - lo; math.IsInf(span, 0) {
		// the range overflows; interpolate between the ends instead
		value = lo*(1-u) + hi*u
	} else {
		value = lo + u*span
	}
	if value < lo {
		value = lo
	}
	if value >= hi {
		// rounding can land exactly on hi for very narrow ranges
		value = math.Nextafter(hi, lo)
	}
	return attr, value, false
}

// constant reports whether every column of sample holds a single value.
func constant(sample *Matrix) bool {
	if sample.Rows() < 2 {
		return true
	}
	first := sample.Row(0)
	for i := 1; i < sample.Rows(); i++ {
		row := sample.Row(i)
		for j, v := range row {
			if v != first[j] {
				return false
			}
		}
	}
	return true
}
