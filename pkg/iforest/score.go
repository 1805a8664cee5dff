package iforest

import "math"

// normalizer is C(sampleSize), or 1 when a forest grown from a single row
// would otherwise divide by zero.
func normalizer(sampleSize int) float64 {
	c := C(sampleSize)
	if c == 0 {
		return 1
	}
	return c
}

// score maps a mean adjusted path length to an anomaly score in (0, 1].
// Scores near 1 are anomalous, around 0.5 typical, well below 0.5 clustered.
func score(pathMean float64, sampleSize int) float64 {
	return math.Pow(2, -pathMean/normalizer(sampleSize))
}
