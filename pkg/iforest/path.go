package iforest

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// EulerGamma is the Euler–Mascheroni constant used by C.
const EulerGamma = 0.5772156649

// C returns the average path length of an unsuccessful search in a binary
// search tree of n nodes. It extrapolates the remaining depth below a leaf
// that still holds n rows, and normalizes forest path lengths.
func C(n int) float64 {
	if n <= 1 {
		return 0
	}
	size := float64(n)
	return 2*(math.Log(size-1)+EulerGamma) - 2*(size-1)/size
}

// PathLength walks root for row and returns the number of nodes visited,
// counting the terminal leaf, together with that leaf's size.
func PathLength(root Node, row []float64) (depth, leafSize int) {
	switch n := root.(type) {
	case *Decision:
		next := n.Right
		if row[n.SplitAttribute] < n.SplitValue {
			next = n.Left
		}
		depth, leafSize = PathLength(next, row)
		return depth + 1, leafSize
	case *Leaf:
		return 1, n.Size
	default:
		panic("iforest: unknown node type")
	}
}

// AdjustedPathLength is PathLength's depth plus C of the reached leaf's size.
func AdjustedPathLength(root Node, row []float64) float64 {
	depth, size := PathLength(root, row)
	return float64(depth) + C(size)
}

// pathMean averages the adjusted path length of row over trees.
func pathMean(trees []Tree, row []float64, buf []float64) float64 {
	buf = buf[:0]
	for _, t := range trees {
		buf = append(buf, AdjustedPathLength(t.Root, row))
	}
	return stat.Mean(buf, nil)
}
