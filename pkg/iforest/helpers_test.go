package iforest

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustMatrix(t *testing.T, rows [][]float64) *Matrix {
	t.Helper()
	m, err := FromRows(rows)
	require.NoError(t, err)
	return m
}

// cluster returns n points drawn around the origin with the given spread.
func cluster(n, dims int, spread float64, seed uint64) [][]float64 {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, dims)
		for j := range rows[i] {
			rows[i][j] = rng.NormFloat64() * spread
		}
	}
	return rows
}

// treeDepth returns the number of edges on the longest root-to-leaf path.
func treeDepth(n Node) int {
	d, ok := n.(*Decision)
	if !ok {
		return 0
	}
	return 1 + max(treeDepth(d.Left), treeDepth(d.Right))
}

func leafSizes(n Node) int {
	switch n := n.(type) {
	case *Decision:
		return leafSizes(n.Left) + leafSizes(n.Right)
	case *Leaf:
		return n.Size
	}
	return 0
}
