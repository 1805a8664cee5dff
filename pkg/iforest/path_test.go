package iforest

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestC(t *testing.T) {
	assert.Equal(t, 0.0, C(0))
	assert.Equal(t, 0.0, C(1))
	assert.InDelta(t, 2*EulerGamma-1, C(2), 1e-12)
	assert.InDelta(t, 0.1544313298, C(2), 1e-9)

	want := 2*(math.Log(255)+EulerGamma) - 2*255.0/256.0
	assert.InDelta(t, want, C(256), 1e-12)

	for n := 2; n < 100; n++ {
		assert.Greater(t, C(n+1), C(n), "C is increasing")
	}
}

func TestPathLength(t *testing.T) {
	//        x0 < 5
	//       /      \
	//   leaf(3)   x1 < 0
	//             /    \
	//         leaf(1) leaf(4)
	root := &Decision{
		SplitAttribute: 0,
		SplitValue:     5,
		Left:           &Leaf{Size: 3},
		Right: &Decision{
			SplitAttribute: 1,
			SplitValue:     0,
			Left:           &Leaf{Size: 1},
			Right:          &Leaf{Size: 4},
		},
	}

	tests := []struct {
		row       []float64
		wantDepth int
		wantSize  int
	}{
		{row: []float64{4.9, 100}, wantDepth: 2, wantSize: 3},
		{row: []float64{5, -1}, wantDepth: 3, wantSize: 1},
		{row: []float64{5, 0}, wantDepth: 3, wantSize: 4},
	}
	for _, tt := range tests {
		depth, size := PathLength(root, tt.row)
		assert.Equal(t, tt.wantDepth, depth, "row %v", tt.row)
		assert.Equal(t, tt.wantSize, size, "row %v", tt.row)
	}

	assert.InDelta(t, 3+C(4), AdjustedPathLength(root, []float64{6, 1}), 1e-12)

	depth, size := PathLength(&Leaf{Size: 7}, []float64{0, 0})
	assert.Equal(t, 1, depth)
	assert.Equal(t, 7, size)
}

func TestPathLengthWithinBounds(t *testing.T) {
	train := mustMatrix(t, cluster(300, 4, 2, 21))
	f := New(64, 25, WithSeed(21))
	require.NoError(t, f.Fit(train))

	probe := cluster(100, 4, 6, 22)
	for _, tree := range f.Trees() {
		for _, row := range append(probe, train.ToRows()...) {
			depth, _ := PathLength(tree.Root, row)
			assert.GreaterOrEqual(t, depth, 1)
			assert.LessOrEqual(t, depth, tree.HeightLimit+1)
		}
	}
}
