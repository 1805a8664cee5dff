package iforest

import (
	"fmt"
	"math"
)

// Node is a node of an isolation tree: either a *Decision or a *Leaf.
type Node interface {
	isNode()
}

// Decision routes a row left when row[SplitAttribute] < SplitValue and right otherwise.
type Decision struct {
	Left           Node
	Right          Node
	SplitAttribute int
	SplitValue     float64
}

// Leaf terminates a path. Size is the number of sample rows that reached it.
type Leaf struct {
	Size int
}

func (*Decision) isNode() {}
func (*Leaf) isNode()     {}

// Tree is one member of the ensemble.
type Tree struct {
	Root        Node
	HeightLimit int
}

// heightLimit returns ceil(log2(sampleSize)), the maximum depth of a tree
// grown from sampleSize rows.
func heightLimit(sampleSize int) int {
	if sampleSize <= 1 {
		return 0
	}
	return int(math.Ceil(math.Log2(float64(sampleSize))))
}

type treeBuilder struct {
	splitter    *RandomSplitter
	heightLimit int
}

// build grows the subtree for sample at the given depth.
func (b *treeBuilder) build(sample *Matrix, depth int) (Node, error) {
	if sample.Cols() == 0 {
		return nil, fmt.Errorf("%w: sample has no columns", ErrShapeMismatch)
	}

	if sample.Rows() <= 1 || depth >= b.heightLimit {
		return &Leaf{Size: sample.Rows()}, nil
	}

	attr, value, degenerate := b.splitter.split(sample)
	if degenerate && constant(sample) {
		// no split can separate fully duplicated rows
		return &Leaf{Size: sample.Rows()}, nil
	}

	left, right := partition(sample, attr, value)

	leftNode, err := b.build(left, depth+1)
	if err != nil {
		return nil, err
	}
	rightNode, err := b.build(right, depth+1)
	if err != nil {
		return nil, err
	}

	return &Decision{
		Left:           leftNode,
		Right:          rightNode,
		SplitAttribute: attr,
		SplitValue:     value,
	}, nil
}

// partition splits sample in a single stable pass. Rows keep their relative
// order and every row lands in exactly one side.
func partition(sample *Matrix, attr int, value float64) (left, right *Matrix) {
	left = sample.emptyLike(sample.Rows())
	right = sample.emptyLike(sample.Rows())
	for i := 0; i < sample.Rows(); i++ {
		row := sample.Row(i)
		if row[attr] < value {
			left.appendTrusted(row)
		} else {
			right.appendTrusted(row)
		}
	}
	return left, right
}
