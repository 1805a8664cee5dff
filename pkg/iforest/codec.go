package iforest

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
)

// Node kinds in a NodeRecord.
const (
	KindDecision = "decision"
	KindLeaf     = "leaf"
)

// NodeRecord is the serialized form of a Node.
type NodeRecord struct {
	Kind           string      `json:"kind"`
	Left           *NodeRecord `json:"left,omitempty"`
	Right          *NodeRecord `json:"right,omitempty"`
	SplitAttribute int         `json:"split_attribute,omitempty"`
	SplitValue     float64     `json:"split_value,omitempty"`
	Size           int         `json:"size,omitempty"`
}

// ForestRecord is the serialized form of a Forest. Trees is empty for a
// forest that has not been fitted.
type ForestRecord struct {
	SampleSize  int           `json:"sample_size"`
	NTrees      int           `json:"n_trees"`
	NFeatures   int           `json:"n_features"`
	HeightLimit int           `json:"height_limit"`
	Trees       []*NodeRecord `json:"trees"`
}

// Record captures the forest parameters and trees.
func (f *Forest) Record() *ForestRecord {
	s := f.snapshot()
	rec := &ForestRecord{
		SampleSize:  s.sampleSize,
		NTrees:      s.nTrees,
		NFeatures:   s.nFeatures,
		HeightLimit: heightLimit(s.sampleSize),
		Trees:       make([]*NodeRecord, 0, len(s.trees)),
	}
	for _, t := range s.trees {
		rec.Trees = append(rec.Trees, nodeRecord(t.Root))
	}
	return rec
}

func nodeRecord(n Node) *NodeRecord {
	switch n := n.(type) {
	case *Decision:
		return &NodeRecord{
			Kind:           KindDecision,
			Left:           nodeRecord(n.Left),
			Right:          nodeRecord(n.Right),
			SplitAttribute: n.SplitAttribute,
			SplitValue:     n.SplitValue,
		}
	case *Leaf:
		return &NodeRecord{Kind: KindLeaf, Size: n.Size}
	default:
		panic("iforest: unknown node type")
	}
}

// FromRecord rebuilds a forest from rec after checking the tree invariants.
// opts apply as in New; the seed only matters if the forest is fitted again.
func FromRecord(rec *ForestRecord, opts ...Option) (*Forest, error) {
	if rec == nil {
		return nil, fmt.Errorf("%w: nil record", ErrCorruptModel)
	}
	if rec.NTrees < 1 || rec.SampleSize < 0 {
		return nil, fmt.Errorf("%w: sample size %d, trees %d", ErrCorruptModel, rec.SampleSize, rec.NTrees)
	}

	f := New(rec.SampleSize, rec.NTrees, opts...)
	if len(rec.Trees) == 0 {
		return f, nil
	}

	if len(rec.Trees) != rec.NTrees {
		return nil, fmt.Errorf("%w: %d trees, want %d", ErrCorruptModel, len(rec.Trees), rec.NTrees)
	}
	if rec.SampleSize == 0 || rec.NFeatures < 1 {
		return nil, fmt.Errorf("%w: fitted forest needs sample size and features", ErrCorruptModel)
	}
	limit := heightLimit(rec.SampleSize)
	if rec.HeightLimit != limit {
		return nil, fmt.Errorf("%w: height limit %d, want %d", ErrCorruptModel, rec.HeightLimit, limit)
	}

	trees := make([]Tree, len(rec.Trees))
	for i, nr := range rec.Trees {
		root, err := decodeNode(nr, 0, limit, rec.NFeatures)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		trees[i] = Tree{Root: root, HeightLimit: limit}
	}

	f.trees = trees
	f.nFeatures = rec.NFeatures
	return f, nil
}

func decodeNode(nr *NodeRecord, depth, limit, nFeatures int) (Node, error) {
	if nr == nil {
		return nil, fmt.Errorf("%w: missing node at depth %d", ErrCorruptModel, depth)
	}
	if depth > limit {
		return nil, fmt.Errorf("%w: depth %d exceeds height limit %d", ErrCorruptModel, depth, limit)
	}

	switch nr.Kind {
	case KindLeaf:
		if nr.Size < 0 {
			return nil, fmt.Errorf("%w: negative leaf size", ErrCorruptModel)
		}
		return &Leaf{Size: nr.Size}, nil
	case KindDecision:
		if nr.SplitAttribute < 0 || nr.SplitAttribute >= nFeatures {
			return nil, fmt.Errorf("%w: split attribute %d of %d", ErrCorruptModel, nr.SplitAttribute, nFeatures)
		}
		if math.IsNaN(nr.SplitValue) || math.IsInf(nr.SplitValue, 0) {
			return nil, fmt.Errorf("%w: non-finite split value", ErrCorruptModel)
		}
		left, err := decodeNode(nr.Left, depth+1, limit, nFeatures)
		if err != nil {
			return nil, err
		}
		right, err := decodeNode(nr.Right, depth+1, limit, nFeatures)
		if err != nil {
			return nil, err
		}
		return &Decision{
			Left:           left,
			Right:          right,
			SplitAttribute: nr.SplitAttribute,
			SplitValue:     nr.SplitValue,
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown node kind %q", ErrCorruptModel, nr.Kind)
	}
}

// MarshalJSON implements json.Marshaler.
func (f *Forest) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Record())
}

// UnmarshalJSON implements json.Unmarshaler. Workers, seed and observer of f
// are kept.
func (f *Forest) UnmarshalJSON(data []byte) error {
	var rec ForestRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptModel, err)
	}
	decoded, err := FromRecord(&rec)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sampleSize = decoded.sampleSize
	f.nTrees = decoded.nTrees
	f.nFeatures = decoded.nFeatures
	f.trees = decoded.trees
	if f.workers < 1 {
		f.workers = defaultWorkers()
	}
	if f.observer == nil {
		f.observer = NopObserver{}
	}
	return nil
}

// Encode writes the forest to w as JSON.
func (f *Forest) Encode(w io.Writer) error {
	return json.NewEncoder(w).Encode(f.Record())
}

// Decode reads a forest written by Encode.
func Decode(r io.Reader, opts ...Option) (*Forest, error) {
	var rec ForestRecord
	if err := json.NewDecoder(r).Decode(&rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptModel, err)
	}
	return FromRecord(&rec, opts...)
}
