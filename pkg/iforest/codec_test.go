package iforest

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fittedForest(t *testing.T) (*Forest, *Matrix) {
	t.Helper()
	x := mustMatrix(t, append(cluster(80, 3, 1, 30), []float64{6, -6, 6}))
	f := New(32, 15, WithSeed(30))
	require.NoError(t, f.Fit(x))
	return f, x
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	f, x := fittedForest(t)

	var buf bytes.Buffer
	require.NoError(t, f.Encode(&buf))

	g, err := Decode(&buf)
	require.NoError(t, err)

	assert.Equal(t, f.Record(), g.Record())
	assert.Equal(t, f.SampleSize(), g.SampleSize())
	assert.Equal(t, f.NTrees(), g.NTrees())
	assert.Equal(t, f.NFeatures(), g.NFeatures())

	want, err := f.AnomalyScore(x)
	require.NoError(t, err)
	got, err := g.AnomalyScore(x)
	require.NoError(t, err)
	assert.Equal(t, want, got, "scores must be bit-identical after reload")
}

func TestJSONMarshalerRoundTrip(t *testing.T) {
	f, x := fittedForest(t)

	data, err := json.Marshal(f)
	require.NoError(t, err)

	obs := &recordingObserver{}
	g := New(0, 1, WithWorkers(2), WithObserver(obs))
	require.NoError(t, json.Unmarshal(data, g))

	assert.Equal(t, f.Record(), g.Record())

	want, err := f.AnomalyScore(x)
	require.NoError(t, err)
	got, err := g.AnomalyScore(x)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, x.Rows(), obs.scored, "observer survives unmarshal")
}

func TestDecodeUnfittedForest(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(16, 4).Encode(&buf))

	g, err := Decode(&buf, WithSeed(1))
	require.NoError(t, err)
	assert.False(t, g.Fitted())
	assert.Equal(t, 16, g.SampleSize())
	assert.Equal(t, 4, g.NTrees())

	require.NoError(t, g.Fit(mustMatrix(t, cluster(20, 2, 1, 31))))
	assert.Len(t, g.Trees(), 4)
}

func TestFromRecordRejectsCorruptModels(t *testing.T) {
	leaf := func(size int) *NodeRecord { return &NodeRecord{Kind: KindLeaf, Size: size} }
	valid := func() *ForestRecord {
		return &ForestRecord{
			SampleSize:  4,
			NTrees:      1,
			NFeatures:   2,
			HeightLimit: 2,
			Trees: []*NodeRecord{{
				Kind: KindDecision, SplitAttribute: 1, SplitValue: 0.5,
				Left: leaf(1), Right: leaf(3),
			}},
		}
	}

	_, err := FromRecord(valid())
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(r *ForestRecord)
	}{
		{"zero trees configured", func(r *ForestRecord) { r.NTrees = 0 }},
		{"negative sample size", func(r *ForestRecord) { r.SampleSize = -1 }},
		{"tree count mismatch", func(r *ForestRecord) { r.NTrees = 3 }},
		{"missing features", func(r *ForestRecord) { r.NFeatures = 0 }},
		{"wrong height limit", func(r *ForestRecord) { r.HeightLimit = 5 }},
		{"attribute out of range", func(r *ForestRecord) { r.Trees[0].SplitAttribute = 2 }},
		{"missing child", func(r *ForestRecord) { r.Trees[0].Left = nil }},
		{"negative leaf", func(r *ForestRecord) { r.Trees[0].Right = leaf(-1) }},
		{"unknown kind", func(r *ForestRecord) { r.Trees[0].Kind = "branch" }},
		{"too deep", func(r *ForestRecord) {
			r.Trees[0].Left = &NodeRecord{
				Kind: KindDecision,
				Left: &NodeRecord{Kind: KindDecision, Left: leaf(1), Right: leaf(1)},
				Right: leaf(1),
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := valid()
			tt.mutate(rec)
			_, err := FromRecord(rec)
			assert.ErrorIs(t, err, ErrCorruptModel)
		})
	}
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"n_trees": "many"}`))
	assert.ErrorIs(t, err, ErrCorruptModel)

	var f Forest
	err = json.Unmarshal([]byte(`{"sample_size":4,"n_trees":1,"n_features":1,"height_limit":2,"trees":[{"kind":"leaf","size":-2}]}`), &f)
	assert.ErrorIs(t, err, ErrCorruptModel)
}

func TestRecordJSONShape(t *testing.T) {
	f := New(0, 1, WithSeed(3))
	require.NoError(t, f.Fit(mustMatrix(t, [][]float64{{1}, {2}})))

	data, err := json.Marshal(f)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.EqualValues(t, 2, raw["sample_size"])
	assert.EqualValues(t, 1, raw["n_trees"])
	assert.EqualValues(t, 1, raw["n_features"])
	assert.EqualValues(t, 1, raw["height_limit"])

	trees, ok := raw["trees"].([]any)
	require.True(t, ok)
	require.Len(t, trees, 1)
	root := trees[0].(map[string]any)
	assert.Contains(t, []any{KindDecision, KindLeaf}, root["kind"])
}
