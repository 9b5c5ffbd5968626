package rem

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/healer-ai/p8fs/pkg/model"
)

func TestCombineSetsSingleSetPassthrough(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, combineSets([][]string{{"a", "b"}}, CombinatorAND))
}

func TestCombineSetsANDIntersection(t *testing.T) {
	sets := [][]string{{"r1", "r2", "r3"}, {"r2", "r3", "r4"}}
	out := combineSets(sets, CombinatorAND)
	assert.ElementsMatch(t, []string{"r2", "r3"}, out)
}

func TestCombineSetsORUnion(t *testing.T) {
	sets := [][]string{{"r1", "r2"}, {"r2", "r3"}}
	out := combineSets(sets, CombinatorOR)
	assert.ElementsMatch(t, []string{"r1", "r2", "r3"}, out)
}

func TestCombineSetsNOTExcludesSubsequentSets(t *testing.T) {
	sets := [][]string{{"r1", "r2", "r3"}, {"r2"}, {"r3"}}
	out := combineSets(sets, CombinatorNOT)
	assert.Equal(t, []string{"r1"}, out)
}

func TestCombineSetsEmpty(t *testing.T) {
	assert.Nil(t, combineSets(nil, CombinatorAND))
}

func TestDedupPreservesFirstOccurrenceOrder(t *testing.T) {
	out := dedup([]string{"a", "b", "a", "c", "b"})
	assert.Equal(t, []string{"a", "b", "c"}, out)
}

func TestDecodeGraphEdgesFromJSONRoundTrippedSlice(t *testing.T) {
	raw := []any{
		map[string]any{"target_id": "r2", "weight": float64(0.8), "kind": "affinity"},
		map[string]any{"target_id": "r3", "weight": 1, "kind": "affinity"},
	}
	edges, err := decodeGraphEdges(raw)
	assert.NoError(t, err)
	assert.Len(t, edges, 2)
	assert.Equal(t, "r2", edges[0].TargetID)
	assert.Equal(t, 0.8, edges[0].Weight)
	assert.Equal(t, float64(1), edges[1].Weight)
}

func TestDecodeGraphEdgesNilIsEmpty(t *testing.T) {
	edges, err := decodeGraphEdges(nil)
	assert.NoError(t, err)
	assert.Nil(t, edges)
}

func TestDecodeGraphEdgesTypedSlicePassthrough(t *testing.T) {
	in := []model.GraphEdge{{TargetID: "x", Weight: 0.5}}
	edges, err := decodeGraphEdges(in)
	assert.NoError(t, err)
	assert.Equal(t, in, edges)
}

func TestDecodeGraphEdgesUnrecognizedShapeErrors(t *testing.T) {
	_, err := decodeGraphEdges(42)
	assert.Error(t, err)
}
