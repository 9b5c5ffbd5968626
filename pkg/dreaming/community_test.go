package dreaming

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healer-ai/p8fs/pkg/model"
)

func TestToGraphEdgesTypedPassthrough(t *testing.T) {
	in := []model.GraphEdge{{TargetID: "a", Weight: 0.5}}
	assert.Equal(t, in, toGraphEdges(in))
}

func TestToGraphEdgesNilIsNil(t *testing.T) {
	assert.Nil(t, toGraphEdges(nil))
}

func TestToGraphEdgesFromJSONRoundTrippedSlice(t *testing.T) {
	raw := []any{map[string]any{"target_id": "b", "weight": 0.9, "kind": "affinity"}}
	out := toGraphEdges(raw)
	require.Len(t, out, 1)
	assert.Equal(t, "b", out[0].TargetID)
	assert.Equal(t, 0.9, out[0].Weight)
}

func twoClusterAdjacency() map[string]map[string]float64 {
	adj := make(map[string]map[string]float64)
	addEdge(adj, "a1", "a2", 1)
	addEdge(adj, "a2", "a3", 1)
	addEdge(adj, "a1", "a3", 1)
	addEdge(adj, "b1", "b2", 1)
	addEdge(adj, "b2", "b3", 1)
	addEdge(adj, "b1", "b3", 1)
	addEdge(adj, "a1", "b1", 0.05) // weak bridge between the clusters
	return adj
}

func TestPropagateLabelsSeparatesWeaklyBridgedClusters(t *testing.T) {
	labels := propagateLabels(twoClusterAdjacency(), 10)

	assert.Equal(t, labels["a1"], labels["a2"])
	assert.Equal(t, labels["a2"], labels["a3"])
	assert.Equal(t, labels["b1"], labels["b2"])
	assert.Equal(t, labels["b2"], labels["b3"])
	assert.NotEqual(t, labels["a1"], labels["b1"])
}

func TestPropagateLabelsIsDeterministic(t *testing.T) {
	first := propagateLabels(twoClusterAdjacency(), 10)
	second := propagateLabels(twoClusterAdjacency(), 10)
	assert.Equal(t, first, second)
}

func TestPropagateLabelsEmptyGraph(t *testing.T) {
	assert.Empty(t, propagateLabels(map[string]map[string]float64{}, 10))
}

func TestAddEdgeIsSymmetricAndAccumulates(t *testing.T) {
	adj := make(map[string]map[string]float64)
	addEdge(adj, "x", "y", 0.4)
	addEdge(adj, "x", "y", 0.3)
	assert.InDelta(t, 0.7, adj["x"]["y"], 1e-9)
	assert.InDelta(t, 0.7, adj["y"]["x"], 1e-9)
}

func TestKeywordLabelPicksFrequentTokens(t *testing.T) {
	label := keywordLabel([]string{
		"authentication failed for login attempt",
		"login authentication token expired",
		"authentication service rejected login",
	})
	assert.Contains(t, label, "authentication")
	assert.Contains(t, label, "login")
}

func TestKeywordLabelSkipsStopwordsAndShortTokens(t *testing.T) {
	assert.Equal(t, "", keywordLabel([]string{"a an the to of it"}))
	assert.Equal(t, "", keywordLabel(nil))
}

func TestLabelCommunityFallsBackToKeywordsWithoutLLM(t *testing.T) {
	label := labelCommunity(context.Background(), nil, []string{"database migration rollout", "migration plan for database"})
	assert.Contains(t, label, "database")
}
