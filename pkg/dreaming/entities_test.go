package dreaming

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healer-ai/p8fs/pkg/model"
)

func TestDedupeRelatedEntitiesSumsMentionsKeepsBestConfidence(t *testing.T) {
	in := []model.RelatedEntity{
		{EntityID: "e1", Mentions: 2, Confidence: 0.6},
		{EntityID: "e2", Mentions: 1, Confidence: 0.9},
		{EntityID: "e1", Mentions: 3, Confidence: 0.8},
	}
	out := dedupeRelatedEntities(in)
	require.Len(t, out, 2)
	assert.Equal(t, "e1", out[0].EntityID)
	assert.Equal(t, 5, out[0].Mentions)
	assert.Equal(t, 0.8, out[0].Confidence)
	assert.Equal(t, "e2", out[1].EntityID)
	assert.Equal(t, 1, out[1].Mentions)
}

func TestDedupeRelatedEntitiesEmptyInput(t *testing.T) {
	assert.Empty(t, dedupeRelatedEntities(nil))
}

func TestDedupeRelatedEntitiesPreservesFirstSeenOrder(t *testing.T) {
	in := []model.RelatedEntity{{EntityID: "z", Mentions: 1}, {EntityID: "a", Mentions: 1}, {EntityID: "z", Mentions: 1}}
	out := dedupeRelatedEntities(in)
	require.Len(t, out, 2)
	assert.Equal(t, "z", out[0].EntityID)
	assert.Equal(t, "a", out[1].EntityID)
}

func TestEntityExtractionDecodesLLMShape(t *testing.T) {
	raw := "```json\n{\"entities\":[{\"entity_id\":\"sarah-chen\",\"entity_type\":\"person\",\"entity_name\":\"Sarah Chen\",\"mentions\":2,\"confidence\":0.95}]}\n```"
	var parsed entityExtraction
	require.NoError(t, ExtractJSON(raw, &parsed))
	require.Len(t, parsed.Entities, 1)
	assert.Equal(t, "sarah-chen", parsed.Entities[0].EntityID)
	assert.Equal(t, 2, parsed.Entities[0].Mentions)
}
