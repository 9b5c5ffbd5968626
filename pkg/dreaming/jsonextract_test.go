package dreaming

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type moments struct {
	Moments []moment `json:"moments"`
}

type moment struct {
	Name                  string   `json:"name"`
	Content               string   `json:"content"`
	ResourceTimestamp     string   `json:"resource_timestamp"`
	ResourceEndsTimestamp string   `json:"resource_ends_timestamp"`
	MomentType            string   `json:"moment_type"`
	EmotionTags           []string `json:"emotion_tags"`
	TopicTags             []string `json:"topic_tags"`
	PresentPersons        []any    `json:"present_persons"`
}

func TestExtractJSONPlain(t *testing.T) {
	var out moments
	err := ExtractJSON(`{"moments":[{"name":"M1","content":"c","resource_timestamp":"2024-03-18T08:00:00Z","resource_ends_timestamp":"2024-03-18T08:15:00Z","moment_type":"reflection","emotion_tags":[],"topic_tags":[],"present_persons":[]}]}`, &out)
	require.NoError(t, err)
	require.Len(t, out.Moments, 1)
	assert.Equal(t, "M1", out.Moments[0].Name)
}

func TestExtractJSONMarkdownFencedWithPreamble(t *testing.T) {
	// A realistic chatty-preamble response shape.
	raw := "Sure, here you go:\n\n```json\n{\"moments\":[{\"name\":\"M1\",\"content\":\"c\",\"resource_timestamp\":\"2024-03-18T08:00:00Z\",\"resource_ends_timestamp\":\"2024-03-18T08:15:00Z\",\"moment_type\":\"reflection\",\"emotion_tags\":[],\"topic_tags\":[],\"present_persons\":[]}]}\n```"

	var out moments
	err := ExtractJSON(raw, &out)
	require.NoError(t, err)
	require.Len(t, out.Moments, 1)
	m := out.Moments[0]
	assert.Equal(t, "M1", m.Name)
	assert.Equal(t, "c", m.Content)
	assert.Equal(t, "2024-03-18T08:00:00Z", m.ResourceTimestamp)
	assert.Equal(t, "2024-03-18T08:15:00Z", m.ResourceEndsTimestamp)
	assert.Equal(t, "reflection", m.MomentType)
}

func TestExtractJSONBareFence(t *testing.T) {
	raw := "```\n{\"moments\":[]}\n```"
	var out moments
	require.NoError(t, ExtractJSON(raw, &out))
	assert.Empty(t, out.Moments)
}

func TestExtractJSONBraceMatchedFragmentInProse(t *testing.T) {
	raw := `The model thinks the answer is {"moments":[{"name":"X","content":"y","moment_type":"reflection"}]} — hope that helps!`
	var out moments
	require.NoError(t, ExtractJSON(raw, &out))
	require.Len(t, out.Moments, 1)
	assert.Equal(t, "X", out.Moments[0].Name)
}

func TestExtractJSONUnparseableReturnsValidationError(t *testing.T) {
	var out moments
	err := ExtractJSON("not json at all, sorry", &out)
	assert.Error(t, err)
}

func TestExtractJSONNestedBracesDepthTracking(t *testing.T) {
	raw := `prefix {"a": {"b": [1,2,3]}, "c": "}"} suffix`
	var out map[string]any
	require.NoError(t, ExtractJSON(raw, &out))
	assert.Contains(t, out, "a")
}
