package sessions

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynopsisShortStringUnchanged(t *testing.T) {
	assert.Equal(t, "hello", synopsis("hello"))
}

func TestSynopsisTruncatesAtLimit(t *testing.T) {
	long := strings.Repeat("a", 1000)
	out := synopsis(long)
	assert.Len(t, out, SynopsisBytes)
}

func TestSynopsisRespectsRuneBoundary(t *testing.T) {
	// Multi-byte runes positioned so a naive byte cut would split one.
	long := strings.Repeat("é", 300) // 2 bytes each, 600 bytes total
	out := synopsis(long)
	assert.True(t, len(out) <= SynopsisBytes)
	for _, r := range out {
		assert.Equal(t, 'é', r)
	}
}

func TestDecodeMessagesNil(t *testing.T) {
	assert.Nil(t, DecodeMessages(nil))
}

func TestDecodeMessagesTypedPassthrough(t *testing.T) {
	in := []Message{{Ordinal: 0, Role: "user", Content: "hi"}}
	assert.Equal(t, in, DecodeMessages(in))
}

func TestDecodeMessagesFromJSONRoundTrippedSlice(t *testing.T) {
	raw := []any{
		map[string]any{"ordinal": float64(0), "role": "user", "content": "hi"},
		map[string]any{"ordinal": float64(1), "role": "assistant", "content": "…", "_compressed": true},
	}
	out := DecodeMessages(raw)
	require.Len(t, out, 2)
	assert.Equal(t, "user", out[0].Role)
	assert.True(t, out[1].Compressed)
	assert.Equal(t, 1, out[1].Ordinal)
}

func TestDecodeMessagesMalformedIsNil(t *testing.T) {
	assert.Nil(t, DecodeMessages("not a list"))
}

func TestEstimateTokensMatchesHeuristic(t *testing.T) {
	assert.Equal(t, 0, estimateTokens(""))
	assert.Equal(t, 1, estimateTokens("ab"))
	assert.Equal(t, 3, estimateTokens(strings.Repeat("x", 12)))
}

func TestCompressionThresholdConstants(t *testing.T) {
	// The offload rule is load-bearing for readers of the _compressed flag.
	assert.Equal(t, 1024, CompressThresholdBytes)
	assert.Equal(t, 256, SynopsisBytes)
}
