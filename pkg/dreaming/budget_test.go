package dreaming

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultTokenBudgetAvailableUsesCeiling(t *testing.T) {
	b := DefaultTokenBudget()
	// TPM ceiling (8000) is smaller than context window minus overhead (198500).
	assert.Equal(t, 8_000, b.Available())
}

func TestTokenBudgetAvailableUsesWindowWhenNoCeiling(t *testing.T) {
	b := TokenBudget{ContextWindowTokens: 10_000, PromptOverheadTokens: 1_000}
	assert.Equal(t, 9_000, b.Available())
}

func TestTokenBudgetAvailableNeverNegative(t *testing.T) {
	b := TokenBudget{ContextWindowTokens: 100, PromptOverheadTokens: 1_000}
	assert.Equal(t, 0, b.Available())
}

func TestEstimateTokensEmpty(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
}

func TestEstimateTokensRoundsUpToOne(t *testing.T) {
	assert.Equal(t, 1, EstimateTokens("hi"))
}

func TestEstimateTokensFourCharsPerToken(t *testing.T) {
	assert.Equal(t, 3, EstimateTokens(strings.Repeat("a", 12)))
}

func TestChunkRecordsNeverSplitsARecord(t *testing.T) {
	budget := TokenBudget{ContextWindowTokens: 20, PromptOverheadTokens: 0, TPMCeilingTokens: 0}
	records := []string{strings.Repeat("a", 100), strings.Repeat("b", 8), strings.Repeat("c", 8)}

	chunks := ChunkRecords(records, budget)
	// Oversized record gets its own chunk rather than being split or dropped.
	assert.Equal(t, records[0], chunks[0][0])
	assert.Len(t, chunks[0], 1)
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	assert.Equal(t, len(records), total)
}

func TestChunkRecordsGroupsWithinBudget(t *testing.T) {
	budget := TokenBudget{ContextWindowTokens: 100, PromptOverheadTokens: 0, TPMCeilingTokens: 0}
	// Each record ~1 token (4 chars); budget is 100 tokens, so all fit in one chunk.
	records := []string{"abcd", "efgh", "ijkl"}
	chunks := ChunkRecords(records, budget)
	assert.Len(t, chunks, 1)
	assert.Len(t, chunks[0], 3)
}

func TestChunkTextShortTextSingleChunk(t *testing.T) {
	chunks := ChunkText("short text", DefaultTokenBudget())
	assert.Equal(t, []string{"short text"}, chunks)
}

func TestChunkTextSplitsLongText(t *testing.T) {
	budget := TokenBudget{ContextWindowTokens: 10, PromptOverheadTokens: 0, TPMCeilingTokens: 0}
	text := strings.Repeat("x", 100)
	chunks := ChunkText(text, budget)
	assert.Greater(t, len(chunks), 1)
	var rebuilt strings.Builder
	for _, c := range chunks {
		rebuilt.WriteString(c)
	}
	assert.Equal(t, text, rebuilt.String())
}
