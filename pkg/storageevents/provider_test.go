package storageevents

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlainTextProviderChunksByRuneCount(t *testing.T) {
	raw := []byte(strings.Repeat("a", 2500))
	result, err := PlainTextProvider{}.Produce(raw, "text/plain", 1000)
	assert.NoError(t, err)
	assert.Len(t, result.Chunks, 3)
	assert.Len(t, result.Chunks[0].Text, 1000)
	assert.Len(t, result.Chunks[2].Text, 500)
}

func TestPlainTextProviderEmptyInput(t *testing.T) {
	result, err := PlainTextProvider{}.Produce(nil, "text/plain", 100)
	assert.NoError(t, err)
	assert.Len(t, result.Chunks, 1)
	assert.Equal(t, "", result.Chunks[0].Text)
}

func TestMarkdownProviderMergesSmallBlocksIntoOneChunk(t *testing.T) {
	raw := []byte("# Title\n\nFirst paragraph.\n\nSecond paragraph.")
	result, err := MarkdownProvider{}.Produce(raw, "text/markdown", 1000)
	assert.NoError(t, err)
	assert.Len(t, result.Chunks, 1)
	assert.Contains(t, result.Chunks[0].Text, "Second paragraph.")
}

func TestMarkdownProviderNeverSplitsMidParagraph(t *testing.T) {
	a := strings.Repeat("a", 40)
	b := strings.Repeat("b", 40)
	raw := []byte(a + "\n\n" + b)
	result, err := MarkdownProvider{}.Produce(raw, "text/markdown", 50)
	assert.NoError(t, err)
	assert.Len(t, result.Chunks, 2)
	assert.Equal(t, a, result.Chunks[0].Text)
	assert.Equal(t, b, result.Chunks[1].Text)
}

func TestProviderRegistryResolvesByExtension(t *testing.T) {
	r := NewProviderRegistry()
	assert.Equal(t, "markdown", r.Resolve("notes/readme.md", "").Name())
	assert.Equal(t, "plaintext", r.Resolve("notes/readme.txt", "").Name())
}

func TestProviderRegistryResolvesByContentType(t *testing.T) {
	r := NewProviderRegistry()
	assert.Equal(t, "markdown", r.Resolve("notes/readme", "text/markdown").Name())
}

func TestProviderRegistryUnknownReturnsNil(t *testing.T) {
	r := NewProviderRegistry()
	assert.Nil(t, r.Resolve("notes/readme.pdf", ""))
}

func TestProviderRegistryRegisterOverride(t *testing.T) {
	r := NewProviderRegistry()
	r.Register(".csv", "text/csv", PlainTextProvider{})
	assert.Equal(t, "plaintext", r.Resolve("data.csv", "").Name())
}
