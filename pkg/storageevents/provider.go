package storageevents

import (
	"path/filepath"
	"strings"
)

// Chunk is one piece of a file's content, ready to become a content_chunk
// Resource.
type Chunk struct {
	Text string
}

// ContentResult is a ContentProvider's output: file-level metadata plus the
// ordered chunk list.
type ContentResult struct {
	Metadata map[string]any
	Chunks   []Chunk
}

// ContentProvider turns raw object bytes into chunked content. Concrete
// providers are selected by extension or content type; PDF/audio/docx
// extraction lives in external collaborators and has no registered
// provider here.
type ContentProvider interface {
	// Name identifies the provider for logging/dead-letter diagnostics.
	Name() string
	// Produce chunks raw content. chunkSize is the per-chunk size limit:
	// PlainTextProvider counts runes; MarkdownProvider counts bytes and keeps
	// a paragraph longer than chunkSize whole, as one oversized chunk.
	Produce(raw []byte, contentType string, chunkSize int) (ContentResult, error)
}

// DefaultChunkSize is used when a caller does not override it, sized to stay
// comfortably under typical embedding-model input limits.
const DefaultChunkSize = 2000

// PlainTextProvider treats the object as opaque UTF-8 text, splitting on
// chunkSize rune boundaries without regard to structure.
type PlainTextProvider struct{}

func (PlainTextProvider) Name() string { return "plaintext" }

func (PlainTextProvider) Produce(raw []byte, contentType string, chunkSize int) (ContentResult, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	text := string(raw)
	runes := []rune(text)
	var chunks []Chunk
	for start := 0; start < len(runes); start += chunkSize {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, Chunk{Text: string(runes[start:end])})
	}
	if len(chunks) == 0 {
		chunks = []Chunk{{Text: ""}}
	}
	return ContentResult{
		Metadata: map[string]any{"content_type": "text/plain", "byte_size": len(raw)},
		Chunks:   chunks,
	}, nil
}

// MarkdownProvider splits on blank-line-delimited blocks (headings,
// paragraphs), merging adjacent blocks while the merged chunk stays within
// chunkSize bytes. A paragraph is never split: one that exceeds chunkSize
// on its own becomes a single oversized chunk.
type MarkdownProvider struct{}

func (MarkdownProvider) Name() string { return "markdown" }

func (MarkdownProvider) Produce(raw []byte, contentType string, chunkSize int) (ContentResult, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	blocks := strings.Split(strings.ReplaceAll(string(raw), "\r\n", "\n"), "\n\n")

	var chunks []Chunk
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, Chunk{Text: strings.TrimSpace(cur.String())})
			cur.Reset()
		}
	}
	for _, block := range blocks {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		if cur.Len() > 0 && cur.Len()+len(block)+2 > chunkSize {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(block)
		if cur.Len() > chunkSize {
			flush()
		}
	}
	flush()
	if len(chunks) == 0 {
		chunks = []Chunk{{Text: ""}}
	}

	headingCount := strings.Count(string(raw), "\n#")
	return ContentResult{
		Metadata: map[string]any{"content_type": "text/markdown", "heading_count": headingCount, "byte_size": len(raw)},
		Chunks:   chunks,
	}, nil
}

// ProviderRegistry resolves a ContentProvider by file extension or
// declared content type, content type winning when both match.
type ProviderRegistry struct {
	byExt     map[string]ContentProvider
	byContent map[string]ContentProvider
}

// NewProviderRegistry builds the default registry: markdown for .md/.markdown
// and text/markdown, plain text for .txt/.text and text/plain.
func NewProviderRegistry() *ProviderRegistry {
	md := MarkdownProvider{}
	txt := PlainTextProvider{}
	return &ProviderRegistry{
		byExt: map[string]ContentProvider{
			".md":       md,
			".markdown": md,
			".txt":      txt,
			".text":     txt,
		},
		byContent: map[string]ContentProvider{
			"text/markdown": md,
			"text/plain":    txt,
		},
	}
}

// Register adds or overrides a provider for the given extension (including
// the leading dot) or content type.
func (r *ProviderRegistry) Register(ext, contentType string, p ContentProvider) {
	if ext != "" {
		r.byExt[strings.ToLower(ext)] = p
	}
	if contentType != "" {
		r.byContent[strings.ToLower(contentType)] = p
	}
}

// Resolve picks a provider for path/contentType. A nil return means "no
// provider": the caller logs and records a File row only, it is not an
// error.
func (r *ProviderRegistry) Resolve(path, contentType string) ContentProvider {
	if contentType != "" {
		if p, ok := r.byContent[strings.ToLower(contentType)]; ok {
			return p
		}
	}
	ext := strings.ToLower(filepath.Ext(path))
	if p, ok := r.byExt[ext]; ok {
		return p
	}
	return nil
}
