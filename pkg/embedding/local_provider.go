package embedding

import (
	"context"
	"hash/fnv"
)

// LocalProvider is a deterministic, network-free embedding provider for
// tests and local dev, a stand-in next to the real network client. It
// hashes the input
// text into a low-dimensional deterministic vector; not semantically
// meaningful, only useful for exercising ordering/upsert/search plumbing.
type LocalProvider struct {
	Dim int
}

func NewLocalProvider(dim int) *LocalProvider {
	if dim <= 0 {
		dim = 32
	}
	return &LocalProvider{Dim: dim}
}

func (p *LocalProvider) Name() string   { return "local-deterministic" }
func (p *LocalProvider) Dimension() int { return p.Dim }

func (p *LocalProvider) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = hashVector(t, p.Dim)
	}
	return out, nil
}

func hashVector(text string, dim int) []float32 {
	v := make([]float32, dim)
	h := fnv.New64a()
	for i := 0; i < dim; i++ {
		h.Reset()
		_, _ = h.Write([]byte(text))
		_, _ = h.Write([]byte{byte(i)})
		sum := h.Sum64()
		// map to [-1, 1]
		v[i] = float32(sum%2000)/1000.0 - 1.0
	}
	return v
}
