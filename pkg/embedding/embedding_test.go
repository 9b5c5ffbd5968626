package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healer-ai/p8fs/pkg/errs"
)

type stubProvider struct {
	name string
	dim  int
}

func (p stubProvider) Name() string      { return p.name }
func (p stubProvider) Dimension() int    { return p.dim }
func (p stubProvider) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

func TestUnconfiguredServiceIsNotConfigured(t *testing.T) {
	s := NewService(nil)
	assert.False(t, s.Configured())
	assert.Equal(t, 0, s.Dimension())
	assert.Equal(t, "", s.ActiveProviderName())
}

func TestEncodeBatchFailsDependencyWhenUnconfigured(t *testing.T) {
	s := NewService(nil)
	_, err := s.EncodeBatch(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindDependency))
}

func TestEncodeBatchPreservesOrder(t *testing.T) {
	s := NewService(stubProvider{name: "local", dim: 1})
	vecs, err := s.EncodeBatch(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, float32(1), vecs[0][0])
	assert.Equal(t, float32(2), vecs[1][0])
	assert.Equal(t, float32(3), vecs[2][0])
}

func TestEncodeBatchEmptyInput(t *testing.T) {
	s := NewService(stubProvider{name: "local", dim: 1})
	vecs, err := s.EncodeBatch(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, vecs)
}

func TestEncodeSingleString(t *testing.T) {
	s := NewService(stubProvider{name: "local", dim: 1})
	v, err := s.Encode(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, float32(5), v[0])
}

func TestActiveProviderNameAndDimension(t *testing.T) {
	s := NewService(stubProvider{name: "openai-like", dim: 1536})
	assert.True(t, s.Configured())
	assert.Equal(t, "openai-like", s.ActiveProviderName())
	assert.Equal(t, 1536, s.Dimension())
}
