package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healer-ai/p8fs/pkg/errs"
)

func TestHTTPProviderNameIncludesModel(t *testing.T) {
	p := NewHTTPProvider("http://example", "", "text-embed-3", 1536)
	assert.Equal(t, "http:text-embed-3", p.Name())
	assert.Equal(t, 1536, p.Dimension())
}

func TestHTTPProviderEncodeBatchSendsAuthAndDecodesResponse(t *testing.T) {
	var gotAuth string
	var gotBody httpEmbedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(httpEmbedResponse{Embeddings: [][]float32{{0.1, 0.2}, {0.3, 0.4}}})
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, "secret-key", "text-embed-3", 2)
	vecs, err := p.EncodeBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret-key", gotAuth)
	assert.Equal(t, []string{"a", "b"}, gotBody.Input)
	assert.Equal(t, [][]float32{{0.1, 0.2}, {0.3, 0.4}}, vecs)
}

func TestHTTPProviderEncodeBatchServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, "", "m", 2)
	_, err := p.EncodeBatch(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindTransient))
}

func TestHTTPProviderEncodeBatchRejectsLengthMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(httpEmbedResponse{Embeddings: [][]float32{{0.1}}})
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, "", "m", 1)
	_, err := p.EncodeBatch(context.Background(), []string{"a", "b"})
	assert.Error(t, err)
}
