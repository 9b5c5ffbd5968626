package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/healer-ai/p8fs/pkg/errs"
)

// HTTPProvider calls a generic embeddings HTTP endpoint ({"input": [...]} ->
// {"embeddings": [[...]]}), the honest shape for a "pluggable by name"
// network provider when no vendor SDK exposes an embeddings call: a direct
// net/http client, in the same raw-HTTP style used for other provider calls
// in this core.
type HTTPProvider struct {
	Endpoint string
	APIKey   string
	Model    string
	Dim      int
	client   *http.Client
}

func NewHTTPProvider(endpoint, apiKey, model string, dim int) *HTTPProvider {
	return &HTTPProvider{
		Endpoint: endpoint,
		APIKey:   apiKey,
		Model:    model,
		Dim:      dim,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *HTTPProvider) Name() string   { return "http:" + p.Model }
func (p *HTTPProvider) Dimension() int { return p.Dim }

type httpEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type httpEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (p *HTTPProvider) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(httpEmbedRequest{Model: p.Model, Input: texts})
	if err != nil {
		return nil, errs.Internal("embedding.HTTPProvider.EncodeBatch", "marshal request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errs.Internal("embedding.HTTPProvider.EncodeBatch", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errs.Transient("embedding.HTTPProvider.EncodeBatch", "request failed", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, errs.Transient("embedding.HTTPProvider.EncodeBatch", fmt.Sprintf("status %d", resp.StatusCode), nil)
	}
	if resp.StatusCode >= 400 {
		return nil, errs.Internal("embedding.HTTPProvider.EncodeBatch", fmt.Sprintf("status %d: %s", resp.StatusCode, string(data)), nil)
	}
	var out httpEmbedResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errs.Internal("embedding.HTTPProvider.EncodeBatch", "decode response", err)
	}
	if len(out.Embeddings) != len(texts) {
		return nil, errs.Internal("embedding.HTTPProvider.EncodeBatch", "response length mismatch", nil)
	}
	return out.Embeddings, nil
}
