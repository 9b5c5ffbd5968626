// Package embedding implements a batched, provider-abstracted text-to-vector
// encoder with an ordering guarantee and a distinct Dependency-kind failure
// when unconfigured. The Anthropic Messages API used elsewhere in this core
// for chat-style calls does not expose an embeddings endpoint, so the
// network provider here models a generic HTTP embeddings endpoint instead of
// claiming SDK support that does not exist.
package embedding

import (
	"context"

	"github.com/healer-ai/p8fs/pkg/errs"
)

// Provider produces fixed-dimension vectors for one or more strings.
type Provider interface {
	Name() string
	Dimension() int
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Service holds the single active provider, initialized once at startup
// and shared across tenants.
type Service struct {
	provider Provider
}

func NewService(p Provider) *Service { return &Service{provider: p} }

// Configured reports whether an embedding provider is wired. Callers use
// this to decide whether to skip embedding rather than abort.
func (s *Service) Configured() bool { return s.provider != nil }

func (s *Service) Dimension() int {
	if s.provider == nil {
		return 0
	}
	return s.provider.Dimension()
}

// ActiveProviderName records which provider produced a vector, stored
// alongside the embedding row so a later provider swap can be detected and
// re-embedded rather than silently compared cross-provider.
func (s *Service) ActiveProviderName() string {
	if s.provider == nil {
		return ""
	}
	return s.provider.Name()
}

// EncodeBatch preserves input order: EncodeBatch(texts)[i] corresponds to
// texts[i]. Returns a Dependency error if no provider is configured.
func (s *Service) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if s.provider == nil {
		return nil, errs.Dependency("embedding.EncodeBatch", "no embedding provider configured", nil)
	}
	if len(texts) == 0 {
		return nil, nil
	}
	return s.provider.EncodeBatch(ctx, texts)
}

// Encode is the single-string convenience form of EncodeBatch.
func (s *Service) Encode(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EncodeBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, nil
	}
	return vecs[0], nil
}
