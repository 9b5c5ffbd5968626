package dreaming

import (
	"context"
	"fmt"
	"time"

	"github.com/healer-ai/p8fs/pkg/model"
	"github.com/healer-ai/p8fs/pkg/obs"
	"github.com/healer-ai/p8fs/pkg/repository"
	"github.com/rs/zerolog"
)

// AffinityConfig tunes the resource-affinity pass.
type AffinityConfig struct {
	// TopK is the number of nearest neighbors to consider per resource.
	TopK int
	// SimilarityThreshold filters the initial nearest-neighbor lookup.
	SimilarityThreshold float64
	// UseLLM enables the second-pass LLM scoring of each candidate pair; when
	// false, the cosine score doubles as the edge weight.
	UseLLM bool
	// LLMThreshold filters candidates after LLM scoring (only consulted when
	// UseLLM is true).
	LLMThreshold float64
}

// DefaultAffinityConfig is the starting point most deployments keep.
func DefaultAffinityConfig() AffinityConfig {
	return AffinityConfig{
		TopK:                5,
		SimilarityThreshold: 0.75,
		UseLLM:              false,
		LLMThreshold:        0.6,
	}
}

type affinityScore struct {
	TargetID  string  `json:"target_id"`
	Affinity  float64 `json:"affinity"`
	Rationale string  `json:"rationale"`
}

const affinitySystemPrompt = `You judge whether two pieces of content are meaningfully related for a memory graph.
Given a source passage and a candidate passage, respond with ONLY a JSON object of the shape:
{"affinity": 0.0, "rationale": "one sentence"}
affinity is a number from 0 (unrelated) to 1 (strongly related). Be conservative: shared generic vocabulary alone is not affinity.`

// BuildAffinity finds, for each resource touched within lookback, its
// top-K nearest neighbors by content embedding
// (repository.Repository.SemanticSearch, reusing each source resource's own
// content as the query since Repository exposes no accessor for a stored
// entity's raw embedding vector), optionally re-score each candidate pair
// with an LLM judgment, and write the survivors onto the source resource's
// graph_edges.
func BuildAffinity(ctx context.Context, sp *storageProviders, tenantID string, lookback time.Duration, llm *LLM, cfg AffinityConfig) (int, error) {
	log := obs.WithTenant(obs.Component("dreaming.affinity"), tenantID)

	resources, err := repository.New(sp.Storage, sp.KV, sp.Embeddings, tenantID, "resources")
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-lookback)
	rows, err := resources.Select(ctx, nil, "", 200)
	if err != nil {
		return 0, err
	}

	written := 0
	for _, r := range rows {
		ts, ok := rowTime(r["created_at"])
		if ok && ts.Before(cutoff) {
			continue
		}
		content := rowString(r["content"])
		if content == "" {
			continue
		}
		sourceID := r.ID()

		hits, err := resources.SemanticSearch(ctx, content, "content", cfg.TopK+1, cfg.SimilarityThreshold)
		if err != nil {
			log.Warn().Err(err).Str("resource_id", sourceID).Msg("affinity nearest-neighbor search failed, skipping")
			continue
		}

		edges := make([]model.GraphEdge, 0, cfg.TopK)
		for _, hit := range hits {
			targetID := hit.ID()
			if targetID == sourceID {
				continue
			}
			score, _ := hit["_score"].(float64)

			edge := model.GraphEdge{TargetID: targetID, Weight: score, Kind: "affinity"}
			if cfg.UseLLM {
				scored, ok := scoreAffinityLLM(ctx, llm, log, content, rowString(hit["content"]), targetID)
				if !ok {
					continue
				}
				if scored.Affinity < cfg.LLMThreshold {
					continue
				}
				edge.Weight = scored.Affinity
			}
			edges = append(edges, edge)
			if len(edges) >= cfg.TopK {
				break
			}
		}
		if len(edges) == 0 {
			continue
		}

		r["graph_edges"] = edges
		if _, err := resources.Upsert(ctx, []model.Entity{r}, false); err != nil {
			log.Warn().Err(err).Str("resource_id", sourceID).Msg("affinity edge write failed")
			continue
		}
		written++
	}
	return written, nil
}

func scoreAffinityLLM(ctx context.Context, llm *LLM, log zerolog.Logger, sourceContent, candidateContent, targetID string) (affinityScore, bool) {
	prompt := fmt.Sprintf("Source:\n%s\n\nCandidate:\n%s", sourceContent, candidateContent)
	resp, err := llm.Complete(ctx, affinitySystemPrompt, prompt)
	if err != nil {
		log.Warn().Err(err).Str("target_id", targetID).Msg("affinity LLM scoring call failed, skipping candidate")
		return affinityScore{}, false
	}
	var scored affinityScore
	if err := ExtractJSON(resp, &scored); err != nil {
		log.Warn().Err(err).Str("target_id", targetID).Msg("affinity LLM response was not parseable JSON, skipping candidate")
		return affinityScore{}, false
	}
	scored.TargetID = targetID
	return scored, true
}
