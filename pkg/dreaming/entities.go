package dreaming

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/healer-ai/p8fs/pkg/entity"
	"github.com/healer-ai/p8fs/pkg/model"
	"github.com/healer-ai/p8fs/pkg/obs"
	"github.com/healer-ai/p8fs/pkg/repository"
)

const entityExtractorSystemPrompt = `You are the entity-extraction pass of a memory substrate's dreaming pipeline.
Given one piece of ingested content (a file chunk, chat turn, or derived note), extract the named entities it mentions.

Respond with ONLY a JSON object of the shape:
{"entities": [{"entity_id": "lowercase-hyphenated", "entity_type": "person|organization|project|technology|location|other", "entity_name": "Display Name", "mentions": 1, "confidence": 0.9}]}

entity_id is the lowercase-hyphenated form of the name ("Sarah Chen" -> "sarah-chen").
mentions counts how many times the entity appears in this content.
confidence is 0 to 1. Skip pronouns, generic nouns, and anything you cannot name concretely.`

// entityExtraction is the structured-output shape of one extraction call.
// It reuses model.RelatedEntity directly: the LLM is asked for exactly the
// record shape that ends up on the resource.
type entityExtraction struct {
	Entities []model.RelatedEntity `json:"entities"`
}

// EntityPipeline implements the entity-extraction sub-pipeline: for each
// recent resource, extract mentions via the LLM, resolve each against the
// tenant's canonical entity registry so surface forms collapse onto stable
// slugs, and persist the resolved set onto the resource's related_entities
// so the reverse-index dual-write fires.
type EntityPipeline struct {
	llm      *LLM
	resolver *entity.Resolver
}

// NewEntityPipeline wires the LLM extractor and the canonical-entity
// resolver into one pipeline.
func NewEntityPipeline(llm *LLM, registry entity.Registry) *EntityPipeline {
	return &EntityPipeline{llm: llm, resolver: entity.NewResolver(registry)}
}

// ExtractEntities gives each resource touched within lookback an extraction
// pass, resolves every mention to a canonical entity, and rewrites the
// resource's related_entities field in full.
func (p *EntityPipeline) ExtractEntities(ctx context.Context, sp *storageProviders, tenantID string, lookback time.Duration) (int, error) {
	log := obs.WithTenant(obs.Component("dreaming.entities"), tenantID)

	resources, err := repository.New(sp.Storage, sp.KV, sp.Embeddings, tenantID, "resources")
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-lookback)
	rows, err := resources.Select(ctx, nil, "", 200)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, r := range rows {
		ts, ok := rowTime(r["created_at"])
		if ok && ts.Before(cutoff) {
			continue
		}
		content := rowString(r["content"])
		if content == "" {
			continue
		}
		resourceID := r.ID()

		extracted, err := p.extractMentions(ctx, content)
		if err != nil {
			log.Warn().Err(err).Str("resource_id", resourceID).Msg("entity extraction failed, skipping resource")
			continue
		}
		if len(extracted) == 0 {
			continue
		}

		related := p.resolveMentions(ctx, log, tenantID, resourceID, extracted)
		if len(related) == 0 {
			continue
		}

		r["related_entities"] = dedupeRelatedEntities(related)
		if _, err := resources.Upsert(ctx, []model.Entity{r}, false); err != nil {
			log.Warn().Err(err).Str("resource_id", resourceID).Msg("related_entities write failed")
			continue
		}
		processed++
	}
	return processed, nil
}

// extractMentions runs one LLM extraction call over content. Oversized
// content is truncated to the first budgeted chunk rather than fanned out:
// one chunk's mentions are enough to index the resource.
func (p *EntityPipeline) extractMentions(ctx context.Context, content string) ([]model.RelatedEntity, error) {
	chunks := ChunkText(content, DefaultTokenBudget())
	resp, err := p.llm.Complete(ctx, entityExtractorSystemPrompt, chunks[0])
	if err != nil {
		return nil, err
	}
	var parsed entityExtraction
	if err := ExtractJSON(resp, &parsed); err != nil {
		return nil, err
	}
	return parsed.Entities, nil
}

// resolveMentions maps raw extracted mentions onto canonical entities; a
// mention that fails to resolve is dropped with a warning, never failing
// the resource.
func (p *EntityPipeline) resolveMentions(ctx context.Context, log zerolog.Logger, tenantID, resourceID string, extracted []model.RelatedEntity) []model.RelatedEntity {
	related := make([]model.RelatedEntity, 0, len(extracted))
	for _, ex := range extracted {
		name := ex.EntityName
		if name == "" {
			name = ex.EntityID
		}
		canonical, _, err := p.resolver.Resolve(ctx, tenantID, entity.Mention{
			Name:       name,
			Type:       ex.EntityType,
			Source:     "resource",
			ExternalID: resourceID,
			Confidence: ex.Confidence,
		})
		if err != nil {
			log.Warn().Err(err).Str("mention", name).Msg("entity resolution failed, skipping mention")
			continue
		}
		mentions := ex.Mentions
		if mentions <= 0 {
			mentions = 1
		}
		related = append(related, model.RelatedEntity{
			EntityID:   canonical.ID,
			EntityType: canonical.Type,
			EntityName: canonical.Name,
			Mentions:   mentions,
			Confidence: ex.Confidence,
		})
	}
	return related
}

// dedupeRelatedEntities collapses repeated resolutions of the same canonical
// entity within one resource into a single entry, summing mention counts and
// keeping the highest observed confidence.
func dedupeRelatedEntities(related []model.RelatedEntity) []model.RelatedEntity {
	byID := make(map[string]*model.RelatedEntity, len(related))
	order := make([]string, 0, len(related))
	for _, re := range related {
		if existing, ok := byID[re.EntityID]; ok {
			existing.Mentions += re.Mentions
			if re.Confidence > existing.Confidence {
				existing.Confidence = re.Confidence
			}
			continue
		}
		cp := re
		byID[re.EntityID] = &cp
		order = append(order, re.EntityID)
	}
	out := make([]model.RelatedEntity, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out
}

const userSummaryName = "p8fs-user-info"

// BuildUserSummary aggregates a tenant's recent sessions, moments, and
// resources into a single rolling Resource (category "user_summary") that
// downstream chat loads as a system-message preamble without re-scanning
// every table.
func BuildUserSummary(ctx context.Context, sp *storageProviders, tenantID string, lookback time.Duration, llm *LLM) error {
	log := obs.WithTenant(obs.Component("dreaming.usersummary"), tenantID)

	sessions, err := repository.New(sp.Storage, sp.KV, sp.Embeddings, tenantID, "sessions")
	if err != nil {
		return err
	}
	moments, err := repository.New(sp.Storage, sp.KV, sp.Embeddings, tenantID, "moments")
	if err != nil {
		return err
	}
	resources, err := repository.New(sp.Storage, sp.KV, sp.Embeddings, tenantID, "resources")
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-lookback)
	records := gatherRecords(ctx, sessions, resources, cutoff)

	momentRows, err := moments.Select(ctx, nil, "", 100)
	if err == nil {
		for _, m := range momentRows {
			ts, ok := rowTime(m["created_at"])
			if ok && ts.Before(cutoff) {
				continue
			}
			records = append(records, fmt.Sprintf("[moment %s] %s", m.ID(), rowString(m["summary"])))
		}
	}

	if len(records) == 0 {
		return nil
	}

	prompt := fmt.Sprintf("Summarize this tenant's recent activity in 3-5 sentences, for a human reviewing their own history:\n\n%s", buildMomentPrompt(records))
	summary, err := llm.Complete(ctx, "You write concise, factual third-person activity summaries. Never invent facts not present in the input.", prompt)
	if err != nil {
		log.Warn().Err(err).Msg("user summary LLM call failed")
		return err
	}

	res := model.Resource{
		TenantID: tenantID,
		Content:  summary,
		Summary:  summary,
		Category: "user_summary",
		Metadata: map[string]any{"name": userSummaryName, "record_count": len(records)},
	}
	entities := []model.Entity{res.ToEntity()}
	entities[0]["id"] = model.ChunkResourceID(tenantID+":"+userSummaryName, 0)
	_, err = resources.Upsert(ctx, entities, true)
	return err
}
