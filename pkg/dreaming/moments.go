package dreaming

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/healer-ai/p8fs/pkg/model"
	"github.com/healer-ai/p8fs/pkg/obs"
	"github.com/healer-ai/p8fs/pkg/repository"
	sessionpkg "github.com/healer-ai/p8fs/pkg/sessions"
)

// MomentBuilderResult is the structured-output shape a moment-extraction
// LLM call returns: a list of Moment-shaped records.
type MomentBuilderResult struct {
	Moments []momentRecord `json:"moments"`
}

type momentRecord struct {
	Name                  string   `json:"name"`
	Content               string   `json:"content"`
	Summary               string   `json:"summary"`
	ResourceTimestamp     string   `json:"resource_timestamp"`
	ResourceEndsTimestamp string   `json:"resource_ends_timestamp"`
	MomentType            string   `json:"moment_type"`
	EmotionTags           []string `json:"emotion_tags"`
	TopicTags             []string `json:"topic_tags"`
	PresentPersons        []string `json:"present_persons"`
	Location              string   `json:"location"`
}

const momentBuilderSystemPrompt = `You are the moment-extraction pass of a memory substrate's dreaming pipeline.
Given a batch of recent conversation turns and resource summaries, identify discrete, interpretable "moments": short spans of activity with a clear topic, timeframe, and the people or entities involved.

Respond with ONLY a JSON object of the shape:
{"moments": [{"name": "...", "content": "...", "summary": "...", "resource_timestamp": "RFC3339", "resource_ends_timestamp": "RFC3339 or empty", "moment_type": "conversation|event|decision|note", "emotion_tags": ["..."], "topic_tags": ["..."], "present_persons": ["..."], "location": "..."}]}

Omit moments that are not clearly supported by the input. Use the input's own timestamps; never invent one.`

// ExtractMoments gathers recent sessions and resources for tenantID within
// lookback, chunks them to the token budget, extracts Moment-shaped records
// from each chunk via the LLM, and upserts them as Moment entities with
// embeddings enabled.
func ExtractMoments(ctx context.Context, sp *storageProviders, tenantID string, lookback time.Duration, llm *LLM, budget TokenBudget) (int, error) {
	log := obs.WithTenant(obs.Component("dreaming.moments"), tenantID)

	sessions, err := repository.New(sp.Storage, sp.KV, sp.Embeddings, tenantID, "sessions")
	if err != nil {
		return 0, err
	}
	resources, err := repository.New(sp.Storage, sp.KV, sp.Embeddings, tenantID, "resources")
	if err != nil {
		return 0, err
	}
	moments, err := repository.New(sp.Storage, sp.KV, sp.Embeddings, tenantID, "moments")
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-lookback)
	records := gatherRecords(ctx, sessions, resources, cutoff)
	if len(records) == 0 {
		return 0, nil
	}

	chunks := ChunkRecords(records, budget)
	written := 0
	for i, chunk := range chunks {
		prompt := buildMomentPrompt(chunk)
		resp, err := llm.Complete(ctx, momentBuilderSystemPrompt, prompt)
		if err != nil {
			log.Warn().Err(err).Int("chunk", i).Msg("moment extraction LLM call failed, skipping chunk")
			continue
		}

		var parsed MomentBuilderResult
		if err := ExtractJSON(resp, &parsed); err != nil {
			log.Warn().Err(err).Int("chunk", i).Msg("moment extraction response was not parseable JSON, skipping chunk")
			continue
		}

		entities := make([]model.Entity, 0, len(parsed.Moments))
		for _, rec := range parsed.Moments {
			entities = append(entities, toMomentEntity(tenantID, rec))
		}
		if len(entities) == 0 {
			continue
		}
		summary, err := moments.Upsert(ctx, entities, true)
		if err != nil {
			log.Warn().Err(err).Int("chunk", i).Msg("moment upsert failed")
			continue
		}
		written += len(summary.IDs)
	}
	return written, nil
}

func gatherRecords(ctx context.Context, sessions, resources *repository.Repository, cutoff time.Time) []string {
	var records []string

	sessionRows, err := sessions.Select(ctx, nil, "", 200)
	if err == nil {
		for _, s := range sessionRows {
			ts, ok := rowTime(s["created_at"])
			if ok && ts.Before(cutoff) {
				continue
			}
			if query := rowString(s["query"]); query != "" {
				records = append(records, fmt.Sprintf("[session %s] %s", s.ID(), query))
			}
			// Compressed turns are gathered as their inline synopses; the
			// full KV-offloaded bodies are not expanded here, moment
			// extraction works from the compressed view.
			meta, _ := s["metadata"].(map[string]any)
			if meta == nil {
				continue
			}
			for _, m := range sessionpkg.DecodeMessages(meta["messages"]) {
				if m.Content == "" {
					continue
				}
				records = append(records, fmt.Sprintf("[session %s turn %d] %s: %s", s.ID(), m.Ordinal, m.Role, m.Content))
			}
		}
	}

	resourceRows, err := resources.Select(ctx, nil, "", 200)
	if err == nil {
		for _, r := range resourceRows {
			ts, ok := rowTime(r["created_at"])
			if ok && ts.Before(cutoff) {
				continue
			}
			summary := rowString(r["summary"])
			if summary == "" {
				summary = rowString(r["content"])
			}
			if summary == "" {
				continue
			}
			records = append(records, fmt.Sprintf("[resource %s] %s", r.ID(), summary))
		}
	}
	return records
}

func buildMomentPrompt(records []string) string {
	var b strings.Builder
	b.WriteString("Recent activity:\n\n")
	for _, r := range records {
		b.WriteString("- ")
		b.WriteString(r)
		b.WriteByte('\n')
	}
	return b.String()
}

func toMomentEntity(tenantID string, rec momentRecord) model.Entity {
	present := make(map[string]string, len(rec.PresentPersons))
	for i, p := range rec.PresentPersons {
		present[fmt.Sprintf("p%d", i)] = p
	}
	m := model.Moment{
		TenantID:              tenantID,
		Name:                  rec.Name,
		Content:               rec.Content,
		Summary:               rec.Summary,
		ResourceTimestamp:     rec.ResourceTimestamp,
		ResourceEndsTimestamp: rec.ResourceEndsTimestamp,
		MomentType:            rec.MomentType,
		EmotionTags:           rec.EmotionTags,
		TopicTags:             rec.TopicTags,
		PresentPersons:        present,
		Location:              rec.Location,
	}
	if m.MomentType == "" {
		m.MomentType = "conversation"
	}
	return m.ToEntity()
}
