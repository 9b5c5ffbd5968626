// Package entity maintains each tenant's canonical entities: the stable,
// slug-identified records that resource mentions resolve onto before they
// are written into related_entities and the KV reverse index. Resolving
// here is what lets "Sarah Chen", "sarah chen", and "Chen, Sarah" across many
// resources share one reverse-index key instead of fragmenting under every
// surface form.
package entity

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/healer-ai/p8fs/pkg/errs"
)

// CanonicalEntity is a tenant's stable record of one entity. ID is the
// lowercase-hyphenated slug of the primary name and doubles as the
// entity_id used in related_entities and reverse-index keys.
type CanonicalEntity struct {
	ID           string      `json:"id"`
	TenantID     string      `json:"tenant_id"`
	Type         string      `json:"type"` // person, organization, project, technology, location, other
	Name         string      `json:"name"`
	Aliases      []string    `json:"aliases,omitempty"`
	MentionCount int         `json:"mention_count"`
	SourceRefs   []SourceRef `json:"source_refs,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// SourceRef records where a mention of this entity was seen.
type SourceRef struct {
	Source     string `json:"source"` // resource | session | moment | file
	ExternalID string `json:"external_id"`
}

// Mention is one raw extracted mention, before resolution.
type Mention struct {
	Name       string
	Type       string
	Source     string
	ExternalID string
	Confidence float64
}

// Registry persists canonical entities for resolution.
type Registry interface {
	// Get fetches by canonical id (slug). A nil, nil return means not found.
	Get(ctx context.Context, tenantID, id string) (*CanonicalEntity, error)
	// ListByType returns up to limit entities of one type, for alias and
	// fuzzy matching against a new mention.
	ListByType(ctx context.Context, tenantID, entityType string, limit int) ([]*CanonicalEntity, error)
	// Save upserts by (tenant_id, id).
	Save(ctx context.Context, e *CanonicalEntity) error
}

// Slug converts a display name to the lowercase-hyphenated entity id:
// "Sarah Chen" -> "sarah-chen". Runs of non-alphanumeric characters
// collapse to one hyphen; leading/trailing hyphens are dropped.
func Slug(name string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		default:
			pendingHyphen = true
		}
	}
	return b.String()
}

// NameOverlap scores two names by token overlap (Jaccard over lowercase
// tokens), 0 to 1. "Sarah Chen" vs "Chen, Sarah" scores 1; disjoint names
// score 0.
func NameOverlap(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	inter := 0
	for t := range ta {
		if tb[t] {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]bool {
	out := make(map[string]bool)
	for _, t := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		out[t] = true
	}
	return out
}

// Resolver maps mentions onto canonical entities.
type Resolver struct {
	registry       Registry
	fuzzyThreshold float64
	candidateLimit int
}

func NewResolver(registry Registry) *Resolver {
	return &Resolver{registry: registry, fuzzyThreshold: 0.6, candidateLimit: 200}
}

// Resolve maps a mention to its canonical entity, creating one when nothing
// matches. Match order: exact slug, alias slug, then best fuzzy name
// overlap within the same type. Every resolution bumps the entity's mention
// count and records the mention's source ref. Returns the entity and
// whether it was newly created.
func (r *Resolver) Resolve(ctx context.Context, tenantID string, m Mention) (*CanonicalEntity, bool, error) {
	if tenantID == "" {
		return nil, false, errs.Validation("entity.Resolve", "tenant_id is required")
	}
	slug := Slug(m.Name)
	if slug == "" {
		return nil, false, errs.Validation("entity.Resolve", "mention has no usable name")
	}

	if e, err := r.registry.Get(ctx, tenantID, slug); err != nil {
		return nil, false, err
	} else if e != nil {
		r.recordMention(e, m)
		return e, false, r.registry.Save(ctx, e)
	}

	candidates, err := r.registry.ListByType(ctx, tenantID, m.Type, r.candidateLimit)
	if err != nil {
		return nil, false, err
	}

	if e := matchAlias(candidates, slug); e != nil {
		r.recordMention(e, m)
		return e, false, r.registry.Save(ctx, e)
	}

	if e := r.matchFuzzy(candidates, m.Name); e != nil {
		// The mention's surface form becomes an alias so the next
		// occurrence resolves on the alias pass instead of re-scoring.
		e.Aliases = appendUnique(e.Aliases, m.Name)
		r.recordMention(e, m)
		return e, false, r.registry.Save(ctx, e)
	}

	now := time.Now().UTC()
	created := &CanonicalEntity{
		ID:        slug,
		TenantID:  tenantID,
		Type:      normalizeType(m.Type),
		Name:      strings.TrimSpace(m.Name),
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.recordMention(created, m)
	if err := r.registry.Save(ctx, created); err != nil {
		return nil, false, err
	}
	return created, true, nil
}

func (r *Resolver) recordMention(e *CanonicalEntity, m Mention) {
	e.MentionCount++
	e.UpdatedAt = time.Now().UTC()
	if m.Source == "" || m.ExternalID == "" {
		return
	}
	for _, ref := range e.SourceRefs {
		if ref.Source == m.Source && ref.ExternalID == m.ExternalID {
			return
		}
	}
	e.SourceRefs = append(e.SourceRefs, SourceRef{Source: m.Source, ExternalID: m.ExternalID})
}

func matchAlias(candidates []*CanonicalEntity, slug string) *CanonicalEntity {
	for _, c := range candidates {
		for _, a := range c.Aliases {
			if Slug(a) == slug {
				return c
			}
		}
	}
	return nil
}

// matchFuzzy returns the candidate with the highest NameOverlap at or above
// the threshold; ties break on the lexicographically smaller id so repeated
// runs resolve the same way.
func (r *Resolver) matchFuzzy(candidates []*CanonicalEntity, name string) *CanonicalEntity {
	sorted := make([]*CanonicalEntity, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var best *CanonicalEntity
	bestScore := 0.0
	for _, c := range sorted {
		if score := NameOverlap(name, c.Name); score >= r.fuzzyThreshold && score > bestScore {
			best = c
			bestScore = score
		}
	}
	return best
}

func appendUnique(list []string, s string) []string {
	s = strings.TrimSpace(s)
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return list
		}
	}
	return append(list, s)
}

var knownTypes = map[string]bool{
	"person": true, "organization": true, "project": true,
	"technology": true, "location": true, "other": true,
}

func normalizeType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if knownTypes[t] {
		return t
	}
	return "other"
}
