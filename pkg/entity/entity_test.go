package entity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlug(t *testing.T) {
	assert.Equal(t, "sarah-chen", Slug("Sarah Chen"))
	assert.Equal(t, "sarah-chen", Slug("  Sarah   Chen  "))
	assert.Equal(t, "sarah-chen", Slug("Sarah_Chen!"))
	assert.Equal(t, "tidb", Slug("TiDB"))
	assert.Equal(t, "v2-rollout", Slug("v2 (rollout)"))
	assert.Equal(t, "", Slug("---"))
	assert.Equal(t, "", Slug(""))
}

func TestNameOverlap(t *testing.T) {
	assert.Equal(t, 1.0, NameOverlap("Sarah Chen", "chen, sarah"))
	assert.Equal(t, 0.0, NameOverlap("abc", "xyz"))
	assert.Equal(t, 0.0, NameOverlap("", "anything"))

	partial := NameOverlap("Sarah Chen", "Sarah Wu")
	assert.Greater(t, partial, 0.0)
	assert.Less(t, partial, 1.0)
}

func TestNormalizeType(t *testing.T) {
	assert.Equal(t, "person", normalizeType("Person"))
	assert.Equal(t, "other", normalizeType("spaceship"))
	assert.Equal(t, "other", normalizeType(""))
}

// memRegistry is an in-memory Registry for resolver tests.
type memRegistry struct {
	byID map[string]*CanonicalEntity
}

func newMemRegistry() *memRegistry { return &memRegistry{byID: make(map[string]*CanonicalEntity)} }

func (m *memRegistry) Get(ctx context.Context, tenantID, id string) (*CanonicalEntity, error) {
	e, ok := m.byID[tenantID+"/"+id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (m *memRegistry) ListByType(ctx context.Context, tenantID, entityType string, limit int) ([]*CanonicalEntity, error) {
	var out []*CanonicalEntity
	for _, e := range m.byID {
		if e.TenantID == tenantID && e.Type == normalizeType(entityType) {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memRegistry) Save(ctx context.Context, e *CanonicalEntity) error {
	cp := *e
	m.byID[e.TenantID+"/"+e.ID] = &cp
	return nil
}

func TestResolveCreatesOnFirstMention(t *testing.T) {
	r := NewResolver(newMemRegistry())
	e, created, err := r.Resolve(context.Background(), "t1", Mention{
		Name: "Sarah Chen", Type: "person", Source: "resource", ExternalID: "res-1",
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "sarah-chen", e.ID)
	assert.Equal(t, "person", e.Type)
	assert.Equal(t, 1, e.MentionCount)
	require.Len(t, e.SourceRefs, 1)
	assert.Equal(t, "res-1", e.SourceRefs[0].ExternalID)
}

func TestResolveExactSlugCollapsesSurfaceForms(t *testing.T) {
	reg := newMemRegistry()
	r := NewResolver(reg)
	ctx := context.Background()

	first, created, err := r.Resolve(ctx, "t1", Mention{Name: "Sarah Chen", Type: "person", Source: "resource", ExternalID: "res-1"})
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := r.Resolve(ctx, "t1", Mention{Name: "sarah   chen", Type: "person", Source: "resource", ExternalID: "res-2"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.MentionCount)
	assert.Len(t, second.SourceRefs, 2)
}

func TestResolveFuzzyMatchAddsAlias(t *testing.T) {
	reg := newMemRegistry()
	r := NewResolver(reg)
	ctx := context.Background()

	_, _, err := r.Resolve(ctx, "t1", Mention{Name: "Sarah Chen", Type: "person", Source: "resource", ExternalID: "res-1"})
	require.NoError(t, err)

	// Reordered tokens slug differently but overlap fully.
	e, created, err := r.Resolve(ctx, "t1", Mention{Name: "Chen Sarah", Type: "person", Source: "resource", ExternalID: "res-2"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "sarah-chen", e.ID)
	assert.Contains(t, e.Aliases, "Chen Sarah")

	// The alias now resolves on the alias pass.
	again, created, err := r.Resolve(ctx, "t1", Mention{Name: "chen sarah", Type: "person", Source: "resource", ExternalID: "res-3"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "sarah-chen", again.ID)
}

func TestResolveDisjointNamesStayDistinct(t *testing.T) {
	r := NewResolver(newMemRegistry())
	ctx := context.Background()

	a, _, err := r.Resolve(ctx, "t1", Mention{Name: "TiDB", Type: "technology"})
	require.NoError(t, err)
	b, created, err := r.Resolve(ctx, "t1", Mention{Name: "Postgres", Type: "technology"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestResolveRejectsUnusableMention(t *testing.T) {
	r := NewResolver(newMemRegistry())
	_, _, err := r.Resolve(context.Background(), "t1", Mention{Name: "???"})
	assert.Error(t, err)

	_, _, err = r.Resolve(context.Background(), "", Mention{Name: "Sarah"})
	assert.Error(t, err)
}

func TestRecordMentionDedupesSourceRefs(t *testing.T) {
	r := NewResolver(newMemRegistry())
	ctx := context.Background()
	_, _, err := r.Resolve(ctx, "t1", Mention{Name: "Sarah Chen", Type: "person", Source: "resource", ExternalID: "res-1"})
	require.NoError(t, err)
	e, _, err := r.Resolve(ctx, "t1", Mention{Name: "Sarah Chen", Type: "person", Source: "resource", ExternalID: "res-1"})
	require.NoError(t, err)
	assert.Len(t, e.SourceRefs, 1)
	assert.Equal(t, 2, e.MentionCount)
}
