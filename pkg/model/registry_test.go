package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegisteredTablesIncludeCoreModels(t *testing.T) {
	tables := Tables()
	for _, want := range []string{"resources", "files", "sessions", "moments", "tenants", "jobs"} {
		assert.Contains(t, tables, want)
	}
}

func TestGetReturnsResourceDescriptor(t *testing.T) {
	d, ok := Get("resources")
	assert.True(t, ok)
	assert.Equal(t, "resource", d.EntityType)
	assert.True(t, d.HasRelatedEntities)
	assert.True(t, d.HasGraphEdges)
}

func TestGetUnknownTable(t *testing.T) {
	_, ok := Get("not_a_table")
	assert.False(t, ok)
}

func TestEmbeddingFieldsSubset(t *testing.T) {
	d, _ := Get("resources")
	embed := d.EmbeddingFields()
	assert.Len(t, embed, 1)
	assert.Equal(t, "content", embed[0].Name)
}

func TestFieldLookup(t *testing.T) {
	d, _ := Get("resources")
	f, ok := d.Field("metadata")
	assert.True(t, ok)
	assert.Equal(t, FieldJSON, f.Type)

	_, ok = d.Field("nonexistent")
	assert.False(t, ok)
}

func TestEmbeddingsTableNaming(t *testing.T) {
	d, _ := Get("moments")
	assert.Equal(t, "embeddings.moments_embeddings", d.EmbeddingsTable())
}

func TestEntityTypesIncludesResourceAndFile(t *testing.T) {
	types := EntityTypes()
	assert.Contains(t, types, "resource")
	assert.Contains(t, types, "file")
}

func TestAuxFieldsCarryTenantAndTimestamps(t *testing.T) {
	d, _ := Get("tenants")
	_, hasID := d.Field("id")
	_, hasTenant := d.Field("tenant_id")
	_, hasCreated := d.Field("created_at")
	assert.True(t, hasID)
	assert.True(t, hasTenant)
	assert.True(t, hasCreated)
}
