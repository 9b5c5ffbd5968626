package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/healer-ai/p8fs/pkg/model"
)

func TestContentHashStable(t *testing.T) {
	a := ContentHash("hello world")
	b := ContentHash("hello world")
	c := ContentHash("hello world!")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestNewRejectsEmptyTenant(t *testing.T) {
	_, err := New(nil, nil, nil, "", "resources")
	assert.Error(t, err)
}

func TestNewRejectsUnknownTable(t *testing.T) {
	_, err := New(nil, nil, nil, "tenant-1", "not_a_real_table")
	assert.Error(t, err)
}

func TestToRelatedEntitiesFromMapSlice(t *testing.T) {
	raw := []map[string]any{
		{"entity_id": "e1", "entity_type": "person", "entity_name": "Ada", "mentions": 2, "confidence": 0.9},
	}
	out, err := toRelatedEntities(raw)
	assert.NoError(t, err)
	assert.Len(t, out, 1)
	assert.Equal(t, "e1", out[0].EntityID)
	assert.Equal(t, "person", out[0].EntityType)
}

func TestToRelatedEntitiesTyped(t *testing.T) {
	in := []model.RelatedEntity{{EntityID: "e2", EntityType: "org"}}
	out, err := toRelatedEntities(in)
	assert.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestEncodeFieldValueJSON(t *testing.T) {
	f := model.Field{Name: "metadata", Type: model.FieldJSON}
	v := encodeFieldValue(f, map[string]any{"a": 1})
	assert.Equal(t, `{"a":1}`, v)
}

func TestEncodeFieldValueNonJSON(t *testing.T) {
	f := model.Field{Name: "ordinal", Type: model.FieldInt}
	v := encodeFieldValue(f, 7)
	assert.Equal(t, 7, v)
}

func TestDecodeFieldValueRoundTrip(t *testing.T) {
	f := model.Field{Name: "metadata", Type: model.FieldJSON}
	v := decodeFieldValue(f, []byte(`{"a":1}`))
	m, ok := v.(map[string]any)
	assert.True(t, ok)
	assert.Equal(t, float64(1), m["a"])
}

func TestDecodeFieldValueNil(t *testing.T) {
	f := model.Field{Name: "summary", Type: model.FieldString}
	assert.Nil(t, decodeFieldValue(f, nil))
}

