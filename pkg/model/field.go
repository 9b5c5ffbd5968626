// Package model defines the static, compile-time descriptors that drive DDL
// generation, upsert/select, and embedding behavior for every entity family
// in the core. Each model is a static descriptor struct registered at
// process start; DDL generation is a pure function of the descriptor set.
package model

// FieldType is the logical type of a field, independent of backend dialect.
// pkg/storage.Dialect maps these to native column types.
type FieldType int

const (
	FieldString FieldType = iota
	FieldInt
	FieldFloat
	FieldBool
	FieldTimestamp
	FieldJSON   // free-form map/list, stored as JSONB/JSON
	FieldVector // fixed-dimension float array, stored as a native vector column when available
)

// Field describes one column of a model.
type Field struct {
	Name     string
	Type     FieldType
	Nullable bool
	// Embed marks this field as an embedding source: the repository generates
	// one vector per row for this field and stores it in the model's sibling
	// embeddings table.
	Embed bool
	// VectorDim applies only when Type == FieldVector (e.g. graph_edges-adjacent
	// precomputed vectors) or when Embed is true, to size the embedding column.
	VectorDim int
}

// Descriptor is the compile-time description of one entity family. DDL
// generation (pkg/storage) and generic CRUD (pkg/repository) are pure
// functions of a Descriptor.
type Descriptor struct {
	// Table is the relational table name, unqualified (e.g. "resources").
	Table string
	// EntityType is the reverse-index type suffix used in KV keys
	// ({tenant_id}/{entity_id}/{entity_type}) and in the untyped-LOOKUP
	// type registry.
	EntityType string
	// KeyField is the primary key field name, always "id" in this core
	// (the logical PK is (tenant_id, id)).
	KeyField string
	Fields   []Field
	// HasRelatedEntities marks models whose rows carry a related_entities
	// list that must be dual-written to the KV reverse index on upsert
	// (Resource today; extensible to others).
	HasRelatedEntities bool
	// HasGraphEdges marks models whose rows carry a graph_edges list,
	// traversed by REM's TRAVERSE plan (pkg/rem).
	HasGraphEdges bool
}

// EmbeddingFields returns the subset of Fields flagged for embedding.
func (d Descriptor) EmbeddingFields() []Field {
	var out []Field
	for _, f := range d.Fields {
		if f.Embed {
			out = append(out, f)
		}
	}
	return out
}

// Field looks up a field by name.
func (d Descriptor) Field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// EmbeddingsTable is the sibling embeddings table name,
// "embeddings.<table>_embeddings".
func (d Descriptor) EmbeddingsTable() string {
	return "embeddings." + d.Table + "_embeddings"
}
