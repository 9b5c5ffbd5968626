// Package storage implements the storage provider: a uniform contract over
// a relational+vector backend with two dialect variants (Postgres+pgvector
// and TiDB with its native VECTOR column), DDL generated from the model
// descriptors, and a recycling connection pool.
package storage

import (
	"fmt"
	"strings"

	"github.com/healer-ai/p8fs/pkg/model"
)

// Dialect is the per-backend capability set: naming, placeholders, type
// mapping, DDL generation, and vector-search SQL assembly.
type Dialect interface {
	Name() string
	// Placeholder returns the parameter placeholder for the nth (1-based)
	// bound parameter ("$n" for Postgres, "?" for TiDB/MySQL).
	Placeholder(n int) string
	// MapType maps a logical model.FieldType to a native column type.
	MapType(f model.Field) string
	// VectorLiteral encodes a float vector into the dialect's SQL literal form.
	VectorLiteral(v []float32) string
	// CosineDistanceExpr returns a SQL expression computing cosine distance
	// between a column and a bound vector parameter placeholder.
	CosineDistanceExpr(column, paramPlaceholder string) string
	// QuoteTable quotes a possibly schema-qualified table name. Postgres
	// qualifies ("embeddings"."t_embeddings"); TiDB/MySQL has no schema for
	// the embeddings sibling, so a dotted name flattens to one backticked
	// identifier (`embeddings_t_embeddings`), matching its DDL.
	QuoteTable(name string) string
	// CreateTableSQL generates DDL for the model's relational table.
	CreateTableSQL(d model.Descriptor) string
	// CreateEmbeddingTableSQL generates DDL for the model's sibling
	// embeddings table.
	CreateEmbeddingTableSQL(d model.Descriptor) string
	// UpsertSQL generates an upsert keyed on (tenant_id, id) for the given
	// descriptor and column list: INSERT ... ON CONFLICT (tenant_id, id) DO
	// UPDATE on Postgres, INSERT ... ON DUPLICATE KEY UPDATE on TiDB.
	UpsertSQL(d model.Descriptor, columns []string) string
}

// NewDialect constructs a Dialect by name ("postgres" or "tidb").
func NewDialect(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "postgres", "postgresql", "pg":
		return postgresDialect{}, nil
	case "tidb", "mysql":
		return tidbDialect{}, nil
	default:
		return nil, fmt.Errorf("storage: unknown dialect %q", name)
	}
}

func quoteIdent(s string) string { return `"` + s + `"` }

func nullableSuffix(f model.Field) string {
	if f.Nullable {
		return ""
	}
	return " NOT NULL"
}
