package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/healer-ai/p8fs/pkg/model"
)

func TestNewDialectPostgresAliases(t *testing.T) {
	for _, name := range []string{"postgres", "postgresql", "pg", "PG"} {
		d, err := NewDialect(name)
		assert.NoError(t, err)
		assert.Equal(t, "postgres", d.Name())
	}
}

func TestNewDialectTidbAliases(t *testing.T) {
	for _, name := range []string{"tidb", "mysql", "TiDB"} {
		d, err := NewDialect(name)
		assert.NoError(t, err)
		assert.Equal(t, "tidb", d.Name())
	}
}

func TestNewDialectUnknown(t *testing.T) {
	_, err := NewDialect("oracle")
	assert.Error(t, err)
}

func TestPostgresPlaceholderStyle(t *testing.T) {
	d, _ := NewDialect("postgres")
	assert.Equal(t, "$1", d.Placeholder(1))
	assert.Equal(t, "$3", d.Placeholder(3))
}

func TestTidbPlaceholderStyle(t *testing.T) {
	d, _ := NewDialect("tidb")
	assert.Equal(t, "?", d.Placeholder(1))
	assert.Equal(t, "?", d.Placeholder(5))
}

func TestPostgresMapTypeVector(t *testing.T) {
	d, _ := NewDialect("postgres")
	f := model.Field{Type: model.FieldVector, VectorDim: 768}
	assert.Equal(t, "vector(768)", d.MapType(f))

	f.VectorDim = 0
	assert.Equal(t, "vector(1536)", d.MapType(f))
}

func TestTidbMapTypeVector(t *testing.T) {
	d, _ := NewDialect("tidb")
	f := model.Field{Type: model.FieldVector, VectorDim: 768}
	assert.Equal(t, "VECTOR(768)", d.MapType(f))
}

func TestMapTypeJSON(t *testing.T) {
	pg, _ := NewDialect("postgres")
	ti, _ := NewDialect("tidb")
	f := model.Field{Type: model.FieldJSON}
	assert.Equal(t, "JSONB", pg.MapType(f))
	assert.Equal(t, "JSON", ti.MapType(f))
}

func TestVectorLiteralEncoding(t *testing.T) {
	d, _ := NewDialect("postgres")
	lit := d.VectorLiteral([]float32{1, 0.5, -2})
	assert.Equal(t, "[1,0.5,-2]", lit)
}

func TestCosineDistanceExprDialectSpecific(t *testing.T) {
	pg, _ := NewDialect("postgres")
	ti, _ := NewDialect("tidb")
	assert.Equal(t, "(e.embedding <=> $1)", pg.CosineDistanceExpr("e.embedding", "$1"))
	assert.Equal(t, "VEC_COSINE_DISTANCE(e.embedding, ?)", ti.CosineDistanceExpr("e.embedding", "?"))
}

func TestCreateTableSQLIncludesGinIndexForJSON(t *testing.T) {
	d, _ := NewDialect("postgres")
	desc, ok := model.Get("resources")
	assert.True(t, ok)
	sql := d.CreateTableSQL(desc)
	assert.Contains(t, sql, `CREATE TABLE IF NOT EXISTS "resources"`)
	assert.Contains(t, sql, "USING GIN")
	assert.Contains(t, sql, "PRIMARY KEY (tenant_id, id)")
}

func TestTidbCreateTableSQLUsesBackticks(t *testing.T) {
	d, _ := NewDialect("tidb")
	desc, _ := model.Get("files")
	sql := d.CreateTableSQL(desc)
	assert.True(t, strings.Contains(sql, "`files`"))
	assert.Contains(t, sql, "PRIMARY KEY (`tenant_id`, `id`)")
}

func TestCreateEmbeddingTableSQLUsesDeclaredDimension(t *testing.T) {
	d, _ := NewDialect("postgres")
	desc, _ := model.Get("resources")
	sql := d.CreateEmbeddingTableSQL(desc)
	assert.Contains(t, sql, "CREATE SCHEMA IF NOT EXISTS embeddings;")
	assert.Contains(t, sql, `"embeddings"."resources_embeddings"`)
	assert.Contains(t, sql, "vector(1536)")
}

func TestQuoteTableDialectSpecific(t *testing.T) {
	pg, _ := NewDialect("postgres")
	ti, _ := NewDialect("tidb")
	assert.Equal(t, `"embeddings"."resources_embeddings"`, pg.QuoteTable("embeddings.resources_embeddings"))
	assert.Equal(t, `"resources"`, pg.QuoteTable("resources"))
	assert.Equal(t, "`embeddings_resources_embeddings`", ti.QuoteTable("embeddings.resources_embeddings"))
	assert.Equal(t, "`resources`", ti.QuoteTable("resources"))
}

func TestUpsertSQLPostgresOnConflict(t *testing.T) {
	d, _ := NewDialect("postgres")
	desc, _ := model.Get("files")
	sql := d.UpsertSQL(desc, []string{"id", "tenant_id", "uri"})
	assert.Contains(t, sql, "ON CONFLICT (tenant_id, id) DO UPDATE SET")
	assert.Contains(t, sql, `"uri" = EXCLUDED."uri"`)
	assert.NotContains(t, sql, `"id" = EXCLUDED."id"`)
}

func TestUpsertSQLTidbOnDuplicate(t *testing.T) {
	d, _ := NewDialect("tidb")
	desc, _ := model.Get("files")
	sql := d.UpsertSQL(desc, []string{"id", "tenant_id", "uri"})
	assert.Contains(t, sql, "ON DUPLICATE KEY UPDATE")
	assert.Contains(t, sql, "`uri` = VALUES(`uri`)")
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"resources"`, quoteIdent("resources"))
}

func TestNullableSuffix(t *testing.T) {
	assert.Equal(t, " NOT NULL", nullableSuffix(model.Field{Nullable: false}))
	assert.Equal(t, "", nullableSuffix(model.Field{Nullable: true}))
}
