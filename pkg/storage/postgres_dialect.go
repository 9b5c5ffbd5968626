package storage

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/healer-ai/p8fs/pkg/model"
)

// postgresDialect: $n placeholders, JSONB+GIN, pgvector <=> operator, and
// the "[v1,v2,...]" vector literal encoding.
type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (postgresDialect) MapType(f model.Field) string {
	switch f.Type {
	case model.FieldString:
		return "TEXT"
	case model.FieldInt:
		return "BIGINT"
	case model.FieldFloat:
		return "DOUBLE PRECISION"
	case model.FieldBool:
		return "BOOLEAN"
	case model.FieldTimestamp:
		return "TIMESTAMPTZ"
	case model.FieldJSON:
		return "JSONB"
	case model.FieldVector:
		dim := f.VectorDim
		if dim <= 0 {
			dim = 1536
		}
		return fmt.Sprintf("vector(%d)", dim)
	default:
		return "TEXT"
	}
}

func (postgresDialect) VectorLiteral(v []float32) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(float64(x), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func (postgresDialect) CosineDistanceExpr(column, param string) string {
	return fmt.Sprintf("(%s <=> %s)", column, param)
}

func (postgresDialect) QuoteTable(name string) string {
	parts := strings.SplitN(name, ".", 2)
	if len(parts) == 2 {
		return quoteIdent(parts[0]) + "." + quoteIdent(parts[1])
	}
	return quoteIdent(name)
}

func (p postgresDialect) CreateTableSQL(d model.Descriptor) string {
	var cols []string
	for _, f := range d.Fields {
		cols = append(cols, fmt.Sprintf("%s %s%s", quoteIdent(f.Name), p.MapType(f), nullableSuffix(f)))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n  %s,\n  PRIMARY KEY (tenant_id, id)\n);\n",
		quoteIdent(d.Table), strings.Join(cols, ",\n  "))
	for _, f := range d.Fields {
		if f.Type == model.FieldJSON {
			fmt.Fprintf(&b, "CREATE INDEX IF NOT EXISTS %s_%s_gin ON %s USING GIN (%s);\n",
				d.Table, f.Name, quoteIdent(d.Table), quoteIdent(f.Name))
		}
	}
	fmt.Fprintf(&b, "CREATE INDEX IF NOT EXISTS %s_tenant_idx ON %s (tenant_id);\n", d.Table, quoteIdent(d.Table))
	return b.String()
}

func (p postgresDialect) CreateEmbeddingTableSQL(d model.Descriptor) string {
	dim := 1536
	for _, f := range d.EmbeddingFields() {
		if f.VectorDim > 0 {
			dim = f.VectorDim
			break
		}
	}
	table := d.EmbeddingsTable()
	var b strings.Builder
	b.WriteString("CREATE SCHEMA IF NOT EXISTS embeddings;\n")
	fmt.Fprintf(&b, `CREATE TABLE IF NOT EXISTS %s (
  tenant_id TEXT NOT NULL,
  entity_id TEXT NOT NULL,
  field_name TEXT NOT NULL,
  embedding vector(%d),
  embedding_provider TEXT,
  vector_dimension INT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  PRIMARY KEY (tenant_id, entity_id, field_name)
);
`, p.QuoteTable(table), dim)
	fmt.Fprintf(&b, "CREATE INDEX IF NOT EXISTS %s_ivfflat ON %s USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);\n",
		strings.ReplaceAll(table, ".", "_"), p.QuoteTable(table))
	return b.String()
}

func (p postgresDialect) UpsertSQL(d model.Descriptor, columns []string) string {
	placeholders := make([]string, len(columns))
	updates := make([]string, 0, len(columns))
	for i, c := range columns {
		placeholders[i] = p.Placeholder(i + 1)
		if c == "id" || c == "tenant_id" {
			continue
		}
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", quoteIdent(c), quoteIdent(c)))
	}
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdent(c)
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (tenant_id, id) DO UPDATE SET %s",
		quoteIdent(d.Table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "), strings.Join(updates, ", "),
	)
}
