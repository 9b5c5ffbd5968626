package storage

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/healer-ai/p8fs/pkg/model"
)

// tidbDialect mirrors the original Python source's
// scripts/generate_tidb_sql_from_models.py: ? placeholders, native JSON
// column, TiDB's native VECTOR(n) column type, VEC_COSINE_DISTANCE function.
type tidbDialect struct{}

func (tidbDialect) Name() string { return "tidb" }

func (tidbDialect) Placeholder(int) string { return "?" }

func (tidbDialect) MapType(f model.Field) string {
	switch f.Type {
	case model.FieldString:
		return "TEXT"
	case model.FieldInt:
		return "BIGINT"
	case model.FieldFloat:
		return "DOUBLE"
	case model.FieldBool:
		return "BOOLEAN"
	case model.FieldTimestamp:
		return "DATETIME(6)"
	case model.FieldJSON:
		return "JSON"
	case model.FieldVector:
		dim := f.VectorDim
		if dim <= 0 {
			dim = 1536
		}
		return fmt.Sprintf("VECTOR(%d)", dim)
	default:
		return "TEXT"
	}
}

func (tidbDialect) VectorLiteral(v []float32) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(float64(x), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func (tidbDialect) CosineDistanceExpr(column, param string) string {
	return fmt.Sprintf("VEC_COSINE_DISTANCE(%s, %s)", column, param)
}

func (tidbDialect) QuoteTable(name string) string {
	return "`" + strings.ReplaceAll(name, ".", "_") + "`"
}

func (t tidbDialect) CreateTableSQL(d model.Descriptor) string {
	var cols []string
	for _, f := range d.Fields {
		cols = append(cols, fmt.Sprintf("`%s` %s%s", f.Name, t.MapType(f), nullableSuffix(f)))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS `%s` (\n  %s,\n  PRIMARY KEY (`tenant_id`, `id`),\n  KEY `%s_tenant_idx` (`tenant_id`)\n);\n",
		d.Table, strings.Join(cols, ",\n  "), d.Table)
	return b.String()
}

func (t tidbDialect) CreateEmbeddingTableSQL(d model.Descriptor) string {
	dim := 1536
	for _, f := range d.EmbeddingFields() {
		if f.VectorDim > 0 {
			dim = f.VectorDim
			break
		}
	}
	table := strings.ReplaceAll(d.EmbeddingsTable(), ".", "_")
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS `+"`%s`"+` (
  `+"`tenant_id`"+` TEXT NOT NULL,
  `+"`entity_id`"+` TEXT NOT NULL,
  `+"`field_name`"+` TEXT NOT NULL,
  `+"`embedding`"+` VECTOR(%d),
  `+"`embedding_provider`"+` TEXT,
  `+"`vector_dimension`"+` INT,
  `+"`created_at`"+` DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
  PRIMARY KEY (`+"`tenant_id`, `entity_id`, `field_name`"+`(64))
);
`, table, dim)
}

func (t tidbDialect) UpsertSQL(d model.Descriptor, columns []string) string {
	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	updates := make([]string, 0, len(columns))
	for i, c := range columns {
		quoted[i] = "`" + c + "`"
		placeholders[i] = "?"
		if c == "id" || c == "tenant_id" {
			continue
		}
		updates = append(updates, fmt.Sprintf("`%s` = VALUES(`%s`)", c, c))
	}
	return fmt.Sprintf(
		"INSERT INTO `%s` (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s",
		d.Table, strings.Join(quoted, ", "), strings.Join(placeholders, ", "), strings.Join(updates, ", "),
	)
}
