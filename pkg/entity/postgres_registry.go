package entity

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/healer-ai/p8fs/pkg/errs"
)

// PostgresRegistry persists canonical entities in a single
// canonical_entities table, keyed (tenant_id, id) like every other core
// table. Separate from the descriptor-driven tables pkg/repository manages,
// since canonical entities are resolution state, not a content model.
type PostgresRegistry struct {
	db *sql.DB
}

func NewPostgresRegistry(db *sql.DB) (*PostgresRegistry, error) {
	r := &PostgresRegistry{db: db}
	if err := r.ensureSchema(); err != nil {
		return nil, errs.Internal("entity.NewPostgresRegistry", "schema ensure failed", err)
	}
	return r, nil
}

func (r *PostgresRegistry) ensureSchema() error {
	_, err := r.db.Exec(`CREATE TABLE IF NOT EXISTS canonical_entities (
  tenant_id TEXT NOT NULL,
  id TEXT NOT NULL,
  entity_type TEXT NOT NULL,
  name TEXT NOT NULL,
  aliases JSONB NOT NULL DEFAULT '[]',
  mention_count BIGINT NOT NULL DEFAULT 0,
  source_refs JSONB NOT NULL DEFAULT '[]',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  PRIMARY KEY (tenant_id, id)
);
CREATE INDEX IF NOT EXISTS canonical_entities_type_idx ON canonical_entities (tenant_id, entity_type);`)
	return err
}

func (r *PostgresRegistry) Get(ctx context.Context, tenantID, id string) (*CanonicalEntity, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT tenant_id, id, entity_type, name, aliases, mention_count, source_refs, created_at, updated_at
FROM canonical_entities WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Internal("entity.PostgresRegistry.Get", "select failed", err)
	}
	return e, nil
}

func (r *PostgresRegistry) ListByType(ctx context.Context, tenantID, entityType string, limit int) ([]*CanonicalEntity, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT tenant_id, id, entity_type, name, aliases, mention_count, source_refs, created_at, updated_at
FROM canonical_entities WHERE tenant_id = $1 AND entity_type = $2 ORDER BY id LIMIT $3`,
		tenantID, normalizeType(entityType), limit)
	if err != nil {
		return nil, errs.Internal("entity.PostgresRegistry.ListByType", "select failed", err)
	}
	defer rows.Close()

	var out []*CanonicalEntity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, errs.Internal("entity.PostgresRegistry.ListByType", "scan failed", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PostgresRegistry) Save(ctx context.Context, e *CanonicalEntity) error {
	aliases, err := json.Marshal(e.Aliases)
	if err != nil {
		return errs.Internal("entity.PostgresRegistry.Save", "aliases encode failed", err)
	}
	refs, err := json.Marshal(e.SourceRefs)
	if err != nil {
		return errs.Internal("entity.PostgresRegistry.Save", "source_refs encode failed", err)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	e.UpdatedAt = time.Now().UTC()

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO canonical_entities (tenant_id, id, entity_type, name, aliases, mention_count, source_refs, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (tenant_id, id) DO UPDATE SET
  entity_type = EXCLUDED.entity_type,
  name = EXCLUDED.name,
  aliases = EXCLUDED.aliases,
  mention_count = EXCLUDED.mention_count,
  source_refs = EXCLUDED.source_refs,
  updated_at = EXCLUDED.updated_at`,
		e.TenantID, e.ID, normalizeType(e.Type), e.Name, aliases, e.MentionCount, refs, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return errs.Internal("entity.PostgresRegistry.Save", "upsert failed", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*CanonicalEntity, error) {
	var e CanonicalEntity
	var aliases, refs []byte
	if err := row.Scan(&e.TenantID, &e.ID, &e.Type, &e.Name, &aliases, &e.MentionCount, &refs, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	if len(aliases) > 0 {
		_ = json.Unmarshal(aliases, &e.Aliases)
	}
	if len(refs) > 0 {
		_ = json.Unmarshal(refs, &e.SourceRefs)
	}
	return &e, nil
}
