// Package repository implements the tenant repository: generic per-model
// CRUD parameterized by a model.Descriptor and a tenant_id, with field-level
// embedding generation, dual-write to the KV reverse index, and tenant
// isolation enforced on every query.
package repository

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/healer-ai/p8fs/pkg/embedding"
	"github.com/healer-ai/p8fs/pkg/errs"
	"github.com/healer-ai/p8fs/pkg/kvstore"
	"github.com/healer-ai/p8fs/pkg/model"
	"github.com/healer-ai/p8fs/pkg/obs"
	"github.com/healer-ai/p8fs/pkg/retry"
	"github.com/healer-ai/p8fs/pkg/storage"
)

// UpsertSummary is returned by Upsert.
type UpsertSummary struct {
	IDs              []string
	EmbeddingsWritten int
	EmbeddingsSkipped int
}

// Repository is the tenant-scoped, descriptor-parameterized CRUD surface.
type Repository struct {
	storage    *storage.Provider
	kv         *kvstore.Store
	embeddings *embedding.Service
	tenantID   string
	desc       model.Descriptor
}

// New constructs a Repository for the given table, scoped to tenantID.
// Every row carries a non-empty tenant_id, so an empty tenantID is rejected
// immediately.
func New(sp *storage.Provider, kv *kvstore.Store, emb *embedding.Service, tenantID, table string) (*Repository, error) {
	if tenantID == "" {
		return nil, errs.Validation("repository.New", "tenant_id is required")
	}
	d, ok := model.Get(table)
	if !ok {
		return nil, errs.Validation("repository.New", fmt.Sprintf("unknown table %q", table))
	}
	return &Repository{storage: sp, kv: kv, embeddings: emb, tenantID: tenantID, desc: d}, nil
}

// Upsert validates each row's tenant, serializes JSON fields, runs the
// dialect upsert, then generates per-field embeddings and the reverse-index
// dual-write, both best-effort.
func (r *Repository) Upsert(ctx context.Context, entities []model.Entity, createEmbeddings bool) (*UpsertSummary, error) {
	summary := &UpsertSummary{}
	for i, e := range entities {
		if tid, _ := e["tenant_id"].(string); tid != "" && tid != r.tenantID {
			return summary, errs.Conflict("repository.Upsert", fmt.Sprintf("row %d: tenant_id mismatch", i))
		}
		e["tenant_id"] = r.tenantID
		if id, _ := e["id"].(string); id == "" {
			e["id"] = uuid.NewString()
		}
		now := time.Now().UTC()
		if _, ok := e["created_at"]; !ok {
			e["created_at"] = now
		}
		e["updated_at"] = now

		if err := r.upsertRow(ctx, e); err != nil {
			return summary, fmt.Errorf("row %d: %w", i, err)
		}
		summary.IDs = append(summary.IDs, e.ID())

		written, skipped := r.writeEmbeddings(ctx, e, createEmbeddings)
		summary.EmbeddingsWritten += written
		summary.EmbeddingsSkipped += skipped

		if r.desc.HasRelatedEntities {
			r.writeReverseIndex(ctx, e)
		}
	}
	return summary, nil
}

// Put is the synchronous single-row convenience form of Upsert.
func (r *Repository) Put(ctx context.Context, e model.Entity) error {
	_, err := r.Upsert(ctx, []model.Entity{e}, true)
	return err
}

func (r *Repository) upsertRow(ctx context.Context, e model.Entity) error {
	columns := make([]string, 0, len(r.desc.Fields))
	args := make([]any, 0, len(r.desc.Fields))
	for _, f := range r.desc.Fields {
		v, ok := e[f.Name]
		if !ok {
			if f.Nullable {
				columns = append(columns, f.Name)
				args = append(args, nil)
				continue
			}
			if f.Type == model.FieldTimestamp {
				continue // created_at/updated_at already set above when present
			}
			return errs.Validation("repository.upsertRow", fmt.Sprintf("missing required field %q", f.Name))
		}
		columns = append(columns, f.Name)
		args = append(args, encodeFieldValue(f, v))
	}
	sqlStmt := r.storage.Dialect().UpsertSQL(r.desc, columns)
	op := func(ctx context.Context) error {
		_, err := r.storage.Exec(ctx, sqlStmt, args...)
		return err
	}
	return retry.Do(ctx, retry.DefaultPolicy(), op)
}

func encodeFieldValue(f model.Field, v any) any {
	switch f.Type {
	case model.FieldJSON:
		b, err := json.Marshal(v)
		if err != nil {
			return "{}"
		}
		return string(b)
	default:
		return v
	}
}

// writeEmbeddings generates and upserts, for each declared embedding field
// whose value is non-empty, a row into embeddings.<table>_embeddings keyed
// by (tenant_id, entity_id, field_name). Embedding failures degrade
// gracefully: the row stays persisted without an embedding, a warning is
// logged, and the upsert never fails.
func (r *Repository) writeEmbeddings(ctx context.Context, e model.Entity, createEmbeddings bool) (written, skipped int) {
	log := obs.Component("repository")
	if !createEmbeddings || r.embeddings == nil || !r.embeddings.Configured() {
		return 0, len(r.desc.EmbeddingFields())
	}
	for _, f := range r.desc.EmbeddingFields() {
		text, _ := e[f.Name].(string)
		if strings.TrimSpace(text) == "" {
			skipped++
			continue
		}
		vec, err := r.embeddings.Encode(ctx, text)
		if err != nil {
			log.Warn().Err(err).Str("tenant_id", r.tenantID).Str("field", f.Name).
				Msg("embedding generation failed, row persisted without embedding")
			skipped++
			continue
		}
		if err := r.upsertEmbeddingRow(ctx, e.ID(), f.Name, vec); err != nil {
			log.Warn().Err(err).Msg("embedding row upsert failed")
			skipped++
			continue
		}
		written++
	}
	return written, skipped
}

func (r *Repository) upsertEmbeddingRow(ctx context.Context, entityID, fieldName string, vec []float32) error {
	d := r.storage.Dialect()
	literal := d.VectorLiteral(vec)
	table := d.QuoteTable(r.desc.EmbeddingsTable())
	var q string
	if d.Name() == "tidb" {
		q = fmt.Sprintf("REPLACE INTO %s (`tenant_id`,`entity_id`,`field_name`,`embedding`,`embedding_provider`,`vector_dimension`) VALUES (?,?,?,?,?,?)", table)
		_, err := r.storage.Exec(ctx, q, r.tenantID, entityID, fieldName, literal, r.embeddings.ActiveProviderName(), len(vec))
		return err
	}
	q = fmt.Sprintf(`INSERT INTO %s (tenant_id, entity_id, field_name, embedding, embedding_provider, vector_dimension)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (tenant_id, entity_id, field_name) DO UPDATE SET embedding = EXCLUDED.embedding, embedding_provider = EXCLUDED.embedding_provider, vector_dimension = EXCLUDED.vector_dimension`,
		table)
	_, err := r.storage.Exec(ctx, q, r.tenantID, entityID, fieldName, literal, r.embeddings.ActiveProviderName(), len(vec))
	return err
}

// writeReverseIndex appends this row's id under each related entity's
// {tenant_id}/{entity_id}/{entity_type} KV key; failures are logged, never
// propagated, since the reverse index is eventually consistent.
func (r *Repository) writeReverseIndex(ctx context.Context, e model.Entity) {
	log := obs.Component("repository")
	raw, ok := e["related_entities"]
	if !ok {
		return
	}
	related, err := toRelatedEntities(raw)
	if err != nil {
		log.Warn().Err(err).Msg("related_entities decode failed")
		return
	}
	for _, re := range related {
		if err := r.kv.AppendReverseIndex(ctx, r.tenantID, re.EntityID, re.EntityType, e.ID()); err != nil {
			log.Warn().Err(err).Str("entity_id", re.EntityID).Msg("reverse index write failed")
			continue
		}
		r.kv.RecordEntityType(r.tenantID, re.EntityType)
	}
}

func toRelatedEntities(raw any) ([]model.RelatedEntity, error) {
	switch v := raw.(type) {
	case []model.RelatedEntity:
		return v, nil
	default:
		b, err := json.Marshal(raw)
		if err != nil {
			return nil, err
		}
		var out []model.RelatedEntity
		if err := json.Unmarshal(b, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
}

// Get fetches a single row by id, enforcing tenant isolation.
func (r *Repository) Get(ctx context.Context, id string) (model.Entity, error) {
	rows, err := r.Select(ctx, map[string]any{"id": id}, "", 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// Select runs a filtered, tenant-scoped read.
func (r *Repository) Select(ctx context.Context, filters map[string]any, orderBy string, limit int) ([]model.Entity, error) {
	d := r.storage.Dialect()
	columns := make([]string, 0, len(r.desc.Fields))
	for _, f := range r.desc.Fields {
		columns = append(columns, f.Name)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s WHERE tenant_id = %s", strings.Join(columns, ", "), d.QuoteTable(r.desc.Table), d.Placeholder(1))
	args := []any{r.tenantID}
	i := 2
	for k, v := range filters {
		fmt.Fprintf(&b, " AND %s = %s", k, d.Placeholder(i))
		args = append(args, v)
		i++
	}
	if orderBy != "" {
		fmt.Fprintf(&b, " ORDER BY %s", orderBy)
	} else {
		b.WriteString(" ORDER BY created_at DESC")
	}
	if limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", limit)
	}
	rows, err := r.storage.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanRows(rows)
}

func (r *Repository) scanRows(rows *sql.Rows) ([]model.Entity, error) {
	var out []model.Entity
	for rows.Next() {
		dest := make([]any, len(r.desc.Fields))
		ptrs := make([]any, len(r.desc.Fields))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errs.Internal("repository.scanRows", "scan failed", err)
		}
		e := model.Entity{}
		for i, f := range r.desc.Fields {
			e[f.Name] = decodeFieldValue(f, dest[i])
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func decodeFieldValue(f model.Field, v any) any {
	if v == nil {
		return nil
	}
	if f.Type == model.FieldJSON {
		var raw []byte
		switch t := v.(type) {
		case []byte:
			raw = t
		case string:
			raw = []byte(t)
		default:
			return v
		}
		var out any
		if err := json.Unmarshal(raw, &out); err == nil {
			return out
		}
	}
	return v
}

// Delete hard-deletes a row, cascading to its embedding rows. Reverse-index
// entries owned by this row are left for eventual reconciliation; readers
// tolerate the staleness.
func (r *Repository) Delete(ctx context.Context, id string) error {
	d := r.storage.Dialect()
	q := fmt.Sprintf("DELETE FROM %s WHERE tenant_id = %s AND id = %s", d.QuoteTable(r.desc.Table), d.Placeholder(1), d.Placeholder(2))
	if _, err := r.storage.Exec(ctx, q, r.tenantID, id); err != nil {
		return err
	}
	if len(r.desc.EmbeddingFields()) > 0 {
		embQ := fmt.Sprintf("DELETE FROM %s WHERE tenant_id = %s AND entity_id = %s", d.QuoteTable(r.desc.EmbeddingsTable()), d.Placeholder(1), d.Placeholder(2))
		if _, err := r.storage.Exec(ctx, embQ, r.tenantID, id); err != nil {
			return err
		}
	}
	return nil
}

// SemanticSearch generates the query embedding, executes the dialect's
// vector-search SQL, and hydrates rows preserving similarity order (stable
// tie-break by id ascending).
func (r *Repository) SemanticSearch(ctx context.Context, query, field string, k int, threshold float64) ([]model.Entity, error) {
	if r.embeddings == nil || !r.embeddings.Configured() {
		return nil, errs.Dependency("repository.SemanticSearch", "no embedding provider configured", nil)
	}
	if field == "" {
		fields := r.desc.EmbeddingFields()
		if len(fields) == 0 {
			return nil, errs.Validation("repository.SemanticSearch", "model has no embedding fields")
		}
		field = fields[0].Name
	}
	vec, err := r.embeddings.Encode(ctx, query)
	if err != nil {
		return nil, err
	}
	sqlStmt, _ := r.storage.SemanticSearchSQL(r.desc, field, k, threshold)
	literal := r.storage.Dialect().VectorLiteral(vec)
	rows, err := r.storage.Query(ctx, sqlStmt, literal, r.tenantID, field, threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type hit struct {
		id    string
		score float64
	}
	var hits []hit
	for rows.Next() {
		var h hit
		if err := rows.Scan(&h.id, &h.score); err != nil {
			return nil, errs.Internal("repository.SemanticSearch", "scan failed", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].id < hits[j].id
	})

	out := make([]model.Entity, 0, len(hits))
	for _, h := range hits {
		e, err := r.Get(ctx, h.id)
		if err != nil || e == nil {
			continue
		}
		e["_score"] = h.score
		out = append(out, e)
	}
	return out, nil
}

// Query dispatches on hint: "sql" treats queryText as a WHERE-clause
// fragment (still tenant-scoped); "semantic" delegates to SemanticSearch.
func (r *Repository) Query(ctx context.Context, queryText, hint string, limit int) ([]model.Entity, error) {
	switch hint {
	case "semantic":
		return r.SemanticSearch(ctx, queryText, "", limit, 0)
	case "sql", "":
		d := r.storage.Dialect()
		columns := make([]string, 0, len(r.desc.Fields))
		for _, f := range r.desc.Fields {
			columns = append(columns, f.Name)
		}
		q := fmt.Sprintf("SELECT %s FROM %s WHERE tenant_id = %s", strings.Join(columns, ", "), d.QuoteTable(r.desc.Table), d.Placeholder(1))
		if queryText != "" {
			q += " AND (" + queryText + ")"
		}
		q += " ORDER BY created_at DESC"
		if limit > 0 {
			q += fmt.Sprintf(" LIMIT %d", limit)
		}
		rows, err := r.storage.Query(ctx, q, r.tenantID)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return r.scanRows(rows)
	default:
		return nil, errs.Validation("repository.Query", fmt.Sprintf("unknown hint %q", hint))
	}
}

// contentHash returns the hex SHA-256 of s, a change-detection key for
// deciding whether an embedding-flagged field changed since the last upsert.
// Upsert itself does not consult it.
func contentHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", sum)
}

// ContentHash exposes contentHash for cross-package change detection.
func ContentHash(s string) string { return contentHash(s) }
