package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"github.com/healer-ai/p8fs/pkg/errs"
	"github.com/healer-ai/p8fs/pkg/model"
)

// Provider is the storage provider: dialect + recycling pool, exposing
// execute/query, DDL generation, and vector-search SQL assembly across
// dialects and across the full model.Descriptor family.
type Provider struct {
	dialect Dialect
	pool    *Pool
}

// Open constructs a Provider for dsn using the named dialect ("postgres" or
// "tidb"). Open does not read the environment: the cmd mains pass the
// configured storage.database_url value as dsn.
func Open(dialectName, dsn string, cfg PoolConfig) (*Provider, error) {
	dialect, err := NewDialect(dialectName)
	if err != nil {
		return nil, err
	}
	driver := "postgres"
	if dialect.Name() == "tidb" {
		driver = "mysql"
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errs.Dependency("storage.Open", "failed to open database handle", err)
	}
	return &Provider{dialect: dialect, pool: NewPool(db, cfg)}, nil
}

// Dialect exposes the dialect in use.
func (p *Provider) Dialect() Dialect { return p.dialect }

// EnsureSchema creates the relational and embedding tables for every
// registered model.Descriptor, idempotently (CREATE TABLE IF NOT EXISTS).
func (p *Provider) EnsureSchema(ctx context.Context) error {
	db, err := p.pool.Borrow(ctx)
	if err != nil {
		return errs.Transient("storage.EnsureSchema", "pool borrow failed", err)
	}
	for _, table := range model.Tables() {
		d, _ := model.Get(table)
		if _, err := db.ExecContext(ctx, p.dialect.CreateTableSQL(d)); err != nil {
			return errs.Internal("storage.EnsureSchema", "create table "+table, err)
		}
		if len(d.EmbeddingFields()) > 0 {
			if _, err := db.ExecContext(ctx, p.dialect.CreateEmbeddingTableSQL(d)); err != nil {
				return errs.Internal("storage.EnsureSchema", "create embeddings table "+table, err)
			}
		}
	}
	return nil
}

// Exec runs a parameterized statement, classifying errors: a closed
// connection/context deadline is Transient, anything else is Internal
// (malformed SQL is a permanent/programmer error, not worth retrying).
func (p *Provider) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	db, err := p.pool.Borrow(ctx)
	if err != nil {
		return nil, errs.Transient("storage.Exec", "pool borrow failed", err)
	}
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, classifyExecErr(err)
	}
	return res, nil
}

// Query runs a parameterized query and returns *sql.Rows.
func (p *Provider) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	db, err := p.pool.Borrow(ctx)
	if err != nil {
		return nil, errs.Transient("storage.Query", "pool borrow failed", err)
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifyExecErr(err)
	}
	return rows, nil
}

func classifyExecErr(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "deadline exceeded"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "too many connections"),
		strings.Contains(msg, "driver: bad connection"):
		return errs.Transient("storage.exec", "transient backend error", err)
	default:
		return errs.Internal("storage.exec", "backend error", err)
	}
}

// SemanticSearchSQL builds the vector-similarity query over the model's
// embeddings sibling table: score = 1 - cosine distance, descending,
// thresholded and capped, generalized across dialects via
// Dialect.CosineDistanceExpr.
func (p *Provider) SemanticSearchSQL(d model.Descriptor, field string, k int, threshold float64) (string, []int) {
	embTable := p.dialect.QuoteTable(d.EmbeddingsTable())
	vecParam := p.dialect.Placeholder(1)
	scoreExpr := fmt.Sprintf("1 - %s", p.dialect.CosineDistanceExpr("e.embedding", vecParam))
	query := fmt.Sprintf(
		`SELECT e.entity_id, %s AS score FROM %s e
WHERE e.tenant_id = %s AND e.field_name = %s AND %s >= %s
ORDER BY %s DESC
LIMIT %d`,
		scoreExpr, embTable,
		p.dialect.Placeholder(2), p.dialect.Placeholder(3),
		scoreExpr, p.dialect.Placeholder(4),
		scoreExpr, k,
	)
	return query, []int{1, 2, 3, 4} // vec, tenant_id, field_name, threshold — positional contract for callers
}

// VectorSimilaritySearchSQL is the general cross-entity form of
// SemanticSearchSQL: it targets a raw vector column declared directly on
// table rather than the embeddings sibling table SemanticSearchSQL assumes.
// Every model in this repo stores vectors in the sibling
// embeddings.<table>_embeddings table, so pkg/repository always goes
// through SemanticSearchSQL; this form exists for a future model that
// embeds a vector column inline.
func (p *Provider) VectorSimilaritySearchSQL(table, vectorColumn string, k int) string {
	vecParam := p.dialect.Placeholder(1)
	distExpr := p.dialect.CosineDistanceExpr(vectorColumn, vecParam)
	return fmt.Sprintf(
		`SELECT id, (1 - %s) AS score FROM %s WHERE tenant_id = %s ORDER BY %s ASC LIMIT %d`,
		distExpr, p.dialect.QuoteTable(table), p.dialect.Placeholder(2), distExpr, k,
	)
}

// RawDB exposes the underlying *sql.DB for callers that need a handle a
// generic driver can consume directly, such as
// pkg/entity.NewPostgresRegistry. Prefer Exec/Query where possible;
// this exists only because some constructors take *sql.DB, not a Provider.
func (p *Provider) RawDB(ctx context.Context) (*sql.DB, error) {
	return p.pool.Borrow(ctx)
}

// Close releases the underlying pool.
func (p *Provider) Close() error { return p.pool.Close() }

// Ping is a direct database liveness check with a 2-second timeout.
func (p *Provider) Ping(ctx context.Context) error {
	db, err := p.pool.Borrow(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}
