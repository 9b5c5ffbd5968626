package kvstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"github.com/healer-ai/p8fs/pkg/errs"
)

// SQLDurable is the durable, source-of-truth backend: kv_store table shape,
// optimistic-concurrency Put, env-var DSN precedence (KV_DATABASE_URL >
// DATABASE_URL > METADATA_DATABASE_URL), with an expires_at column for TTL
// support.
type SQLDurable struct {
	db      *sql.DB
	dialect string // "postgres" | "tidb"
}

// NewSQLDurableFromEnv resolves the DSN from environment precedence and
// opens the durable backend.
func NewSQLDurableFromEnv(dialect string) (*SQLDurable, error) {
	dsn := firstNonEmpty(os.Getenv("KV_DATABASE_URL"), os.Getenv("DATABASE_URL"), os.Getenv("METADATA_DATABASE_URL"))
	if dsn == "" {
		return nil, errs.Dependency("kvstore.NewSQLDurableFromEnv", "no KV/DATABASE_URL configured", nil)
	}
	return NewSQLDurable(dialect, dsn)
}

func NewSQLDurable(dialect, dsn string) (*SQLDurable, error) {
	driver := "postgres"
	if dialect == "tidb" || dialect == "mysql" {
		driver = "mysql"
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errs.Dependency("kvstore.NewSQLDurable", "open failed", err)
	}
	s := &SQLDurable{db: db, dialect: dialect}
	if err := s.ensureTable(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLDurable) ensureTable() error {
	var ddl string
	if s.dialect == "tidb" || s.dialect == "mysql" {
		ddl = `CREATE TABLE IF NOT EXISTS kv_store (
  tenant_id VARCHAR(255) NOT NULL,
  project_id VARCHAR(255) NOT NULL DEFAULT '',
  ` + "`key`" + ` VARCHAR(767) NOT NULL,
  value JSON,
  version BIGINT NOT NULL DEFAULT 1,
  expires_at DATETIME(6) NULL,
  updated_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
  PRIMARY KEY (tenant_id, project_id, ` + "`key`" + `)
);`
	} else {
		ddl = `CREATE TABLE IF NOT EXISTS kv_store (
  tenant_id TEXT NOT NULL,
  project_id TEXT NOT NULL DEFAULT '',
  key TEXT NOT NULL,
  value JSONB,
  version BIGINT NOT NULL DEFAULT 1,
  expires_at TIMESTAMPTZ NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  PRIMARY KEY (tenant_id, project_id, key)
);`
	}
	_, err := s.db.Exec(ddl)
	return err
}

// Put implements the version-checked read-modify-write inside a transaction,
// plus TTL.
func (s *SQLDurable) Put(ctx context.Context, rec Record, expectedVersion int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errs.Transient("kvstore.Put", "begin tx", err)
	}
	defer tx.Rollback()

	ph := s.placeholders(5)
	var currentVersion int64
	q := fmt.Sprintf(`SELECT version FROM kv_store WHERE tenant_id=%s AND project_id=%s AND `+s.keyCol()+`=%s`, ph[0], ph[1], ph[2])
	row := tx.QueryRowContext(ctx, q, rec.TenantID, rec.ProjectID, rec.Key)
	err = row.Scan(&currentVersion)

	var expiresAt any
	if rec.TTL > 0 {
		expiresAt = time.Now().Add(rec.TTL)
	}

	switch {
	case err == sql.ErrNoRows:
		if expectedVersion > 0 {
			return 0, errs.Conflict("kvstore.Put", "row does not exist for expected version")
		}
		ins := fmt.Sprintf(`INSERT INTO kv_store (tenant_id, project_id, `+s.keyCol()+`, value, version, expires_at) VALUES (%s,%s,%s,%s,1,%s)`,
			ph[0], ph[1], ph[2], ph[3], ph[4])
		if _, err := tx.ExecContext(ctx, ins, rec.TenantID, rec.ProjectID, rec.Key, rec.Value, expiresAt); err != nil {
			return 0, errs.Internal("kvstore.Put", "insert failed", err)
		}
		if err := tx.Commit(); err != nil {
			return 0, errs.Transient("kvstore.Put", "commit failed", err)
		}
		return 1, nil
	case err != nil:
		return 0, errs.Internal("kvstore.Put", "select failed", err)
	}

	if expectedVersion > 0 && currentVersion != expectedVersion {
		return 0, errs.Conflict("kvstore.Put", "version mismatch")
	}
	newVersion := currentVersion + 1
	ph6 := s.placeholders(6)
	upd := fmt.Sprintf(`UPDATE kv_store SET value=%s, version=%s, expires_at=%s WHERE tenant_id=%s AND project_id=%s AND `+s.keyCol()+`=%s`,
		ph6[0], ph6[1], ph6[2], ph6[3], ph6[4], ph6[5])
	if _, err := tx.ExecContext(ctx, upd, rec.Value, newVersion, expiresAt, rec.TenantID, rec.ProjectID, rec.Key); err != nil {
		return 0, errs.Internal("kvstore.Put", "update failed", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, errs.Transient("kvstore.Put", "commit failed", err)
	}
	return newVersion, nil
}

func (s *SQLDurable) Get(ctx context.Context, tenantID, projectID, key string) (*Record, error) {
	ph := s.placeholders(3)
	q := fmt.Sprintf(`SELECT value, version FROM kv_store WHERE tenant_id=%s AND project_id=%s AND `+s.keyCol()+`=%s AND (expires_at IS NULL OR expires_at > %s)`,
		ph[0], ph[1], ph[2], s.now())
	row := s.db.QueryRowContext(ctx, q, tenantID, projectID, key)
	var rec Record
	rec.TenantID, rec.ProjectID, rec.Key = tenantID, projectID, key
	if err := row.Scan(&rec.Value, &rec.Version); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errs.Internal("kvstore.Get", "select failed", err)
	}
	return &rec, nil
}

func (s *SQLDurable) Delete(ctx context.Context, tenantID, projectID, key string, expectedVersion int64) (bool, error) {
	ph := s.placeholders(3)
	q := fmt.Sprintf(`DELETE FROM kv_store WHERE tenant_id=%s AND project_id=%s AND `+s.keyCol()+`=%s`, ph[0], ph[1], ph[2])
	res, err := s.db.ExecContext(ctx, q, tenantID, projectID, key)
	if err != nil {
		return false, errs.Internal("kvstore.Delete", "delete failed", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListKeys runs a LIKE prefix+"%" scan, ordered and limited, restricted to
// non-expired rows so TTL stays authoritative.
func (s *SQLDurable) ListKeys(ctx context.Context, tenantID, projectID, prefix string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	ph := s.placeholders(3)
	q := fmt.Sprintf(`SELECT `+s.keyCol()+` FROM kv_store WHERE tenant_id=%s AND project_id=%s AND `+s.keyCol()+` LIKE %s AND (expires_at IS NULL OR expires_at > %s) ORDER BY `+s.keyCol()+` LIMIT %d`,
		ph[0], ph[1], ph[2], s.now(), limit)
	rows, err := s.db.QueryContext(ctx, q, tenantID, projectID, prefix+"%")
	if err != nil {
		return nil, errs.Internal("kvstore.ListKeys", "query failed", err)
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, errs.Internal("kvstore.ListKeys", "scan failed", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *SQLDurable) Close() error { return s.db.Close() }

func (s *SQLDurable) placeholders(n int) []string {
	out := make([]string, n)
	for i := range out {
		if s.dialect == "tidb" || s.dialect == "mysql" {
			out[i] = "?"
		} else {
			out[i] = fmt.Sprintf("$%d", i+1)
		}
	}
	return out
}

// keyCol returns the key column reference, backtick-quoted on MySQL/TiDB
// where KEY is a reserved word.
func (s *SQLDurable) keyCol() string {
	if s.dialect == "tidb" || s.dialect == "mysql" {
		return "`key`"
	}
	return "key"
}

func (s *SQLDurable) now() string {
	if s.dialect == "tidb" || s.dialect == "mysql" {
		return "CURRENT_TIMESTAMP(6)"
	}
	return "now()"
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
