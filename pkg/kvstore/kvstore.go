// Package kvstore implements a tenant-addressable map with TTL and prefix
// scan, dual-backed by a durable relational table (source of truth for
// existence/TTL/scan) and a fast secondary store used to accelerate reads.
//
// The durable table carries an optimistic-concurrency version column and a
// TTL column; the fast secondary is go-redis/v8 in production, with
// dgraph-io/badger/v4 as the no-network fallback.
package kvstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/healer-ai/p8fs/pkg/errs"
	"github.com/healer-ai/p8fs/pkg/obs"
)

// Record is one KV row, scoped by tenant_id and project_id.
type Record struct {
	TenantID  string
	ProjectID string
	Key       string
	Value     []byte
	Version   int64
	TTL       time.Duration // zero means no expiry
}

// Durable is the source-of-truth backend: writes with TTL go to the durable
// table so scan/TTL expiry stay authoritative.
type Durable interface {
	Put(ctx context.Context, rec Record, expectedVersion int64) (int64, error)
	Get(ctx context.Context, tenantID, projectID, key string) (*Record, error)
	Delete(ctx context.Context, tenantID, projectID, key string, expectedVersion int64) (bool, error)
	ListKeys(ctx context.Context, tenantID, projectID, prefix string, limit int) ([]string, error)
	Close() error
}

// Fast is the secondary accelerator backend. It never needs to be
// authoritative; callers must tolerate lost writes.
type Fast interface {
	Get(ctx context.Context, scopedKey string) ([]byte, bool, error)
	Set(ctx context.Context, scopedKey string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, scopedKey string) error
	Close() error
}

// Store is the dual-backed KV store.
type Store struct {
	durable Durable
	fast    Fast

	typeMu    sync.Mutex
	typeIndex map[string]map[string]bool // tenant_id -> set of known entity_types
}

// New builds a dual-backed Store. fast may be nil, in which case reads and
// writes go directly to durable (acceptable degraded mode; still correct,
// just without the fast-path acceleration).
func New(durable Durable, fast Fast) *Store {
	return &Store{durable: durable, fast: fast, typeIndex: make(map[string]map[string]bool)}
}

func scopedKey(tenantID, projectID, key string) string {
	return tenantID + "|" + projectID + "|" + key
}

// Put writes value under key with an optional ttl. TTL-bearing writes (and
// all writes generally) land in the durable table first, so scan and expiry
// stay authoritative; the fast store is updated best-effort afterward.
func (s *Store) Put(ctx context.Context, tenantID, projectID, key string, value []byte, ttl time.Duration) (int64, error) {
	if tenantID == "" {
		return 0, errs.Validation("kvstore.Put", "tenant_id is required")
	}
	version, err := s.durable.Put(ctx, Record{TenantID: tenantID, ProjectID: projectID, Key: key, Value: value, TTL: ttl}, 0)
	if err != nil {
		return 0, err
	}
	if s.fast != nil {
		if ferr := s.fast.Set(ctx, scopedKey(tenantID, projectID, key), value, ttl); ferr != nil {
			log := obs.Component("kvstore")
			log.Warn().Err(ferr).Str("tenant_id", tenantID).Msg("fast-store write failed, durable write still applied")
		}
	}
	return version, nil
}

// Get reads key, consulting the fast store first and falling back to the
// durable table. A nil, nil return means not found.
func (s *Store) Get(ctx context.Context, tenantID, projectID, key string) ([]byte, error) {
	if tenantID == "" {
		return nil, errs.Validation("kvstore.Get", "tenant_id is required")
	}
	if s.fast != nil {
		if v, ok, err := s.fast.Get(ctx, scopedKey(tenantID, projectID, key)); err == nil && ok {
			return v, nil
		}
	}
	rec, err := s.durable.Get(ctx, tenantID, projectID, key)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	if s.fast != nil {
		_ = s.fast.Set(ctx, scopedKey(tenantID, projectID, key), rec.Value, 0)
	}
	return rec.Value, nil
}

// Delete removes key from both backends.
func (s *Store) Delete(ctx context.Context, tenantID, projectID, key string) (bool, error) {
	ok, err := s.durable.Delete(ctx, tenantID, projectID, key, 0)
	if err != nil {
		return false, err
	}
	if s.fast != nil {
		_ = s.fast.Delete(ctx, scopedKey(tenantID, projectID, key))
	}
	return ok, nil
}

// Scan lists up to limit values whose keys share prefix. Authoritative
// against the durable table only, since the fast store does
// not support prefix iteration for every backend (Redis SCAN cost aside,
// Badger's is fine, but the contract must hold for either).
func (s *Store) Scan(ctx context.Context, tenantID, projectID, prefix string, limit int) ([][]byte, error) {
	keys, err := s.durable.ListKeys(ctx, tenantID, projectID, prefix, limit)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(keys))
	for _, k := range keys {
		v, err := s.Get(ctx, tenantID, projectID, k)
		if err != nil || v == nil {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// --- Reverse-entity-index convention ---

// ReverseIndexKey builds the {tenant_id}/{entity_id}/{entity_type} key.
func ReverseIndexKey(tenantID, entityID, entityType string) string {
	return tenantID + "/" + entityID + "/" + entityType
}

type reverseIndexValue struct {
	EntityType string   `json:"entity_type"`
	EntityIDs  []string `json:"entity_ids"`
}

// AppendReverseIndex performs a read-modify-write set union. Failures are
// logged and swallowed by the caller's policy (see pkg/repository), never
// surfaced as an upsert failure. Two concurrent appends to the same key can
// lose an update; readers reconcile from the relational store on demand, so
// the index stays a best-effort denormalization rather than a source of
// truth.
func (s *Store) AppendReverseIndex(ctx context.Context, tenantID, entityID, entityType, resourceID string) error {
	key := ReverseIndexKey(tenantID, entityID, entityType)
	existing, err := s.Get(ctx, tenantID, "", key)
	if err != nil {
		return err
	}
	val := reverseIndexValue{EntityType: entityType}
	if existing != nil {
		val = decodeReverseIndex(existing, entityType)
	}
	if !containsStr(val.EntityIDs, resourceID) {
		val.EntityIDs = append(val.EntityIDs, resourceID)
	}
	encoded := encodeReverseIndex(val)
	_, err = s.Put(ctx, tenantID, "", key, encoded, 0)
	return err
}

// LookupReverseIndex returns the resource ids registered under
// {tenant_id}/{entityID}/{entityType}. A missing key returns (nil, nil):
// callers must treat empty results as "unknown", not "none".
func (s *Store) LookupReverseIndex(ctx context.Context, tenantID, entityID, entityType string) ([]string, error) {
	key := ReverseIndexKey(tenantID, entityID, entityType)
	v, err := s.Get(ctx, tenantID, "", key)
	if err != nil || v == nil {
		return nil, err
	}
	return decodeReverseIndex(v, entityType).EntityIDs, nil
}

// RecordEntityType registers entityType as seen for tenantID, feeding the
// untyped-LOOKUP fallback: a small in-memory per-tenant registry of
// entity_types, populated by pkg/repository whenever
// it dual-writes the reverse index, so pkg/rem can enumerate candidate
// types for a LOOKUP key given without a "table:" prefix. This registry is
// process-local and best-effort; a cold-started process rebuilds it as
// upserts flow through, which is acceptable since it only prunes how many
// reverse-index reads a LOOKUP needs to try, never correctness.
func (s *Store) RecordEntityType(tenantID, entityType string) {
	if tenantID == "" || entityType == "" {
		return
	}
	s.typeMu.Lock()
	defer s.typeMu.Unlock()
	set, ok := s.typeIndex[tenantID]
	if !ok {
		set = make(map[string]bool)
		s.typeIndex[tenantID] = set
	}
	set[entityType] = true
}

// KnownEntityTypes returns the entity_types recorded for tenantID so far.
func (s *Store) KnownEntityTypes(tenantID string) []string {
	s.typeMu.Lock()
	defer s.typeMu.Unlock()
	set := s.typeIndex[tenantID]
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	return out
}

// --- Scheduler-lease convention ---

// LeaseKey builds the lease/{tenant_id}/{pipeline} scheduler-lease key.
func LeaseKey(tenantID, pipeline string) string {
	return "lease/" + tenantID + "/" + pipeline
}

// AcquireLease takes the scheduler lease for (tenantID, pipeline) when no
// live lease exists, with ttl set to the pipeline's wall-clock budget.
// Returns false when another holder's lease is still live. Existence is
// checked against the durable table directly (not the fast store), since
// the durable table is the source of truth for existence and TTL expiry.
// Two schedulers racing on the same instant can both acquire; the lease
// bounds duplicate work, it does not serialize it perfectly.
func (s *Store) AcquireLease(ctx context.Context, tenantID, pipeline string, ttl time.Duration) (bool, error) {
	key := LeaseKey(tenantID, pipeline)
	existing, err := s.durable.Get(ctx, tenantID, "", key)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}
	if _, err := s.Put(ctx, tenantID, "", key, []byte("held"), ttl); err != nil {
		return false, err
	}
	return true, nil
}

// ReleaseLease drops the lease early when a pipeline finishes under budget.
func (s *Store) ReleaseLease(ctx context.Context, tenantID, pipeline string) error {
	_, err := s.Delete(ctx, tenantID, "", LeaseKey(tenantID, pipeline))
	return err
}

// SessionMessageKey builds the session-{session_id}-msg-{ordinal} convention.
func SessionMessageKey(sessionID string, ordinal int) string {
	return "session-" + sessionID + "-msg-" + itoa(ordinal)
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func encodeReverseIndex(v reverseIndexValue) []byte {
	var b strings.Builder
	b.WriteString(`{"entity_type":"`)
	b.WriteString(v.EntityType)
	b.WriteString(`","entity_ids":[`)
	for i, id := range v.EntityIDs {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(id, `"`, `\"`))
		b.WriteByte('"')
	}
	b.WriteString(`]}`)
	return []byte(b.String())
}

// decodeReverseIndex parses the minimal JSON shape written by
// encodeReverseIndex without pulling in encoding/json for this hot,
// fixed-shape path; falls back to an empty set on malformed input (the
// reverse index is a best-effort denormalization, readers tolerate loss).
func decodeReverseIndex(raw []byte, entityType string) reverseIndexValue {
	s := string(raw)
	start := strings.Index(s, `"entity_ids":[`)
	if start < 0 {
		return reverseIndexValue{EntityType: entityType}
	}
	s = s[start+len(`"entity_ids":[`):]
	end := strings.IndexByte(s, ']')
	if end < 0 {
		return reverseIndexValue{EntityType: entityType}
	}
	s = s[:end]
	var ids []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		part = strings.Trim(part, `"`)
		if part != "" {
			ids = append(ids, part)
		}
	}
	return reverseIndexValue{EntityType: entityType, EntityIDs: ids}
}

func (s *Store) Close() error {
	var err error
	if s.durable != nil {
		err = s.durable.Close()
	}
	if s.fast != nil {
		if ferr := s.fast.Close(); ferr != nil && err == nil {
			err = ferr
		}
	}
	return err
}
