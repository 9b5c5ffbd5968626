package rem

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/healer-ai/p8fs/pkg/embedding"
	"github.com/healer-ai/p8fs/pkg/errs"
	"github.com/healer-ai/p8fs/pkg/kvstore"
	"github.com/healer-ai/p8fs/pkg/model"
	"github.com/healer-ai/p8fs/pkg/obs"
	"github.com/healer-ai/p8fs/pkg/repository"
	"github.com/healer-ai/p8fs/pkg/storage"
)

var uuidLike = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// ExecOptions carries the per-call knobs that live outside the REM grammar
// itself: the multi-key LOOKUP combinator, the out-of-grammar hybrid/graph
// hints, TRAVERSE's edge weight threshold, and a result cap.
type ExecOptions struct {
	Combinator Combinator
	Hint       string // "" | "hybrid" | "graph"
	Threshold  float64
	Limit      int
}

// Executor runs a Plan against the tenant repository and KV reverse index,
// constructed once per tenant and reused across queries.
type Executor struct {
	storage    *storage.Provider
	kv         *kvstore.Store
	embeddings *embedding.Service
	tenantID   string

	mu    sync.Mutex
	repos map[string]*repository.Repository
}

func NewExecutor(sp *storage.Provider, kv *kvstore.Store, emb *embedding.Service, tenantID string) *Executor {
	return &Executor{storage: sp, kv: kv, embeddings: emb, tenantID: tenantID, repos: make(map[string]*repository.Repository)}
}

func (e *Executor) repoFor(table string) (*repository.Repository, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r, ok := e.repos[table]; ok {
		return r, nil
	}
	r, err := repository.New(e.storage, e.kv, e.embeddings, e.tenantID, table)
	if err != nil {
		return nil, err
	}
	e.repos[table] = r
	return r, nil
}

// Execute runs plan, always returning a Result envelope: internal
// failures are captured as Result.Error/Success=false rather than a Go
// error, since a single bad query must never propagate past this boundary.
func (e *Executor) Execute(ctx context.Context, plan *Plan, opts ExecOptions) *Result {
	if opts.Combinator == "" {
		opts.Combinator = CombinatorAND
	}
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Hint == "" {
		opts.Hint = plan.Hint
	}

	switch opts.Hint {
	case "graph":
		return e.execGraphHint(ctx, plan, opts)
	case "hybrid":
		return e.execHybridHint(ctx, plan, opts)
	}

	switch plan.Kind {
	case KindLookup:
		return e.execLookup(ctx, plan, opts)
	case KindSearch:
		return e.execSearch(ctx, plan, opts)
	case KindSelect:
		return e.execSelect(ctx, plan, opts)
	case KindTraverse:
		return e.execTraverse(ctx, plan, opts)
	default:
		return errResult(plan.Raw, "unknown plan kind")
	}
}

func errResult(query, msg string) *Result {
	return &Result{Success: false, Query: query, Error: msg}
}

func okResult(query string, rows []map[string]any) *Result {
	return &Result{Success: true, Query: query, Results: rows, Count: len(rows)}
}

// --- LOOKUP ---

func (e *Executor) execLookup(ctx context.Context, plan *Plan, opts ExecOptions) *Result {
	if len(plan.Keys) == 0 {
		return okResult(plan.Raw, nil)
	}
	var keySets [][]string // per-key ordered, deduped candidate ids
	for _, k := range plan.Keys {
		table := k.Table
		if table == "" {
			table = plan.Table
		}
		if !WhitelistedTables[table] {
			return errResult(plan.Raw, fmt.Sprintf("table %q is not whitelisted", table))
		}
		ids, err := e.resolveKeyToIDs(ctx, table, k.Value)
		if err != nil {
			return errResult(plan.Raw, err.Error())
		}
		keySets = append(keySets, ids)
	}

	combined := combineSets(keySets, opts.Combinator)

	table := plan.Table
	if len(plan.Keys) == 1 && plan.Keys[0].Table != "" {
		table = plan.Keys[0].Table
	}
	repo, err := e.repoFor(table)
	if err != nil {
		return errResult(plan.Raw, err.Error())
	}
	rows := hydrate(ctx, repo, combined)
	return okResult(plan.Raw, rows)
}

// resolveKeyToIDs resolves one LOOKUP key: direct id fetch for UUID-shaped
// keys, else a reverse-index scan unioned across every entity_type known
// for this tenant (an untyped key does not say which type registered it).
func (e *Executor) resolveKeyToIDs(ctx context.Context, table, key string) ([]string, error) {
	if uuidLike.MatchString(key) {
		repo, err := e.repoFor(table)
		if err != nil {
			return nil, err
		}
		ent, err := repo.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if ent == nil {
			return nil, nil
		}
		return []string{key}, nil
	}

	seen := make(map[string]bool)
	var ordered []string
	for _, et := range e.kv.KnownEntityTypes(e.tenantID) {
		ids, err := e.kv.LookupReverseIndex(ctx, e.tenantID, key, et)
		if err != nil {
			log := obs.Component("rem.executor")
			log.Warn().Err(err).Str("entity_type", et).Msg("reverse index lookup failed")
			continue
		}
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				ordered = append(ordered, id)
			}
		}
	}
	return ordered, nil
}

func combineSets(sets [][]string, combinator Combinator) []string {
	if len(sets) == 0 {
		return nil
	}
	if len(sets) == 1 {
		return sets[0]
	}
	switch combinator {
	case CombinatorOR:
		seen := make(map[string]bool)
		var out []string
		for _, set := range sets {
			for _, id := range set {
				if !seen[id] {
					seen[id] = true
					out = append(out, id)
				}
			}
		}
		return out
	case CombinatorNOT:
		exclude := make(map[string]bool)
		for _, id := range sets[1] {
			exclude[id] = true
		}
		for _, extra := range sets[2:] {
			for _, id := range extra {
				exclude[id] = true
			}
		}
		var out []string
		for _, id := range sets[0] {
			if !exclude[id] {
				out = append(out, id)
			}
		}
		return out
	default: // AND
		counts := make(map[string]int)
		for _, set := range sets {
			seenInSet := make(map[string]bool)
			for _, id := range set {
				if seenInSet[id] {
					continue
				}
				seenInSet[id] = true
				counts[id]++
			}
		}
		var out []string
		for _, id := range sets[0] {
			if counts[id] == len(sets) {
				out = append(out, id)
			}
		}
		return dedup(out)
	}
}

func dedup(in []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, id := range in {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func hydrate(ctx context.Context, repo *repository.Repository, ids []string) []map[string]any {
	var out []map[string]any
	for _, id := range ids {
		e, err := repo.Get(ctx, id)
		if err != nil || e == nil {
			continue
		}
		out = append(out, map[string]any(e))
	}
	return out
}

// --- SEARCH ---

func (e *Executor) execSearch(ctx context.Context, plan *Plan, opts ExecOptions) *Result {
	repo, err := e.repoFor(plan.Table)
	if err != nil {
		return errResult(plan.Raw, err.Error())
	}
	entities, err := repo.SemanticSearch(ctx, plan.SearchText, "", opts.Limit, opts.Threshold)
	if err != nil {
		return errResult(plan.Raw, err.Error())
	}
	sort.SliceStable(entities, func(i, j int) bool {
		si, _ := entities[i]["_score"].(float64)
		sj, _ := entities[j]["_score"].(float64)
		if si != sj {
			return si > sj
		}
		return entities[i].ID() < entities[j].ID()
	})
	rows := make([]map[string]any, 0, len(entities))
	for _, ent := range entities {
		rows = append(rows, map[string]any(ent))
	}
	return okResult(plan.Raw, rows)
}

// --- SELECT ---

// execSelect runs plan's SQL fragment directly against the storage
// provider with the tenant predicate injected, rather than through
// repository.Select's equality-filter map, since SELECT's WHERE clause is
// an arbitrary (already-whitelisted-table) SQL expression.
func (e *Executor) execSelect(ctx context.Context, plan *Plan, opts ExecOptions) *Result {
	d := e.storage.Dialect()
	columns := plan.Columns
	if strings.TrimSpace(columns) == "" {
		columns = "*"
	}
	q := fmt.Sprintf("SELECT %s FROM %s WHERE tenant_id = %s", columns, d.QuoteTable(plan.Table), d.Placeholder(1))
	args := []any{e.tenantID}
	if plan.Where != "" {
		q += " AND (" + plan.Where + ")"
	}
	if plan.OrderBy != "" {
		q += " ORDER BY " + plan.OrderBy
	} else {
		q += " ORDER BY created_at DESC"
	}
	limit := opts.Limit
	if plan.Limit > 0 {
		limit = plan.Limit
	}
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := e.storage.Query(ctx, q, args...)
	if err != nil {
		return errResult(plan.Raw, err.Error())
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return errResult(plan.Raw, err.Error())
	}
	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return errResult(plan.Raw, err.Error())
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return errResult(plan.Raw, err.Error())
	}
	return okResult(plan.Raw, out)
}

// --- TRAVERSE ---

// execTraverse runs a cycle-safe BFS over graph_edges starting from
// plan.Seed, bounded by plan.Depth (default 2, max 5, validated by the
// parser), pruning edges below opts.Threshold (default 0).
func (e *Executor) execTraverse(ctx context.Context, plan *Plan, opts ExecOptions) *Result {
	desc, ok := model.Get(plan.Table)
	if !ok || !desc.HasGraphEdges {
		return errResult(plan.Raw, fmt.Sprintf("table %q has no graph_edges", plan.Table))
	}
	repo, err := e.repoFor(plan.Table)
	if err != nil {
		return errResult(plan.Raw, err.Error())
	}

	visited := map[string]bool{plan.Seed: true}
	order := []string{plan.Seed}
	frontier := []string{plan.Seed}

	for depth := 0; depth < plan.Depth && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			ent, err := repo.Get(ctx, id)
			if err != nil || ent == nil {
				continue
			}
			edges, err := decodeGraphEdges(ent["graph_edges"])
			if err != nil {
				continue
			}
			for _, edge := range edges {
				if edge.Weight < opts.Threshold {
					continue
				}
				if visited[edge.TargetID] {
					continue
				}
				visited[edge.TargetID] = true
				order = append(order, edge.TargetID)
				next = append(next, edge.TargetID)
			}
		}
		frontier = next
	}

	rows := hydrate(ctx, repo, order)
	return okResult(plan.Raw, rows)
}

func decodeGraphEdges(raw any) ([]model.GraphEdge, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []model.GraphEdge:
		return v, nil
	case []any:
		out := make([]model.GraphEdge, 0, len(v))
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			edge := model.GraphEdge{}
			edge.TargetID, _ = m["target_id"].(string)
			edge.Kind, _ = m["kind"].(string)
			switch w := m["weight"].(type) {
			case float64:
				edge.Weight = w
			case int:
				edge.Weight = float64(w)
			}
			out = append(out, edge)
		}
		return out, nil
	default:
		return nil, errs.Internal("rem.decodeGraphEdges", "unrecognized graph_edges shape", nil)
	}
}
