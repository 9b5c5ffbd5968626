package rem

import (
	"context"
	"fmt"
	"sort"

	"github.com/healer-ai/p8fs/pkg/model"
)

// RRF constants: k=60 for both ranking lists, equal 0.5/0.5 weighting.
const (
	rrfK             = 60
	rrfVectorWeight  = 0.5
	rrfKeywordWeight = 0.5
)

// execHybridHint fuses a SEARCH-style semantic pass with a SELECT-style
// keyword pass via Reciprocal Rank Fusion.
func (e *Executor) execHybridHint(ctx context.Context, plan *Plan, opts ExecOptions) *Result {
	table := plan.Table
	text := plan.SearchText
	if text == "" {
		text = plan.Where
	}
	if text == "" && len(plan.Keys) > 0 {
		text = plan.Keys[0].Value
	}
	if text == "" {
		return errResult(plan.Raw, "hybrid hint requires search text")
	}

	repo, err := e.repoFor(table)
	if err != nil {
		return errResult(plan.Raw, err.Error())
	}

	var vectorRanked, keywordRanked []string
	if semantic, serr := repo.SemanticSearch(ctx, text, "", opts.Limit, 0); serr == nil {
		for _, ent := range semantic {
			vectorRanked = append(vectorRanked, ent.ID())
		}
	}

	desc, _ := model.Get(table)
	keywordField := "content"
	if fields := desc.EmbeddingFields(); len(fields) > 0 {
		keywordField = fields[0].Name
	}
	d := e.storage.Dialect()
	likeOp := "ILIKE"
	if d.Name() == "tidb" {
		likeOp = "LIKE"
	}
	q := fmt.Sprintf("SELECT id FROM %s WHERE tenant_id = %s AND %s %s %s ORDER BY created_at DESC LIMIT %d",
		d.QuoteTable(table), d.Placeholder(1), keywordField, likeOp, d.Placeholder(2), opts.Limit)
	if rows, qerr := e.storage.Query(ctx, q, e.tenantID, "%"+text+"%"); qerr == nil {
		defer rows.Close()
		for rows.Next() {
			var id string
			if rows.Scan(&id) == nil {
				keywordRanked = append(keywordRanked, id)
			}
		}
	}

	fused := rrfFuse(vectorRanked, keywordRanked)
	if len(fused) > opts.Limit {
		fused = fused[:opts.Limit]
	}
	rows := hydrate(ctx, repo, fused)
	return okResult(plan.Raw, rows)
}

// rrfFuse combines two already-ranked id lists via Reciprocal Rank Fusion,
// score = weight * (1 / (k + rank)). It operates on bare ids; the caller
// hydrates the fused ids into rows afterwards.
func rrfFuse(vectorRanked, keywordRanked []string) []string {
	scores := make(map[string]float64)
	order := make([]string, 0, len(vectorRanked)+len(keywordRanked))
	addRank := func(ids []string, weight float64) {
		for i, id := range ids {
			if _, ok := scores[id]; !ok {
				order = append(order, id)
			}
			scores[id] += weight * (1.0 / float64(rrfK+i+1))
		}
	}
	addRank(vectorRanked, rrfVectorWeight)
	addRank(keywordRanked, rrfKeywordWeight)

	sort.SliceStable(order, func(i, j int) bool {
		if scores[order[i]] != scores[order[j]] {
			return scores[order[i]] > scores[order[j]]
		}
		return order[i] < order[j]
	})
	return order
}

// execGraphHint is the "graph" hint mode: a thin TRAVERSE wrapper starting
// from the plan's seed/lookup key.
func (e *Executor) execGraphHint(ctx context.Context, plan *Plan, opts ExecOptions) *Result {
	seed := plan.Seed
	if seed == "" && len(plan.Keys) > 0 {
		seed = plan.Keys[0].Value
	}
	if seed == "" {
		seed = plan.SearchText
	}
	if seed == "" {
		return errResult(plan.Raw, "graph hint requires a seed key")
	}
	depth := plan.Depth
	if depth <= 0 {
		depth = 2
	}
	traversal := &Plan{Kind: KindTraverse, Raw: plan.Raw, Table: plan.Table, Seed: seed, Depth: depth}
	return e.execTraverse(ctx, traversal, opts)
}
