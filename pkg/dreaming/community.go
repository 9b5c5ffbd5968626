package dreaming

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/healer-ai/p8fs/pkg/model"
	"github.com/healer-ai/p8fs/pkg/obs"
	"github.com/healer-ai/p8fs/pkg/repository"
)

// DetectCommunities is the optional community-detection sub-pipeline
// (config.Dreaming.CommunityEnabled): it builds a weighted graph from every
// resource touched within lookback and its affinity edges (BuildAffinity
// must have populated graph_edges for this to find anything), clusters the
// graph by weighted label propagation, labels each cluster (LLM when llm is
// non-nil, keyword fallback otherwise), and stamps each member resource's
// metadata with its community_id and community_label. Singleton clusters
// are left unstamped.
func DetectCommunities(ctx context.Context, sp *storageProviders, tenantID string, lookback time.Duration, llm *LLM) (int, error) {
	log := obs.WithTenant(obs.Component("dreaming.community"), tenantID)

	resources, err := repository.New(sp.Storage, sp.KV, sp.Embeddings, tenantID, "resources")
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-lookback)
	rows, err := resources.Select(ctx, nil, "", 500)
	if err != nil {
		return 0, err
	}

	byID := make(map[string]model.Entity, len(rows))
	adjacency := make(map[string]map[string]float64)
	for _, r := range rows {
		ts, ok := rowTime(r["created_at"])
		if ok && ts.Before(cutoff) {
			continue
		}
		id := r.ID()
		byID[id] = r
		for _, e := range toGraphEdges(r["graph_edges"]) {
			if e.TargetID == "" || e.TargetID == id || e.Weight <= 0 {
				continue
			}
			addEdge(adjacency, id, e.TargetID, e.Weight)
		}
	}
	if len(adjacency) == 0 {
		return 0, nil
	}

	membership := propagateLabels(adjacency, 10)

	membersOf := make(map[string][]string)
	for id, communityID := range membership {
		membersOf[communityID] = append(membersOf[communityID], id)
	}

	labels := make(map[string]string, len(membersOf))
	for communityID, members := range membersOf {
		if len(members) < 2 {
			continue // singleton clusters carry no signal worth labeling
		}
		summaries := make([]string, 0, len(members))
		for _, mid := range members {
			if r, ok := byID[mid]; ok {
				if s := rowString(r["summary"]); s != "" {
					summaries = append(summaries, s)
				} else if c := rowString(r["content"]); c != "" {
					summaries = append(summaries, c)
				}
			}
		}
		label := labelCommunity(ctx, llm, summaries)
		if label == "" {
			log.Warn().Str("community_id", communityID).Msg("community labeling produced nothing, leaving unlabeled")
			continue
		}
		labels[communityID] = label
	}

	stamped := 0
	for id, communityID := range membership {
		if len(membersOf[communityID]) < 2 {
			continue
		}
		r, ok := byID[id]
		if !ok {
			continue
		}
		meta, _ := r["metadata"].(map[string]any)
		if meta == nil {
			meta = map[string]any{}
		}
		meta["community_id"] = communityID
		if label, ok := labels[communityID]; ok {
			meta["community_label"] = label
		}
		r["metadata"] = meta
		if _, err := resources.Upsert(ctx, []model.Entity{r}, false); err != nil {
			log.Warn().Err(err).Str("resource_id", id).Msg("community stamp write failed")
			continue
		}
		stamped++
	}
	return stamped, nil
}

func addEdge(adjacency map[string]map[string]float64, a, b string, w float64) {
	for _, pair := range [2][2]string{{a, b}, {b, a}} {
		m, ok := adjacency[pair[0]]
		if !ok {
			m = make(map[string]float64)
			adjacency[pair[0]] = m
		}
		m[pair[1]] += w
	}
}

// propagateLabels clusters the weighted graph by label propagation: every
// node starts labeled with its own id, then repeatedly adopts the label
// carrying the most incident edge weight among its neighbors. Updates apply
// in place as the sweep runs; nodes are visited in sorted order and weight
// ties break on the lexicographically smaller label, so the result is
// deterministic. The loop
// stops when a round changes nothing or after maxRounds. The returned map
// assigns each node its community id (the surviving label, itself a member
// resource id).
func propagateLabels(adjacency map[string]map[string]float64, maxRounds int) map[string]string {
	nodes := make([]string, 0, len(adjacency))
	labels := make(map[string]string, len(adjacency))
	for id := range adjacency {
		nodes = append(nodes, id)
		labels[id] = id
	}
	sort.Strings(nodes)

	for round := 0; round < maxRounds; round++ {
		changed := false
		for _, id := range nodes {
			weightByLabel := make(map[string]float64)
			for neighbor, w := range adjacency[id] {
				if l, ok := labels[neighbor]; ok {
					weightByLabel[l] += w
				}
			}
			if len(weightByLabel) == 0 {
				continue
			}
			best := labels[id]
			bestWeight := weightByLabel[best]
			for l, w := range weightByLabel {
				if w > bestWeight || (w == bestWeight && l < best) {
					best = l
					bestWeight = w
				}
			}
			if best != labels[id] {
				labels[id] = best
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return labels
}

const communityLabelSystemPrompt = `You name clusters of related content for a memory graph.
Given the summaries of resources that cluster together, respond with ONLY a JSON object of the shape:
{"label": "Two To Four Words"}
The label names the cluster's shared topic. Never echo a summary verbatim.`

// labelCommunity names one cluster from its members' summaries: an LLM call
// when one is wired, a keyword-frequency fallback otherwise or when the LLM
// response is unusable.
func labelCommunity(ctx context.Context, llm *LLM, summaries []string) string {
	if len(summaries) == 0 {
		return ""
	}
	if llm != nil {
		prompt := "Cluster members:\n- " + strings.Join(summaries, "\n- ")
		if resp, err := llm.Complete(ctx, communityLabelSystemPrompt, prompt); err == nil {
			var parsed struct {
				Label string `json:"label"`
			}
			if err := ExtractJSON(resp, &parsed); err == nil && strings.TrimSpace(parsed.Label) != "" {
				return strings.TrimSpace(parsed.Label)
			}
		}
	}
	return keywordLabel(summaries)
}

var labelStopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "in": true, "is": true,
	"it": true, "of": true, "on": true, "or": true, "that": true, "the": true,
	"this": true, "to": true, "was": true, "were": true, "with": true,
}

// keywordLabel builds a label from the three most frequent non-stopword
// tokens across the members' summaries, most frequent first, frequency ties
// breaking alphabetically.
func keywordLabel(summaries []string) string {
	counts := make(map[string]int)
	for _, s := range summaries {
		for _, tok := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
			return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
		}) {
			if len(tok) < 3 || labelStopwords[tok] {
				continue
			}
			counts[tok]++
		}
	}
	if len(counts) == 0 {
		return ""
	}
	tokens := make([]string, 0, len(counts))
	for t := range counts {
		tokens = append(tokens, t)
	}
	sort.Slice(tokens, func(i, j int) bool {
		if counts[tokens[i]] != counts[tokens[j]] {
			return counts[tokens[i]] > counts[tokens[j]]
		}
		return tokens[i] < tokens[j]
	})
	if len(tokens) > 3 {
		tokens = tokens[:3]
	}
	return strings.Join(tokens, " ")
}

// toGraphEdges mirrors pkg/repository's toRelatedEntities: a field decoded
// from stored JSON round-trips through Select as []interface{} of
// map[string]interface{}, not the typed []model.GraphEdge a caller just
// wrote, so anything reading graph_edges back after a Select needs this
// conversion.
func toGraphEdges(raw any) []model.GraphEdge {
	switch v := raw.(type) {
	case []model.GraphEdge:
		return v
	case nil:
		return nil
	default:
		b, err := json.Marshal(raw)
		if err != nil {
			return nil
		}
		var out []model.GraphEdge
		if err := json.Unmarshal(b, &out); err != nil {
			return nil
		}
		return out
	}
}
