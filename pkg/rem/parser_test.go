package rem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLookupSingleKey(t *testing.T) {
	plan, err := Parse("LOOKUP sarah-chen IN resources", "resources")
	require.NoError(t, err)
	assert.Equal(t, KindLookup, plan.Kind)
	assert.Equal(t, "resources", plan.Table)
	require.Len(t, plan.Keys, 1)
	assert.Equal(t, "sarah-chen", plan.Keys[0].Value)
}

func TestParseLookupMultiKeyMixedQuotes(t *testing.T) {
	plan, err := Parse(`LOOKUP "sarah-chen", 'tidb', plain-key IN resources`, "resources")
	require.NoError(t, err)
	require.Len(t, plan.Keys, 3)
	assert.Equal(t, "sarah-chen", plan.Keys[0].Value)
	assert.Equal(t, "tidb", plan.Keys[1].Value)
	assert.Equal(t, "plain-key", plan.Keys[2].Value)
}

func TestParseLookupEmptyKeysFiltered(t *testing.T) {
	plan, err := Parse("LOOKUP a,,b IN resources", "resources")
	require.NoError(t, err)
	require.Len(t, plan.Keys, 2)
}

func TestParseLookupTableOverride(t *testing.T) {
	plan, err := Parse("LOOKUP moments:m1 IN resources", "resources")
	require.NoError(t, err)
	require.Len(t, plan.Keys, 1)
	assert.Equal(t, "moments", plan.Keys[0].Table)
	assert.Equal(t, "m1", plan.Keys[0].Value)
}

func TestParseGetIsLookupAlias(t *testing.T) {
	plan, err := Parse("GET some-id IN files", "resources")
	require.NoError(t, err)
	assert.Equal(t, KindLookup, plan.Kind)
	assert.Equal(t, "files", plan.Table)
}

func TestParseLookupRejectsNonWhitelistedTable(t *testing.T) {
	_, err := Parse("LOOKUP x IN secrets", "resources")
	assert.Error(t, err)
}

func TestParseSearch(t *testing.T) {
	plan, err := Parse(`SEARCH "neural networks" IN resources`, "resources")
	require.NoError(t, err)
	assert.Equal(t, KindSearch, plan.Kind)
	assert.Equal(t, "neural networks", plan.SearchText)
	assert.Equal(t, "resources", plan.Table)
}

func TestParseSearchRequiresQuotedText(t *testing.T) {
	_, err := Parse("SEARCH neural IN resources", "resources")
	assert.Error(t, err)
}

func TestParseSelectBasic(t *testing.T) {
	plan, err := Parse("SELECT * FROM resources WHERE id = 'abc'", "resources")
	require.NoError(t, err)
	assert.Equal(t, KindSelect, plan.Kind)
	assert.Equal(t, "resources", plan.Table)
	assert.Equal(t, "*", plan.Columns)
	assert.Equal(t, "id = 'abc'", plan.Where)
}

func TestParseSelectWithOrderAndLimit(t *testing.T) {
	plan, err := Parse("SELECT * FROM moments ORDER BY created_at DESC LIMIT 5", "resources")
	require.NoError(t, err)
	assert.Equal(t, "created_at DESC", plan.OrderBy)
	assert.Equal(t, 5, plan.Limit)
}

func TestParseSelectRejectsNonWhitelistedTable(t *testing.T) {
	_, err := Parse("SELECT * FROM users", "resources")
	assert.Error(t, err)
}

func TestParseTraverseDefaultDepth(t *testing.T) {
	plan, err := Parse("TRAVERSE seed-1", "resources")
	require.NoError(t, err)
	assert.Equal(t, KindTraverse, plan.Kind)
	assert.Equal(t, "seed-1", plan.Seed)
	assert.Equal(t, 2, plan.Depth)
}

func TestParseTraverseExplicitDepth(t *testing.T) {
	plan, err := Parse("TRAVERSE seed-1 DEPTH 4", "resources")
	require.NoError(t, err)
	assert.Equal(t, 4, plan.Depth)
}

func TestParseTraverseRejectsDepthAboveMax(t *testing.T) {
	_, err := Parse("TRAVERSE seed-1 DEPTH 6", "resources")
	assert.Error(t, err)
}

func TestParseEmptyQuery(t *testing.T) {
	_, err := Parse("   ", "resources")
	assert.Error(t, err)
}

func TestParseUnknownCommand(t *testing.T) {
	_, err := Parse("DROP TABLE resources", "resources")
	assert.Error(t, err)
}

func TestCombineSetsAND(t *testing.T) {
	out := combineSets([][]string{{"a", "b", "c"}, {"b", "c", "d"}}, CombinatorAND)
	assert.Equal(t, []string{"b", "c"}, out)
}

func TestCombineSetsOR(t *testing.T) {
	out := combineSets([][]string{{"a", "b"}, {"b", "c"}}, CombinatorOR)
	assert.Equal(t, []string{"a", "b", "c"}, out)
}

func TestCombineSetsNOT(t *testing.T) {
	out := combineSets([][]string{{"a", "b", "c"}, {"b"}}, CombinatorNOT)
	assert.Equal(t, []string{"a", "c"}, out)
}

func TestRRFFusePrefersAgreement(t *testing.T) {
	fused := rrfFuse([]string{"x", "y", "z"}, []string{"z", "y", "x"})
	require.Len(t, fused, 3)
	assert.Contains(t, fused, "x")
	assert.Contains(t, fused, "y")
	assert.Contains(t, fused, "z")

	// "b" is ranked by both lists, so it outscores ids ranked by only one.
	agreed := rrfFuse([]string{"a", "b"}, []string{"b", "c"})
	require.Len(t, agreed, 3)
	assert.Equal(t, "b", agreed[0])
}
