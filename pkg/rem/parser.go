package rem

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/healer-ai/p8fs/pkg/errs"
)

// WhitelistedTables is the set SELECT (and LOOKUP/SEARCH/TRAVERSE default
// resolution) may target; everything else, auxiliary models included, is
// rejected at parse time.
var WhitelistedTables = map[string]bool{
	"resources": true,
	"moments":   true,
	"sessions":  true,
	"files":     true,
}

// Parse translates a REM string into a typed Plan. The parser is total:
// every input produces either a plan or a permanent Validation error. Errors
// for an empty query, an unknown command, a missing IN/FROM clause or table
// after it, unquoted SEARCH text and a malformed LIMIT name a character
// position in the query; errors for a non-whitelisted table, a missing
// SELECT table, and the TRAVERSE seed and DEPTH checks name none, and an
// unterminated SEARCH quote always reports position 0.
func Parse(query, defaultTable string) (*Plan, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, errs.Validation("rem.Parse", "empty query at position 0")
	}
	cmd, rest := splitFirstWord(trimmed)
	switch strings.ToUpper(cmd) {
	case "LOOKUP", "GET":
		return parseLookup(trimmed, rest, defaultTable)
	case "SEARCH":
		return parseSearch(trimmed, rest, defaultTable)
	case "SELECT":
		return parseSelect(trimmed, rest, defaultTable)
	case "TRAVERSE":
		return parseTraverse(trimmed, rest, defaultTable)
	default:
		return nil, errs.Validation("rem.Parse", fmt.Sprintf("unrecognized command %q at position 0", cmd))
	}
}

// parseLookup handles `("LOOKUP" / "GET") keys [SP "IN" SP table]`.
func parseLookup(raw, rest, defaultTable string) (*Plan, error) {
	keysPart := rest
	table := defaultTable
	if idx := findKeywordOutsideQuotes(rest, "IN"); idx >= 0 {
		keysPart = strings.TrimSpace(rest[:idx])
		tablePart := strings.TrimSpace(rest[idx+len("IN"):])
		if tablePart == "" {
			return nil, errs.Validation("rem.parseLookup", fmt.Sprintf("missing table name after IN at position %d", len(raw)))
		}
		table = tablePart
	}
	if !WhitelistedTables[table] {
		return nil, errs.Validation("rem.parseLookup", fmt.Sprintf("table %q is not whitelisted", table))
	}
	var keys []KeyRef
	for _, raw := range splitOutsideQuotes(keysPart, ',') {
		k := strings.TrimSpace(raw)
		if k == "" {
			continue
		}
		keyTable := ""
		if ci := indexOutsideQuotes(k, ':'); ci >= 0 && !looksQuoted(k) {
			keyTable = strings.TrimSpace(k[:ci])
			k = strings.TrimSpace(k[ci+1:])
		}
		k = unquote(k)
		if k == "" {
			continue
		}
		keys = append(keys, KeyRef{Table: keyTable, Value: k})
	}
	return &Plan{Kind: KindLookup, Raw: raw, Table: table, Keys: keys}, nil
}

// parseSearch handles `"SEARCH" SP quoted SP "IN" SP table`.
func parseSearch(raw, rest, defaultTable string) (*Plan, error) {
	rest = strings.TrimSpace(rest)
	if rest == "" || (rest[0] != '"' && rest[0] != '\'') {
		return nil, errs.Validation("rem.parseSearch", fmt.Sprintf("expected quoted search text at position %d", len(raw)-len(rest)))
	}
	text, remainder, err := readQuoted(rest)
	if err != nil {
		return nil, errs.Validation("rem.parseSearch", err.Error())
	}
	remainder = strings.TrimSpace(remainder)
	word, tablePart := splitFirstWord(remainder)
	if strings.ToUpper(word) != "IN" || strings.TrimSpace(tablePart) == "" {
		return nil, errs.Validation("rem.parseSearch", fmt.Sprintf("expected IN <table> at position %d", len(raw)-len(remainder)))
	}
	table := strings.TrimSpace(tablePart)
	if !WhitelistedTables[table] {
		return nil, errs.Validation("rem.parseSearch", fmt.Sprintf("table %q is not whitelisted", table))
	}
	return &Plan{Kind: KindSearch, Raw: raw, Table: table, SearchText: text}, nil
}

// parseSelect handles
// `"SELECT" columns "FROM" table ["WHERE" expr] ["ORDER BY" ...] ["LIMIT" n]`.
func parseSelect(raw, rest, defaultTable string) (*Plan, error) {
	fromIdx := findKeywordOutsideQuotes(rest, "FROM")
	if fromIdx < 0 {
		return nil, errs.Validation("rem.parseSelect", fmt.Sprintf("missing FROM at position %d", len(raw)))
	}
	columns := strings.TrimSpace(rest[:fromIdx])
	if columns == "" {
		columns = "*"
	}
	after := rest[fromIdx+len("FROM"):]

	whereIdx := findKeywordOutsideQuotes(after, "WHERE")
	orderIdx := findKeywordOutsideQuotes(after, "ORDER BY")
	limitIdx := findKeywordOutsideQuotes(after, "LIMIT")

	tableEnd := len(after)
	for _, idx := range []int{whereIdx, orderIdx, limitIdx} {
		if idx >= 0 && idx < tableEnd {
			tableEnd = idx
		}
	}
	table := strings.TrimSpace(after[:tableEnd])
	if table == "" {
		return nil, errs.Validation("rem.parseSelect", "missing table name after FROM")
	}
	if !WhitelistedTables[table] {
		return nil, errs.Validation("rem.parseSelect", fmt.Sprintf("table %q is not whitelisted", table))
	}

	plan := &Plan{Kind: KindSelect, Raw: raw, Table: table, Columns: columns}

	segEnd := func(start int) int {
		end := len(after)
		for _, idx := range []int{orderIdx, limitIdx} {
			if idx > start && idx < end {
				end = idx
			}
		}
		return end
	}
	if whereIdx >= 0 {
		end := segEnd(whereIdx)
		plan.Where = strings.TrimSpace(after[whereIdx+len("WHERE") : end])
	}
	if orderIdx >= 0 {
		end := len(after)
		if limitIdx > orderIdx {
			end = limitIdx
		}
		plan.OrderBy = strings.TrimSpace(after[orderIdx+len("ORDER BY") : end])
	}
	if limitIdx >= 0 {
		n, err := strconv.Atoi(strings.TrimSpace(after[limitIdx+len("LIMIT"):]))
		if err != nil {
			return nil, errs.Validation("rem.parseSelect", fmt.Sprintf("malformed LIMIT at position %d", len(raw)-len(after)+limitIdx))
		}
		plan.Limit = n
	}
	return plan, nil
}

// parseTraverse handles `"TRAVERSE" key ["DEPTH" n]`.
func parseTraverse(raw, rest, defaultTable string) (*Plan, error) {
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return nil, errs.Validation("rem.parseTraverse", fmt.Sprintf("missing seed key at position %d", len(raw)))
	}
	seedTok, remainder := splitFirstWord(rest)
	seed := unquote(seedTok)
	if seed == "" {
		return nil, errs.Validation("rem.parseTraverse", "empty seed key")
	}
	plan := &Plan{Kind: KindTraverse, Raw: raw, Table: defaultTable, Seed: seed, Depth: 2}
	remainder = strings.TrimSpace(remainder)
	if remainder == "" {
		return plan, nil
	}
	word, depthPart := splitFirstWord(remainder)
	if strings.ToUpper(word) != "DEPTH" {
		return nil, errs.Validation("rem.parseTraverse", fmt.Sprintf("unexpected token %q after seed", word))
	}
	n, err := strconv.Atoi(strings.TrimSpace(depthPart))
	if err != nil {
		return nil, errs.Validation("rem.parseTraverse", "malformed DEPTH value")
	}
	if n < 0 || n > 5 {
		return nil, errs.Validation("rem.parseTraverse", "DEPTH must be between 0 and 5")
	}
	plan.Depth = n
	return plan, nil
}

// --- lexing helpers ---

func splitFirstWord(s string) (word, rest string) {
	s = strings.TrimLeft(s, " \t")
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i+1:]
}

// findKeywordOutsideQuotes finds the first case-insensitive, whitespace-
// delimited occurrence of kw in s that is not inside a quoted substring.
func findKeywordOutsideQuotes(s, kw string) int {
	upper := strings.ToUpper(s)
	kw = strings.ToUpper(kw)
	var quote byte
	for i := 0; i+len(kw) <= len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		if c == '"' || c == '\'' {
			quote = c
			continue
		}
		if upper[i:i+len(kw)] != kw {
			continue
		}
		leftOK := i == 0 || isSpace(s[i-1])
		rightIdx := i + len(kw)
		rightOK := rightIdx == len(s) || isSpace(s[rightIdx])
		if leftOK && rightOK {
			return i
		}
	}
	return -1
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' }

// splitOutsideQuotes splits s on sep, ignoring separators inside quotes.
func splitOutsideQuotes(s string, sep byte) []string {
	var out []string
	var cur strings.Builder
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			cur.WriteByte(c)
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
			cur.WriteByte(c)
		case c == sep:
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	out = append(out, cur.String())
	return out
}

// indexOutsideQuotes returns the index of the first sep not inside quotes, or -1.
func indexOutsideQuotes(s string, sep byte) int {
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		if c == '"' || c == '\'' {
			quote = c
			continue
		}
		if c == sep {
			return i
		}
	}
	return -1
}

func looksQuoted(s string) bool {
	s = strings.TrimSpace(s)
	return len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0]
}

// unquote strips matching leading/trailing quotes (single or double); mixed
// quote styles across keys in the same LOOKUP are tolerated.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// readQuoted reads a leading quoted string from s (s[0] must be a quote
// character) and returns its content plus the remainder after the closing quote.
func readQuoted(s string) (content, remainder string, err error) {
	q := s[0]
	for i := 1; i < len(s); i++ {
		if s[i] == q {
			return s[1:i], s[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("unterminated quoted string starting at position 0")
}
