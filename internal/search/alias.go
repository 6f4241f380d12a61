package search

import "strings"

// tagAliases is the static, symmetric synonym relation between tag names.
// It only widens search recall; stored data is never rewritten through it.
var tagAliases = map[string][]string{
	"동물귀":  {"인권없음"},
	"인권없음": {"동물귀"},
}

// expandAliases returns term plus every alias reachable from it.
func expandAliases(term string) []string {
	out := []string{term}
	if vals, ok := tagAliases[term]; ok {
		out = append(out, vals...)
	}
	for key, vals := range tagAliases {
		for _, v := range vals {
			if v == term && key != term {
				out = append(out, key)
			}
		}
	}
	return out
}

// termDelimiters split a free-text query into sub-terms.
func termDelimiter(r rune) bool {
	switch r {
	case ' ', '\t', '　', '・', '·', '-', '_', '/', ',':
		return true
	}
	return false
}

// minSubTermRunes is the shortest normalized sub-term worth matching;
// shorter fragments produce noise matches across the whole catalog.
const minSubTermRunes = 3

// expandTerms builds the full search-term list for a query: the query
// itself, its alias expansions, and every delimiter-split sub-term whose
// folded form has at least minSubTermRunes characters (each alias-expanded
// as well). Order is deterministic, duplicates removed.
func expandTerms(query string) []string {
	var terms []string
	seen := map[string]bool{}
	add := func(t string) {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			return
		}
		seen[t] = true
		terms = append(terms, t)
	}

	for _, t := range expandAliases(query) {
		add(t)
	}
	for _, sub := range strings.FieldsFunc(query, termDelimiter) {
		if len([]rune(Fold(sub))) < minSubTermRunes {
			continue
		}
		for _, t := range expandAliases(sub) {
			add(t)
		}
	}
	return terms
}
