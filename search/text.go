package search

import (
	"strings"
	"unicode"
)

// Words that carry no topic in a question about documentation: articles,
// auxiliaries and the question scaffolding ("how do I", "where can we").
var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`
		a an the and or but of to in on at by for from with as into about
		is are was were be been am do does did can could should would will
		it its this that these those there here
		i me my we our you your they their
		how what when where which who why
		please find show tell get
		page pages doc docs documentation confluence wiki`) {
		stopWords[w] = struct{}{}
	}
}

// keywords lowercases text and splits it into words, keeping dots, dashes
// and underscores inside a word so "v2.1", "api-key" and "max_chars" stay whole.
// Stop words are dropped.
func keywords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' && r != '-' && r != '_'
	})
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, ".-_")
		if f == "" {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		out = append(out, f)
	}
	return out
}

// containsAllQueryWords reports whether every keyword of query occurs in
// document. A query made only of stop words never matches.
func containsAllQueryWords(document, query string) bool {
	wanted := keywords(query)
	if len(wanted) == 0 {
		return false
	}
	have := make(map[string]struct{})
	for _, w := range keywords(document) {
		have[w] = struct{}{}
	}
	for _, w := range wanted {
		if _, ok := have[w]; !ok {
			return false
		}
	}
	return true
}
