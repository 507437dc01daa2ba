package extract

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const minSalientLength = 4

// salientTerms ranks word tokens by frequency and returns up to n of them.
// Stopwords, short tokens, tokens seen once and tokens in skip are ignored;
// ties go to the token that appears first.
func salientTerms(text string, n int, stopwords, skip map[string]bool) []string {
	if n <= 0 {
		return nil
	}
	type term struct {
		word  string
		count int
		first int
	}
	counts := make(map[string]*term)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for i, tok := range tokens {
		if utf8.RuneCountInString(tok) < minSalientLength || stopwords[tok] || skip[tok] {
			continue
		}
		if t, ok := counts[tok]; ok {
			t.count++
			continue
		}
		counts[tok] = &term{word: tok, count: 1, first: i}
	}

	ranked := make([]*term, 0, len(counts))
	for _, t := range counts {
		if t.count > 1 {
			ranked = append(ranked, t)
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].first < ranked[j].first
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	out := make([]string, len(ranked))
	for i, t := range ranked {
		out[i] = t.word
	}
	return out
}
