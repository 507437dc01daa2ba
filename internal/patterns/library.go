// Package patterns compiles the recognizer vocabulary into matchers.
//
// Every category is a union of two matchers:
//   - a specific list of known proper nouns or domain phrases, matched on
//     Unicode word boundaries (so "Malmö" and "Östersund" match whole)
//   - an optional general structural regex that catches unseen but similar
//     spans (capitalized word runs, "worked as a ..." phrases)
//
// Specific matches win over overlapping general matches. A category with no
// match yields an empty slice; absence is never an error.
package patterns

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// Kind names a recognizer category.
type Kind string

const (
	KindName           Kind = "name"
	KindLocation       Kind = "location"
	KindDate           Kind = "date"
	KindSex            Kind = "sex"
	KindMaritalStatus  Kind = "marital_status"
	KindEducation      Kind = "education"
	KindOccupation     Kind = "occupation"
	KindReligion       Kind = "religion"
	KindLegalStatus    Kind = "legal_status"
	KindMotive         Kind = "motive"
	KindTravelMethod   Kind = "travel_method"
	KindTravelDuration Kind = "travel_duration"
	KindReturnPlan     Kind = "return_plan"
	KindImageReference Kind = "image_reference"
	KindKeyword        Kind = "keyword"
)

// Kinds lists every category in a stable order.
func Kinds() []Kind {
	return []Kind{
		KindName, KindLocation, KindDate, KindSex, KindMaritalStatus,
		KindEducation, KindOccupation, KindReligion, KindLegalStatus,
		KindMotive, KindTravelMethod, KindTravelDuration, KindReturnPlan,
		KindImageReference, KindKeyword,
	}
}

func isKnownKind(k Kind) bool {
	for _, known := range Kinds() {
		if k == known {
			return true
		}
	}
	return false
}

// Match is one recognized span. Start and End are byte offsets of Text in the
// scanned string.
type Match struct {
	Text     string
	Start    int
	End      int
	Specific bool
}

// Pattern is a compiled recognizer for one category.
type Pattern struct {
	kind    Kind
	lists   []*regexp.Regexp
	general *regexp.Regexp
	exclude map[string]bool
}

// Kind returns the pattern's category.
func (p *Pattern) Kind() Kind { return p.kind }

// All returns every match in document order. General matches overlapping a
// specific match are dropped.
func (p *Pattern) All(text string) []Match {
	if p == nil || text == "" {
		return nil
	}
	specific := p.Specific(text)
	general := p.General(text)
	out := make([]Match, 0, len(specific)+len(general))
	out = append(out, specific...)
	for _, g := range general {
		if !overlapsAny(g, specific) {
			out = append(out, g)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].Specific && !out[j].Specific
	})
	return out
}

// First returns the leftmost match.
func (p *Pattern) First(text string) (Match, bool) {
	all := p.All(text)
	if len(all) == 0 {
		return Match{}, false
	}
	return all[0], true
}

// Specific returns only the specific-list matches, in document order.
func (p *Pattern) Specific(text string) []Match {
	if p == nil {
		return nil
	}
	var out []Match
	for _, re := range p.lists {
		out = append(out, scanBounded(re, text)...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return dropNested(out)
}

// General returns only the structural fallback matches, in document order.
// Leading excluded words are trimmed ("In Minneapolis" -> "Minneapolis").
// Matches obey the same word boundaries as the specific lists: a match that
// starts inside a word is dropped, and one that ends inside a word loses its
// last partial word ("Nils Lindstr|öm" -> "Nils").
func (p *Pattern) General(text string) []Match {
	if p == nil || p.general == nil {
		return nil
	}
	var out []Match
	for _, loc := range p.general.FindAllStringSubmatchIndex(text, -1) {
		start, end := loc[0], loc[1]
		if len(loc) >= 4 && loc[2] >= 0 {
			start, end = loc[2], loc[3]
		}
		if r, _ := utf8.DecodeLastRuneInString(text[:loc[0]]); loc[0] > 0 && isWordRune(r) {
			continue
		}
		end, ok := shortenToBoundary(text, start, end)
		if !ok {
			continue
		}
		m, ok := p.trimExcluded(text, start, end)
		if ok {
			out = append(out, m)
		}
	}
	return out
}

func (p *Pattern) trimExcluded(text string, start, end int) (Match, bool) {
	for start < end {
		span := text[start:end]
		trimmed := strings.TrimSpace(span)
		if trimmed == "" {
			return Match{}, false
		}
		start += strings.Index(span, trimmed)
		end = start + len(trimmed)
		if p.exclude[trimmed] {
			return Match{}, false
		}
		first, _, found := strings.Cut(trimmed, " ")
		if !found || !p.exclude[first] {
			return Match{Text: trimmed, Start: start, End: end}, true
		}
		start += len(first)
	}
	return Match{}, false
}

func overlapsAny(m Match, others []Match) bool {
	for _, o := range others {
		if m.Start < o.End && o.Start < m.End {
			return true
		}
	}
	return false
}

// dropNested removes matches contained in an earlier, longer match. It
// expects input sorted by Start.
func dropNested(in []Match) []Match {
	out := in[:0]
	for _, m := range in {
		if n := len(out); n > 0 && m.Start < out[n-1].End {
			if m.End-m.Start > out[n-1].End-out[n-1].Start {
				out[n-1] = m
			}
			continue
		}
		out = append(out, m)
	}
	return out
}

const wordClass = `[^\p{L}\p{M}\p{N}_]`

// scanBounded runs a boundary-wrapped expression whose first group is the
// value. The leading boundary consumes one rune, so scanning resumes at the end
// of the value rather than the end of the full match.
func scanBounded(re *regexp.Regexp, text string) []Match {
	var out []Match
	pos := 0
	for pos < len(text) {
		loc := re.FindStringSubmatchIndex(text[pos:])
		if loc == nil || loc[2] < 0 {
			break
		}
		start, end := pos+loc[2], pos+loc[3]
		if start == pos && pos > 0 {
			// "^" matched at the resume point; the rune before it decides.
			r, _ := utf8.DecodeLastRuneInString(text[:pos])
			if isWordRune(r) {
				_, size := utf8.DecodeRuneInString(text[pos:])
				pos += size
				continue
			}
		}
		if end <= start {
			_, size := utf8.DecodeRuneInString(text[pos:])
			pos += size
			continue
		}
		out = append(out, Match{Text: text[start:end], Start: start, End: end, Specific: true})
		pos = end
	}
	return out
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsMark(r) || unicode.IsNumber(r)
}

// shortenToBoundary drops trailing partial words until text[start:end] ends
// at a word boundary. It reports false when no whole word is left.
func shortenToBoundary(text string, start, end int) (int, bool) {
	for end > start {
		if r, _ := utf8.DecodeRuneInString(text[end:]); end == len(text) || !isWordRune(r) {
			return end, true
		}
		cut := strings.LastIndexFunc(text[start:end], isWordSeparator)
		if cut < 0 {
			return start, false
		}
		end = start + len(strings.TrimRightFunc(text[start:start+cut], isWordSeparator))
	}
	return start, false
}

func isWordSeparator(r rune) bool {
	return unicode.IsSpace(r) || r == '-'
}

// termExpr quotes a phrase so that its words may be separated by any run of
// whitespace.
func termExpr(term string) string {
	fields := strings.Fields(term)
	for i, f := range fields {
		fields[i] = regexp.QuoteMeta(f)
	}
	return strings.Join(fields, `\s*`)
}

func boundedExpr(alternatives, tail []string, ignoreCase bool) string {
	core := "(?:" + strings.Join(alternatives, "|") + ")"
	if len(tail) > 0 {
		tails := make([]string, len(tail))
		for i, t := range tail {
			tails[i] = termExpr(t)
		}
		core += `(?:[^\p{L}\p{N}_.,;][^.,;]*(?:` + strings.Join(tails, "|") + `)[^.,;]*)?`
	}
	expr := `(?:^|` + wordClass + `)(` + core + `)(?:` + wordClass + `|$)`
	if ignoreCase {
		expr = "(?i)" + expr
	}
	return expr
}

func compileCategory(kind Kind, spec CategorySpec) (*Pattern, error) {
	p := &Pattern{kind: kind, exclude: make(map[string]bool)}
	for _, e := range spec.Exclude {
		p.exclude[e] = true
	}

	if len(spec.Specific) > 0 {
		names := append([]string(nil), spec.Specific...)
		sortLongestFirst(names)
		alts := make([]string, len(names))
		for i, n := range names {
			alts[i] = termExpr(n)
		}
		re, err := regexp.Compile(boundedExpr(alts, spec.Tail, false))
		if err != nil {
			return nil, fmt.Errorf("%s specific list: %w", kind, err)
		}
		p.lists = append(p.lists, re)
	}

	if len(spec.Terms) > 0 || len(spec.Regex) > 0 {
		terms := append([]string(nil), spec.Terms...)
		sortLongestFirst(terms)
		alts := make([]string, 0, len(terms)+len(spec.Regex))
		for _, t := range terms {
			alts = append(alts, termExpr(t))
		}
		for _, r := range spec.Regex {
			if _, err := regexp.Compile(r); err != nil {
				return nil, fmt.Errorf("%s regex %q: %w", kind, r, err)
			}
			alts = append(alts, r)
		}
		re, err := regexp.Compile(boundedExpr(alts, spec.Tail, spec.IgnoreCase))
		if err != nil {
			return nil, fmt.Errorf("%s terms: %w", kind, err)
		}
		p.lists = append(p.lists, re)
	}

	if spec.General != "" {
		re, err := regexp.Compile(spec.General)
		if err != nil {
			return nil, fmt.Errorf("%s general pattern: %w", kind, err)
		}
		p.general = re
	}
	return p, nil
}

var numberWords = []string{
	`\d+`, "a", "an", "one", "two", "three", "four", "five", "six", "seven",
	"eight", "nine", "ten", "eleven", "twelve", "fifteen", "twenty", "thirty",
	"forty", "fifty", "sixty", "several", "few", "couple(?:\\s+of)?", "hundreds",
}

// dateExpr builds the date/time expression recognizer from the month names.
func dateExpr(months []string) string {
	m := "(?:" + strings.Join(months, "|") + ")"
	ord := `(?:st|nd|rd|th)?`
	forms := []string{
		m + `\s+the\s+\d{1,2}` + ord,
		`\d{1,2}` + ord + `\s+of\s+` + m + `(?:,?\s+\d{4})?`,
		m + `\s+\d{1,2}` + ord + `,?\s+\d{4}`,
		`\d{1,2}` + ord + `\s+` + m + `,?\s+\d{4}`,
		`\d{1,2}\.\s*` + m + `\s+\d{4}`,
		m + `(?:\s+of)?\s+\d{4}`,
		`\d{4}[-/.]\d{1,2}[-/.]\d{1,2}`,
		`\d{1,2}[-/.]\d{1,2}[-/.]\d{2,4}`,
		`(?:19|20)\d{2}s`,
		`(?:the\s+)?\d{2}s`,
		`(?:first|last|next)\s+(?:day|week|month|year|morning|night)`,
		`(?:monday|tuesday|wednesday|thursday|friday|saturday|sunday)(?:\s+(?:morning|afternoon|evening|night))?`,
		`today|yesterday|tomorrow|tonight|morning|afternoon|evening|night|midnight|noon`,
		`\d{1,2}(?:[:.]\d{2})?\s*o'clock`,
		`year\s+2000`,
		`year\s+and\s+a\s+half|month\s+or\s+two|ten\s+days`,
		`(?:` + strings.Join(numberWords, "|") + `)\s+(?:year|month|week|day|hour|minute)s?`,
		`1[7-9]\d{2}|20\d{2}`,
	}
	return `(?i)\b(?:` + strings.Join(forms, "|") + `)\b`
}

// Library holds every compiled category recognizer.
type Library struct {
	vocab    *Vocabulary
	patterns map[Kind]*Pattern
}

// New compiles a vocabulary.
func New(v *Vocabulary) (*Library, error) {
	if v == nil {
		return nil, fmt.Errorf("nil vocabulary")
	}
	lib := &Library{vocab: v, patterns: make(map[Kind]*Pattern)}
	for name, spec := range v.Patterns {
		p, err := compileCategory(Kind(name), spec)
		if err != nil {
			return nil, err
		}
		lib.patterns[Kind(name)] = p
	}
	months := v.monthNames()
	if len(months) == 0 {
		return nil, fmt.Errorf("vocabulary lists no months")
	}
	dates, err := regexp.Compile(dateExpr(months))
	if err != nil {
		return nil, fmt.Errorf("date pattern: %w", err)
	}
	lib.patterns[KindDate] = &Pattern{kind: KindDate, general: dates, exclude: map[string]bool{}}
	return lib, nil
}

var (
	defaultOnce sync.Once
	defaultLib  *Library
	defaultErr  error
)

// Default returns the library compiled from the embedded vocabulary. It is
// built once per process.
func Default() (*Library, error) {
	defaultOnce.Do(func() {
		var v *Vocabulary
		v, defaultErr = DefaultVocabulary()
		if defaultErr != nil {
			return
		}
		defaultLib, defaultErr = New(v)
	})
	return defaultLib, defaultErr
}

// Load compiles the vocabulary at path, or the embedded one when path is empty.
func Load(path string) (*Library, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	v, err := LoadVocabulary(path)
	if err != nil {
		return nil, err
	}
	return New(v)
}

// Pattern returns the recognizer for kind. Unknown or empty categories return
// nil; methods on a nil *Pattern report no matches.
func (l *Library) Pattern(kind Kind) *Pattern {
	return l.patterns[kind]
}

// Vocabulary exposes the data the library was compiled from.
func (l *Library) Vocabulary() *Vocabulary { return l.vocab }
