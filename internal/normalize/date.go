package normalize

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/araddon/dateparse"
)

const isoLayout = "2006-01-02"

type monthRewrite struct {
	re      *regexp.Regexp
	english string
}

// compileMonthRewrites builds word-bounded replacements for foreign month names
// plus the English names themselves, so the general parser always sees
// capitalized English months.
func compileMonthRewrites(translations map[string]string) []monthRewrite {
	words := make(map[string]string)
	for m := time.January; m <= time.December; m++ {
		words[strings.ToLower(m.String())] = m.String()
	}
	for foreign, english := range translations {
		foreign = strings.ToLower(strings.TrimSpace(foreign))
		if foreign == "" {
			continue
		}
		words[foreign] = titleWord(english)
	}
	// Longest first so "augusti" is rewritten before "august" can claim it.
	keys := make([]string, 0, len(words))
	for k := range words {
		keys = append(keys, k)
	}
	sortByLengthDesc(keys)
	out := make([]monthRewrite, 0, len(keys))
	for _, k := range keys {
		out = append(out, monthRewrite{
			re:      regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(k) + `\b`),
			english: words[k],
		})
	}
	return out
}

func titleWord(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func sortByLengthDesc(values []string) {
	sort.Slice(values, func(i, j int) bool {
		if len(values[i]) != len(values[j]) {
			return len(values[i]) > len(values[j])
		}
		return values[i] < values[j]
	})
}

func (n *Normalizer) translateMonths(s string) string {
	for _, m := range n.months {
		s = m.re.ReplaceAllString(s, m.english)
	}
	return s
}

// Date converts a date expression to YYYY-MM-DD.
func (n *Normalizer) Date(raw string) Result {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Result{}
	}
	s = n.translateMonths(s)
	res := runChain(n.dateChain, s)
	if !res.OK {
		n.logger.Warn("could not parse date", "value", raw)
		return res
	}
	n.logger.Debug("date normalized", "value", raw, "date", res.Value, "strategy", res.Strategy)
	return res
}

func (n *Normalizer) relativeDay(s string) (string, bool) {
	now := n.now()
	switch strings.ToLower(s) {
	case "today":
		return now.Format(isoLayout), true
	case "yesterday":
		return now.AddDate(0, 0, -1).Format(isoLayout), true
	case "tomorrow":
		return now.AddDate(0, 0, 1).Format(isoLayout), true
	}
	return "", false
}

var monthYearRe = regexp.MustCompile(`(?i)^(january|february|march|april|may|june|july|august|september|october|november|december)(?:\s+of)?,?\s+(\d{4})$`)

// monthYear resolves a month with a year and no day to the first of the month.
func monthYear(s string) (string, bool) {
	m := monthYearRe.FindStringSubmatch(strings.Join(strings.Fields(s), " "))
	if m == nil {
		return "", false
	}
	t, err := time.Parse("January 2006", titleWord(m[1])+" "+m[2])
	if err != nil {
		return "", false
	}
	return t.Format(isoLayout), true
}

var (
	fillerRe    = regexp.MustCompile(`(?i)\b(?:the|of)\b`)
	ordinalRe   = regexp.MustCompile(`(?i)(\d)(?:st|nd|rd|th)\b`)
	allDigitsRe = regexp.MustCompile(`^\d+$`)
	isoRe       = regexp.MustCompile(`(\d{4})[-/.](\d{1,2})[-/.](\d{1,2})`)
	yearRe      = regexp.MustCompile(`\b(1[7-9]\d{2}|20\d{2})\b`)
	numericRe   = regexp.MustCompile(`^(\d{1,2})([-/.])(\d{1,2})[-/.](\d{4})$`)
	monthDayRe  = regexp.MustCompile(`(?i)^(?:(january|february|march|april|may|june|july|august|september|october|november|december),?\s+(\d{1,2})|(\d{1,2})\s+(january|february|march|april|may|june|july|august|september|october|november|december))$`)
)

func cleanForParser(s string) string {
	s = fillerRe.ReplaceAllString(s, " ")
	s = ordinalRe.ReplaceAllString(s, "$1")
	s = strings.Join(strings.Fields(s), " ")
	s = strings.Trim(s, " ,")
	return strings.ReplaceAll(s, " ,", ",")
}

// generalDate hands the span to dateparse. Bare numbers are left to the
// year-only step, and spans carrying a numeric Y-M-D run to the iso step.
func generalDate(s string) (value string, ok bool) {
	cleaned := cleanForParser(s)
	if cleaned == "" || allDigitsRe.MatchString(cleaned) || isoRe.MatchString(cleaned) {
		return "", false
	}
	defer func() {
		if recover() != nil {
			value, ok = "", false
		}
	}()
	t, err := parseNumericOrText(cleaned)
	if err != nil {
		return "", false
	}
	if t.Year() < 1000 || t.Year() > 2999 {
		return "", false
	}
	return t.Format(isoLayout), true
}

// parseNumericOrText parses s with dateparse. Numeric D/M/Y spans are read
// month first with slashes and day first with dots or dashes; when that
// reading is impossible ("25/12/1890", "12.25.1890") the other one is tried.
func parseNumericOrText(s string) (time.Time, error) {
	m := numericRe.FindStringSubmatch(s)
	if m == nil {
		return dateparse.ParseIn(s, time.UTC)
	}
	// dateparse always reads dotted dates month first, so hand it slashes.
	slashed := m[1] + "/" + m[3] + "/" + m[4]
	monthFirst := m[2] == "/"
	t, err := dateparse.ParseIn(slashed, time.UTC, dateparse.PreferMonthFirst(monthFirst))
	if err == nil {
		return t, nil
	}
	return dateparse.ParseIn(slashed, time.UTC, dateparse.PreferMonthFirst(!monthFirst))
}

// monthDay resolves "August 5" or "5 August" with no year against the
// current year.
func (n *Normalizer) monthDay(s string) (string, bool) {
	m := monthDayRe.FindStringSubmatch(cleanForParser(s))
	if m == nil {
		return "", false
	}
	month, day := m[1], m[2]
	if month == "" {
		month, day = m[4], m[3]
	}
	year := n.now().Year()
	t, err := time.Parse("January 2 2006", fmt.Sprintf("%s %s %d", titleWord(month), day, year))
	if err != nil {
		return "", false
	}
	n.logger.Warn("no year found in date, assuming the current year", "value", s, "year", year)
	return t.Format(isoLayout), true
}

func isoDate(s string) (string, bool) {
	m := isoRe.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	value := fmt.Sprintf("%04d-%02d-%02d", year, month, day)
	if _, err := time.Parse(isoLayout, value); err != nil {
		return "", false
	}
	return value, true
}

func (n *Normalizer) yearOnly(s string) (string, bool) {
	m := yearRe.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	n.logger.Warn("only a year found in date, defaulting to January 1", "value", s, "year", m[1])
	return m[1] + "-01-01", true
}
