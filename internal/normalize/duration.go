package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// durationIdioms are checked before the unit grammar, in this order.
var durationIdioms = []struct {
	phrase string
	value  string
}{
	{"a year and a half", "P1Y6M"},
	{"month or two", "P2M"},
	{"ten days", "P10D"},
}

// durationWords maps numeric words to their counts.
var durationWords = map[string]int{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11,
	"twelve": 12, "fifteen": 15, "twenty": 20, "thirty": 30, "forty": 40,
	"fifty": 50, "sixty": 60, "several": 3, "few": 3, "couple": 2,
}

var (
	durationUnitRe = regexp.MustCompile(`(?i)\b(\d+|an|a|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve|fifteen|twenty|thirty|forty|fifty|sixty|several|few|couple(?:\s*of)?)\s*(year|month|week|day)s?\b`)
	durationRangeRe = regexp.MustCompile(`(?i)(\d+)\s*-\s*(\d+)\s*(year|month|week|day)s?`)
)

type durationParts struct {
	years, months, weeks, days int
}

func (d *durationParts) add(unit string, count int) {
	switch strings.ToLower(unit) {
	case "year":
		d.years += count
	case "month":
		d.months += count
	case "week":
		d.weeks += count
	case "day":
		d.days += count
	}
}

// ISO renders the parts as an ISO-8601 duration in Y-M-W-D order. It returns
// "" when every part is zero.
func (d durationParts) ISO() string {
	var b strings.Builder
	for _, p := range []struct {
		n      int
		suffix byte
	}{{d.years, 'Y'}, {d.months, 'M'}, {d.weeks, 'W'}, {d.days, 'D'}} {
		if p.n > 0 {
			fmt.Fprintf(&b, "%d%c", p.n, p.suffix)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "P" + b.String()
}

var durationChain = []strategy{
	{"idiom", durationIdiom},
	{"units", durationUnits},
	{"range", durationRange},
}

// DurationStrategies lists the duration chain in the order it is tried.
func DurationStrategies() []string { return chainNames(durationChain) }

// Duration converts a natural-language span such as "about two years" or
// "3-4 months" to an ISO-8601 duration ("P2Y", "P4M").
func (n *Normalizer) Duration(raw string) Result {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Result{}
	}
	res := runChain(durationChain, s)
	if !res.OK {
		n.logger.Warn("could not parse duration", "value", raw)
	}
	return res
}

func durationIdiom(s string) (string, bool) {
	lower := strings.Join(strings.Fields(strings.ToLower(s)), " ")
	for _, idiom := range durationIdioms {
		if strings.Contains(lower, idiom.phrase) {
			return idiom.value, true
		}
	}
	return "", false
}

func durationUnits(s string) (string, bool) {
	var parts durationParts
	for _, m := range durationUnitRe.FindAllStringSubmatch(s, -1) {
		word := strings.ToLower(m[1])
		count, err := strconv.Atoi(word)
		if err != nil {
			if strings.HasPrefix(word, "couple") {
				word = "couple"
			}
			count = durationWords[word]
		}
		parts.add(m[2], count)
	}
	iso := parts.ISO()
	return iso, iso != ""
}

// durationRange takes the upper bound of "N-M unit".
func durationRange(s string) (string, bool) {
	m := durationRangeRe.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	upper, err := strconv.Atoi(m[2])
	if err != nil {
		return "", false
	}
	var parts durationParts
	parts.add(m[3], upper)
	iso := parts.ISO()
	return iso, iso != ""
}
