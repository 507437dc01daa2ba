// Package normalize turns matched spans into canonical values.
//
// Each normalizer is an ordered chain of strategies. The first strategy that
// succeeds wins; when none does the caller gets a miss and a warning is logged.
// Normalizers never fail past their own boundary.
package normalize

import (
	"io"
	"log/slog"
	"strings"
	"time"
)

// Result is the outcome of one normalization. Strategy names the chain step
// that produced Value; it is empty on a miss.
type Result struct {
	Value    string
	OK       bool
	Strategy string
}

type strategy struct {
	name  string
	apply func(string) (string, bool)
}

func runChain(chain []strategy, input string) Result {
	for _, s := range chain {
		if v, ok := s.apply(input); ok {
			return Result{Value: v, OK: true, Strategy: s.name}
		}
	}
	return Result{}
}

func chainNames(chain []strategy) []string {
	names := make([]string, len(chain))
	for i, s := range chain {
		names[i] = s.name
	}
	return names
}

// Options configures a Normalizer.
type Options struct {
	// MonthTranslations maps lowercased foreign month names to English.
	MonthTranslations map[string]string
	// Aliases maps lookup name -> lowercased surface form -> canonical value.
	Aliases map[string]map[string]string
	// Now resolves relative day words. Defaults to time.Now.
	Now    func() time.Time
	Logger *slog.Logger
}

// Normalizer bundles every normalizer chain.
type Normalizer struct {
	now       func() time.Time
	logger    *slog.Logger
	aliases   map[string]map[string]string
	months    []monthRewrite
	dateChain []strategy
}

// New builds a Normalizer.
func New(opts Options) *Normalizer {
	n := &Normalizer{
		now:     opts.Now,
		logger:  opts.Logger,
		aliases: opts.Aliases,
		months:  compileMonthRewrites(opts.MonthTranslations),
	}
	if n.now == nil {
		n.now = time.Now
	}
	if n.logger == nil {
		n.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if n.aliases == nil {
		n.aliases = map[string]map[string]string{}
	}
	n.buildChains()
	return n
}

func (n *Normalizer) buildChains() {
	n.dateChain = []strategy{
		{"relative", n.relativeDay},
		{"month-year", monthYear},
		{"general", generalDate},
		{"month-day", n.monthDay},
		{"iso", isoDate},
		{"year-only", n.yearOnly},
	}
}

// WithLogger returns a copy that logs to logger. Compiled state is shared.
func (n *Normalizer) WithLogger(logger *slog.Logger) *Normalizer {
	if logger == nil {
		return n
	}
	c := *n
	c.logger = logger
	c.buildChains()
	return &c
}

// DateStrategies lists the date chain in the order it is tried.
func (n *Normalizer) DateStrategies() []string { return chainNames(n.dateChain) }

// Sex maps man/boy/male to "male" and woman/girl/female to "female".
func (n *Normalizer) Sex(raw string) Result {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "man", "boy", "male":
		return Result{Value: "male", OK: true, Strategy: "vocabulary"}
	case "woman", "girl", "female":
		return Result{Value: "female", OK: true, Strategy: "vocabulary"}
	}
	n.logger.Warn("could not normalize sex", "value", raw)
	return Result{}
}

// Category lowercases raw, collapses whitespace and applies the alias table of
// the named lookup. Values with no alias pass through verbatim; whether they
// exist is the lookup resolver's decision.
func (n *Normalizer) Category(lookup, raw string) Result {
	v := strings.Join(strings.Fields(strings.ToLower(raw)), " ")
	if v == "" {
		return Result{}
	}
	if canonical, ok := n.aliases[lookup][v]; ok {
		return Result{Value: canonical, OK: true, Strategy: "alias"}
	}
	return Result{Value: v, OK: true, Strategy: "verbatim"}
}

// Name is a full name split into given and family parts.
type Name struct {
	Given  string `yaml:"given"`
	Family string `yaml:"family,omitempty"`
}

// NameParts splits on whitespace: the first token is the given name and the
// remaining tokens form the family name.
func NameParts(full string) Name {
	fields := strings.Fields(full)
	if len(fields) == 0 {
		return Name{}
	}
	return Name{Given: fields[0], Family: strings.Join(fields[1:], " ")}
}
