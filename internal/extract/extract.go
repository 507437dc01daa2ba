// Package extract turns one transcript into a candidate bag.
//
// The engine runs the pattern library over the text and normalizes what it
// finds. Singular fields take the first match in document order; repeatable
// fields (mentions, travel methods, keywords) are deduplicated lists. Nothing
// here touches the database.
package extract

import (
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/joe-chic/house-of-emmigrants/internal/normalize"
	"github.com/joe-chic/house-of-emmigrants/internal/patterns"
)

// DefaultSummaryLength is the summary size in runes, ellipsis included.
const DefaultSummaryLength = 500

// Options configures an Engine.
type Options struct {
	// Fields enables fields; nil means DefaultFields.
	Fields FieldSet
	// SalienceKeywords adds up to this many frequency-ranked terms to the
	// keyword list. Zero disables ranking.
	SalienceKeywords int
	SummaryLength    int
	// Now anchors relative dates. Defaults to time.Now.
	Now    func() time.Time
	Logger *slog.Logger
}

// Engine extracts candidate bags. It is safe for concurrent use.
type Engine struct {
	lib       *patterns.Library
	norm      *normalize.Normalizer
	fields    FieldSet
	countries map[string]bool
	stopwords map[string]bool
	salience  int
	summary   int
	logger    *slog.Logger
}

// NewEngine builds an engine over a compiled pattern library.
func NewEngine(lib *patterns.Library, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	fields := opts.Fields
	if fields == nil {
		fields = DefaultFields()
	}
	summary := opts.SummaryLength
	if summary <= 0 {
		summary = DefaultSummaryLength
	}

	vocab := lib.Vocabulary()
	countries := make(map[string]bool)
	for _, c := range vocab.Seeds()["country"] {
		countries[c] = true
	}
	stopwords := make(map[string]bool, len(vocab.Stopwords))
	for _, w := range vocab.Stopwords {
		stopwords[strings.ToLower(w)] = true
	}

	return &Engine{
		lib: lib,
		norm: normalize.New(normalize.Options{
			MonthTranslations: vocab.MonthTranslations(),
			Aliases:           vocab.Aliases(),
			Now:               opts.Now,
			Logger:            logger,
		}),
		fields:    fields,
		countries: countries,
		stopwords: stopwords,
		salience:  opts.SalienceKeywords,
		summary:   summary,
		logger:    logger,
	}
}

// WithLogger returns a copy of the engine that logs to logger.
func (e *Engine) WithLogger(logger *slog.Logger) *Engine {
	if logger == nil {
		return e
	}
	c := *e
	c.logger = logger
	c.norm = e.norm.WithLogger(logger)
	return &c
}

// Fields reports the enabled fields.
func (e *Engine) Fields() FieldSet { return e.fields }

// Extract builds the candidate bag for text with no file name.
func (e *Engine) Extract(text string) *Candidates {
	return e.ExtractDocument("", text)
}

// ExtractDocument builds the candidate bag for one file's text. The title is
// derived from path.
func (e *Engine) ExtractDocument(path, text string) *Candidates {
	text = norm.NFC.String(text)
	c := &Candidates{
		Path:    path,
		Title:   Title(path),
		Summary: Summary(text, e.summary),
	}

	e.people(text, c)
	c.Sex = e.singular(FieldSex, patterns.KindSex, text, e.norm.Sex)
	c.MaritalStatus = e.singular(FieldMaritalStatus, patterns.KindMaritalStatus, text, e.category("marital_status"))
	c.Education = e.singular(FieldEducation, patterns.KindEducation, text, e.category("education"))
	c.LegalStatus = e.singular(FieldLegalStatus, patterns.KindLegalStatus, text, e.category("legal_status"))
	c.Occupation = e.singular(FieldOccupation, patterns.KindOccupation, text, e.occupation)
	c.Religion = e.singular(FieldReligion, patterns.KindReligion, text, e.category("religion"))
	c.DepartureDate = e.singular(FieldDepartureDate, patterns.KindDate, text, e.norm.Date)
	c.Motive = e.singular(FieldMotive, patterns.KindMotive, text, e.motive)
	c.Duration = e.singular(FieldDuration, patterns.KindTravelDuration, text, e.norm.Duration)
	c.ReturnPlans = e.singular(FieldReturnPlans, patterns.KindReturnPlan, text, verbatim)
	e.places(text, c)

	if e.fields.Has(FieldTravelMethods) {
		var methods []string
		for _, m := range e.lib.Pattern(patterns.KindTravelMethod).All(text) {
			if r := e.norm.Category("travel_method", m.Text); r.OK {
				methods = append(methods, r.Value)
			}
		}
		c.TravelMethods = dedupe(methods)
	}
	if e.fields.Has(FieldKeywords) {
		c.Keywords = e.keywords(text)
	}
	if e.fields.Has(FieldImageReferences) {
		var refs []string
		for _, m := range e.lib.Pattern(patterns.KindImageReference).All(text) {
			refs = append(refs, strings.ToLower(m.Text))
		}
		c.ImageReferences = dedupe(refs)
		if len(c.ImageReferences) > 0 {
			e.logger.Info("image references found", "path", path, "references", c.ImageReferences)
		}
	}
	return c
}

// singular takes the first match of kind and normalizes it. A normalizer miss
// leaves the field absent.
func (e *Engine) singular(f Field, kind patterns.Kind, text string, fn func(string) normalize.Result) string {
	if !e.fields.Has(f) {
		return ""
	}
	m, ok := e.lib.Pattern(kind).First(text)
	if !ok {
		e.logger.Debug("field not found", "field", string(f))
		return ""
	}
	r := fn(m.Text)
	if !r.OK {
		e.logger.Warn("field match could not be normalized", "field", string(f), "match", m.Text)
		return ""
	}
	return r.Value
}

func (e *Engine) category(lookup string) func(string) normalize.Result {
	return func(raw string) normalize.Result { return e.norm.Category(lookup, raw) }
}

func verbatim(raw string) normalize.Result {
	v := strings.Join(strings.Fields(raw), " ")
	return normalize.Result{Value: v, OK: v != "", Strategy: "verbatim"}
}

// motive keeps only the first word of the phrase as the lookup key.
func (e *Engine) motive(raw string) normalize.Result {
	words := strings.Fields(strings.ToLower(raw))
	if len(words) == 0 {
		return normalize.Result{}
	}
	return e.norm.Category("motive", words[0])
}

func (e *Engine) occupation(raw string) normalize.Result {
	v := strings.ToLower(strings.TrimSpace(raw))
	for _, article := range []string{"a ", "an ", "the "} {
		v = strings.TrimPrefix(v, article)
	}
	return e.norm.Category("occupation", v)
}

// people fills the main interviewee and the mention list. Mentions exclude
// the main name by exact string equality only.
func (e *Engine) people(text string, c *Candidates) {
	if !e.fields.Has(FieldMainPerson) && !e.fields.Has(FieldMentions) {
		return
	}
	var names []string
	for _, m := range e.lib.Pattern(patterns.KindName).All(text) {
		if v := strings.Join(strings.Fields(m.Text), " "); v != "" {
			names = append(names, v)
		}
	}
	if len(names) == 0 {
		e.logger.Warn("no person name found")
		return
	}
	if e.fields.Has(FieldMainPerson) {
		c.MainPerson = names[0]
		c.MainName = normalize.NameParts(names[0])
	}
	if e.fields.Has(FieldMentions) {
		var mentions []string
		for _, n := range names {
			if n != names[0] {
				mentions = append(mentions, n)
			}
		}
		c.Mentions = dedupe(mentions)
	}
}

// places fills the destination (specific vocabulary first, structural
// fallback second) and the country (first location naming a known country).
func (e *Engine) places(text string, c *Candidates) {
	loc := e.lib.Pattern(patterns.KindLocation)
	if e.fields.Has(FieldDestination) {
		if ms := loc.Specific(text); len(ms) > 0 {
			c.Destination = ms[0].Text
		} else if ms := loc.General(text); len(ms) > 0 {
			c.Destination = ms[0].Text
		} else {
			e.logger.Debug("field not found", "field", string(FieldDestination))
		}
	}
	if e.fields.Has(FieldCountry) {
		for _, m := range loc.All(text) {
			r := e.norm.Category("country", m.Text)
			if r.OK && e.countries[r.Value] {
				c.Country = r.Value
				break
			}
		}
	}
}

func (e *Engine) keywords(text string) []string {
	var words []string
	for _, m := range e.lib.Pattern(patterns.KindKeyword).All(text) {
		words = append(words, strings.Join(strings.Fields(strings.ToLower(m.Text)), " "))
	}
	words = dedupe(words)
	if e.salience > 0 {
		skip := make(map[string]bool, len(words))
		for _, w := range words {
			skip[w] = true
		}
		words = append(words, salientTerms(text, e.salience, e.stopwords, skip)...)
	}
	return words
}
