package patterns

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed vocabulary.yaml
var embeddedVocabulary []byte

// Vocabulary is the declarative data every recognizer and closed lookup table
// is built from. It is loaded once and never mutated afterwards.
type Vocabulary struct {
	Version   int                      `yaml:"version"`
	Months    map[string][]string      `yaml:"months"`
	Patterns  map[string]CategorySpec  `yaml:"patterns"`
	Lookups   map[string][]LookupEntry `yaml:"lookups"`
	Stopwords []string                 `yaml:"stopwords"`
}

// CategorySpec describes one recognizer.
type CategorySpec struct {
	IgnoreCase bool     `yaml:"ignore_case"`
	Specific   []string `yaml:"specific"`
	Terms      []string `yaml:"terms"`
	Regex      []string `yaml:"regex"`
	General    string   `yaml:"general"`
	Exclude    []string `yaml:"exclude"`
	Tail       []string `yaml:"tail"`
}

// LookupEntry is a canonical lookup value and the surface forms mapping to it.
type LookupEntry struct {
	Value   string   `yaml:"value"`
	Aliases []string `yaml:"aliases"`
}

// DefaultVocabulary parses the vocabulary compiled into the binary.
func DefaultVocabulary() (*Vocabulary, error) {
	return ParseVocabulary(embeddedVocabulary)
}

// LoadVocabulary reads a replacement vocabulary file. An empty path returns the
// embedded vocabulary.
func LoadVocabulary(path string) (*Vocabulary, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultVocabulary()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading vocabulary %s: %w", path, err)
	}
	v, err := ParseVocabulary(data)
	if err != nil {
		return nil, fmt.Errorf("vocabulary %s: %w", path, err)
	}
	return v, nil
}

// ParseVocabulary decodes and validates vocabulary YAML.
func ParseVocabulary(data []byte) (*Vocabulary, error) {
	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parsing vocabulary: %w", err)
	}
	if v.Version <= 0 {
		return nil, fmt.Errorf("vocabulary version missing")
	}
	for kind := range v.Patterns {
		if !isKnownKind(Kind(kind)) {
			return nil, fmt.Errorf("unknown pattern category %q", kind)
		}
	}
	for name, entries := range v.Lookups {
		for i, e := range entries {
			if strings.TrimSpace(e.Value) == "" {
				return nil, fmt.Errorf("lookup %s entry %d has no value", name, i)
			}
		}
	}
	return &v, nil
}

// Seeds returns the canonical values of every closed lookup, lowercased, keyed
// by lookup name.
func (v *Vocabulary) Seeds() map[string][]string {
	out := make(map[string][]string, len(v.Lookups))
	for name, entries := range v.Lookups {
		values := make([]string, 0, len(entries))
		for _, e := range entries {
			values = append(values, canonical(e.Value))
		}
		out[name] = values
	}
	return out
}

// Aliases maps every lowercased surface form of every lookup, including the
// canonical value itself, to its canonical value.
func (v *Vocabulary) Aliases() map[string]map[string]string {
	out := make(map[string]map[string]string, len(v.Lookups))
	for name, entries := range v.Lookups {
		m := make(map[string]string)
		for _, e := range entries {
			value := canonical(e.Value)
			m[value] = value
			for _, a := range e.Aliases {
				m[canonical(a)] = value
			}
		}
		out[name] = m
	}
	return out
}

// MonthTranslations maps lowercased foreign month names to English month
// names ("augusti" -> "august"). Names identical to the English one are left out.
func (v *Vocabulary) MonthTranslations() map[string]string {
	out := make(map[string]string)
	for english, foreign := range v.Months {
		for _, f := range foreign {
			f = strings.ToLower(strings.TrimSpace(f))
			if f != "" && f != english {
				out[f] = english
			}
		}
	}
	return out
}

// monthNames lists English and foreign month names, longest first.
func (v *Vocabulary) monthNames() []string {
	seen := make(map[string]bool)
	var names []string
	for english, foreign := range v.Months {
		for _, n := range append([]string{english}, foreign...) {
			n = strings.ToLower(strings.TrimSpace(n))
			if n == "" || seen[n] {
				continue
			}
			seen[n] = true
			names = append(names, n)
		}
	}
	sortLongestFirst(names)
	return names
}

func canonical(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func sortLongestFirst(values []string) {
	sort.SliceStable(values, func(i, j int) bool {
		if len(values[i]) != len(values[j]) {
			return len(values[i]) > len(values[j])
		}
		return values[i] < values[j]
	})
}
