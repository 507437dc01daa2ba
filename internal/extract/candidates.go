package extract

import (
	"path/filepath"
	"strings"

	"github.com/joe-chic/house-of-emmigrants/internal/normalize"
)

// Candidates is the candidate bag for one document: normalized values that
// have not been resolved against the database yet. Empty strings and nil
// slices mean the field is absent.
type Candidates struct {
	Path            string         `yaml:"path,omitempty"`
	Title           string         `yaml:"title"`
	Summary         string         `yaml:"summary"`
	MainPerson      string         `yaml:"main_person,omitempty"`
	MainName        normalize.Name `yaml:"main_name,omitempty"`
	Mentions        []string       `yaml:"mentions,omitempty"`
	Sex             string         `yaml:"sex,omitempty"`
	MaritalStatus   string         `yaml:"marital_status,omitempty"`
	Education       string         `yaml:"education,omitempty"`
	LegalStatus     string         `yaml:"legal_status,omitempty"`
	Occupation      string         `yaml:"occupation,omitempty"`
	Religion        string         `yaml:"religion,omitempty"`
	DepartureDate   string         `yaml:"departure_date,omitempty"`
	Destination     string         `yaml:"destination,omitempty"`
	Country         string         `yaml:"country,omitempty"`
	Motive          string         `yaml:"motive,omitempty"`
	Duration        string         `yaml:"travel_duration,omitempty"`
	ReturnPlans     string         `yaml:"return_plans,omitempty"`
	TravelMethods   []string       `yaml:"travel_methods,omitempty"`
	Keywords        []string       `yaml:"keywords,omitempty"`
	ImageReferences []string       `yaml:"image_references,omitempty"`
}

// HasTravel reports whether any travel profile field was found.
func (c *Candidates) HasTravel() bool {
	return c.DepartureDate != "" || c.Destination != "" || c.Motive != "" ||
		c.Duration != "" || c.ReturnPlans != "" || len(c.TravelMethods) > 0
}

// Title derives a document title from its file name: extension removed and
// underscores and dashes turned into spaces.
func Title(path string) string {
	base := filepath.Base(path)
	if path == "" || base == "." || base == string(filepath.Separator) {
		return "Untitled Interview"
	}
	name := strings.TrimSuffix(base, filepath.Ext(base))
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return "Untitled Interview " + base
	}
	return name
}

// Summary returns text unchanged when it has at most limit runes, otherwise
// its first limit-3 runes followed by "...".
func Summary(text string, limit int) string {
	text = strings.TrimSpace(text)
	if limit < 4 {
		limit = 4
	}
	r := []rune(text)
	if len(r) <= limit {
		return text
	}
	return string(r[:limit-3]) + "..."
}

// dedupe keeps the first occurrence of every value, dropping empties.
func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
