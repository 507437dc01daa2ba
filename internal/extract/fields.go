package extract

import (
	"fmt"
	"sort"
	"strings"
)

// Field names one slot of the candidate bag.
type Field string

const (
	FieldMainPerson      Field = "main_person"
	FieldMentions        Field = "mentions"
	FieldSex             Field = "sex"
	FieldMaritalStatus   Field = "marital_status"
	FieldEducation       Field = "education"
	FieldLegalStatus     Field = "legal_status"
	FieldOccupation      Field = "occupation"
	FieldReligion        Field = "religion"
	FieldDepartureDate   Field = "departure_date"
	FieldDestination     Field = "destination"
	FieldCountry         Field = "country"
	FieldMotive          Field = "motive"
	FieldDuration        Field = "travel_duration"
	FieldReturnPlans     Field = "return_plans"
	FieldTravelMethods   Field = "travel_methods"
	FieldKeywords        Field = "keywords"
	FieldImageReferences Field = "image_references"
)

// AllFields lists every field the engine can fill.
func AllFields() []Field {
	return []Field{
		FieldMainPerson, FieldMentions, FieldSex, FieldMaritalStatus,
		FieldEducation, FieldLegalStatus, FieldOccupation, FieldReligion,
		FieldDepartureDate, FieldDestination, FieldCountry, FieldMotive,
		FieldDuration, FieldReturnPlans, FieldTravelMethods, FieldKeywords,
		FieldImageReferences,
	}
}

// FieldSet is the set of enabled fields.
type FieldSet map[Field]bool

// DefaultFields enables everything except occupation and religion.
func DefaultFields() FieldSet {
	s := FieldSet{}
	for _, f := range AllFields() {
		s[f] = true
	}
	delete(s, FieldOccupation)
	delete(s, FieldReligion)
	return s
}

// Has reports whether f is enabled.
func (s FieldSet) Has(f Field) bool { return s[f] }

// With returns a copy with fields added.
func (s FieldSet) With(fields ...Field) FieldSet {
	out := make(FieldSet, len(s)+len(fields))
	for f, on := range s {
		out[f] = on
	}
	for _, f := range fields {
		out[f] = true
	}
	return out
}

// Names lists the enabled fields, sorted.
func (s FieldSet) Names() []string {
	var out []string
	for f, on := range s {
		if on {
			out = append(out, string(f))
		}
	}
	sort.Strings(out)
	return out
}

// ParseFields validates field names from configuration.
func ParseFields(names []string) ([]Field, error) {
	known := make(map[Field]bool)
	for _, f := range AllFields() {
		known[f] = true
	}
	var out []Field
	for _, n := range names {
		f := Field(strings.ToLower(strings.TrimSpace(n)))
		if f == "" {
			continue
		}
		if !known[f] {
			return nil, fmt.Errorf("unknown field %q", n)
		}
		out = append(out, f)
	}
	return out, nil
}
