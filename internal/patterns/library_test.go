package patterns

import (
	"strings"
	"testing"
)

func testLibrary(t *testing.T) *Library {
	t.Helper()
	lib, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	return lib
}

func texts(ms []Match) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Text
	}
	return out
}

func TestEmbeddedVocabularyCompiles(t *testing.T) {
	lib := testLibrary(t)
	for _, k := range Kinds() {
		if lib.Pattern(k) == nil {
			t.Errorf("no pattern compiled for %s", k)
		}
	}
	if lib.Vocabulary().Version <= 0 {
		t.Fatal("expected a versioned vocabulary")
	}
}

func TestUnicodeBoundaries(t *testing.T) {
	lib := testLibrary(t)
	loc := lib.Pattern(KindLocation)

	tests := []struct {
		text string
		want string
	}{
		{"We sailed from Malmö in the spring.", "Malmö"},
		{"Östersund was cold.", "Östersund"},
		{"born near Rödön, Jämtland", "Rödön"},
	}
	for _, tt := range tests {
		m, ok := loc.First(tt.text)
		if !ok {
			t.Errorf("First(%q): no match", tt.text)
			continue
		}
		if m.Text != tt.want || !m.Specific {
			t.Errorf("First(%q) = %+v, want specific %q", tt.text, m, tt.want)
		}
		if tt.text[m.Start:m.End] != m.Text {
			t.Errorf("offsets %d:%d do not cover %q", m.Start, m.End, m.Text)
		}
	}

	// A listed name embedded in a longer word must not match.
	for _, m := range loc.Specific("Malmöbor and Superiority") {
		t.Errorf("unexpected specific match %q", m.Text)
	}
}

func TestSpecificWinsOverGeneral(t *testing.T) {
	lib := testLibrary(t)
	loc := lib.Pattern(KindLocation)

	got := loc.All("They settled in New York City near Galesburg.")
	if len(got) != 2 {
		t.Fatalf("All = %v, want 2 matches", texts(got))
	}
	if got[0].Text != "New York City" || !got[0].Specific {
		t.Errorf("first = %+v, want specific New York City", got[0])
	}
	if got[1].Text != "Galesburg" || !got[1].Specific {
		t.Errorf("second = %+v, want specific Galesburg", got[1])
	}
}

func TestGeneralFallbackTrimsSentenceWords(t *testing.T) {
	lib := testLibrary(t)
	names := lib.Pattern(KindName)

	got := names.All("Karl Andersson came first. Then Hilda Berg wrote to him.")
	want := []string{"Karl Andersson", "Hilda Berg"}
	if strings.Join(texts(got), "|") != strings.Join(want, "|") {
		t.Fatalf("All = %v, want %v", texts(got), want)
	}
	for _, m := range got {
		if m.Specific {
			t.Errorf("%q should come from the general pattern", m.Text)
		}
	}

	if m, ok := names.First("The end."); ok {
		t.Errorf("excluded word matched as name: %+v", m)
	}
}

func TestGeneralRespectsUnicodeWords(t *testing.T) {
	lib := testLibrary(t)
	tests := []struct {
		kind Kind
		text string
		want []string
	}{
		{KindName, "Nils Lindström grew up near Linköping.", []string{"Nils Lindström", "Linköping"}},
		{KindName, "Åberg and Östlund wrote.", []string{"Åberg", "Östlund"}},
		// Decomposed ö: the trailing partial word is dropped, not split.
		{KindName, "Nils Lindstro\u0308m left.", []string{"Nils"}},
		{KindName, "McDonald came", nil},
		{KindLocation, "He lived near Hälsingborg today.", []string{"Hälsingborg"}},
		{KindLocation, "He left Malmö on the steamship.", []string{"Malmö"}},
	}
	for _, tt := range tests {
		got := texts(lib.Pattern(tt.kind).General(tt.text))
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("%s.General(%q) = %v, want %v", tt.kind, tt.text, got, tt.want)
		}
	}
}

func TestCaseInsensitiveTerms(t *testing.T) {
	lib := testLibrary(t)
	tests := []struct {
		kind Kind
		text string
		want string
	}{
		{KindMaritalStatus, "She was a WIDOW by then.", "WIDOW"},
		{KindTravelMethod, "We crossed on a Steamship.", "Steamship"},
		{KindEducation, "I went to grade   school there.", "grade   school"},
		{KindSex, "a young man from Dalarna", "man"},
	}
	for _, tt := range tests {
		m, ok := lib.Pattern(tt.kind).First(tt.text)
		if !ok || m.Text != tt.want {
			t.Errorf("%s.First(%q) = %q,%v want %q", tt.kind, tt.text, m.Text, ok, tt.want)
		}
	}

	if m, ok := lib.Pattern(KindSex).First("the human race"); ok {
		t.Errorf("sex term matched inside a word: %+v", m)
	}
}

func TestTailExtendsPhrase(t *testing.T) {
	lib := testLibrary(t)
	m, ok := lib.Pattern(KindMotive).First("We left because there was no work, so we went.")
	if !ok {
		t.Fatal("no motive match")
	}
	if m.Text != "left because there was no work" {
		t.Errorf("motive = %q", m.Text)
	}

	// A term must still end on a word boundary when followed by a tail.
	if m, ok := lib.Pattern(KindMotive).First("the workers' hall"); ok {
		t.Errorf("unexpected motive match %q", m.Text)
	}
}

func TestDatePatternForms(t *testing.T) {
	lib := testLibrary(t)
	dates := lib.Pattern(KindDate)
	tests := []struct {
		text string
		want string
	}{
		{"we left in August of 1888 on a ship", "August of 1888"},
		{"it was 1888-08-15 exactly", "1888-08-15"},
		{"on the 5th of augusti 1902", "5th of augusti 1902"},
		{"March 3, 1910 was a Thursday", "March 3, 1910"},
		{"around 1905 we moved", "1905"},
		{"a year and a half later", "a year"},
	}
	for _, tt := range tests {
		m, ok := dates.First(tt.text)
		if !ok || m.Text != tt.want {
			t.Errorf("First(%q) = %q,%v want %q", tt.text, m.Text, ok, tt.want)
		}
	}
}

func TestOccupationGeneralCapture(t *testing.T) {
	lib := testLibrary(t)
	got := lib.Pattern(KindOccupation).General("Later I worked as a farm hand.")
	if len(got) != 1 || got[0].Text != "farm hand" {
		t.Fatalf("General = %v", texts(got))
	}
}

func TestNoMatchIsEmpty(t *testing.T) {
	lib := testLibrary(t)
	if got := lib.Pattern(KindReturnPlan).All("nothing relevant here"); len(got) != 0 {
		t.Errorf("All = %v, want empty", texts(got))
	}
	var nilPattern *Pattern
	if _, ok := nilPattern.First("anything"); ok {
		t.Error("nil pattern matched")
	}
}
