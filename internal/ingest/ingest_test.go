package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"github.com/joe-chic/house-of-emmigrants/internal/extract"
	"github.com/joe-chic/house-of-emmigrants/internal/patterns"
	"github.com/joe-chic/house-of-emmigrants/internal/store"
)

const andersText = "Anders Persson was born on a farm near Gothenburg. " +
	"He worked as a farm laborer until August of 1888, when he left on the steamship. " +
	"He was single then."

type fixture struct {
	store  *store.Store
	engine *extract.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	// Default run locks live under the temp dir.
	t.Setenv("TMPDIR", t.TempDir())
	lib, err := patterns.Default()
	if err != nil {
		t.Fatalf("patterns.Default: %v", err)
	}
	s, err := store.New(context.Background(), store.Config{
		DBPath: ":memory:",
		Seeds:  lib.Vocabulary().Seeds(),
	})
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return &fixture{store: s, engine: extract.NewEngine(lib, extract.Options{})}
}

func (f *fixture) driver(opts PersistOptions) *Driver {
	return NewDriver(f.engine, NewOrchestrator(f.store, opts), nil)
}

func (f *fixture) exec(t *testing.T, stmt string) {
	t.Helper()
	if _, err := f.store.DB().ExecContext(context.Background(), stmt); err != nil {
		t.Fatalf("exec %q: %v", stmt, err)
	}
}

func (f *fixture) count(t *testing.T, table string) int64 {
	t.Helper()
	n, err := f.store.CountRows(context.Background(), table)
	if err != nil {
		t.Fatalf("CountRows(%s): %v", table, err)
	}
	return n
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
	return dir
}

func TestEndToEndInterview(t *testing.T) {
	f := newFixture(t)
	dir := writeFiles(t, map[string]string{"anders_persson.txt": andersText})

	res, err := f.driver(PersistOptions{}).Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Committed != 1 || res.Failed != 0 {
		t.Fatalf("committed=%d failed=%d, files=%+v", res.Committed, res.Failed, res.Files)
	}
	if res.RunID == "" {
		t.Error("expected a run id")
	}

	story, err := f.store.GetStory(context.Background(), res.Files[0].TextID)
	if err != nil {
		t.Fatalf("GetStory: %v", err)
	}
	checks := []struct {
		field, got, want string
	}{
		{"given name", story.GivenName, "Anders"},
		{"family name", story.FamilyName, "Persson"},
		{"departure date", story.DepartureDate, "1888-08-01"},
		{"marital status", story.MaritalStatus, "single"},
		{"destination", story.Destination, "gothenburg"},
		{"title", story.Title, "anders persson"},
	}
	for _, tc := range checks {
		if tc.got != tc.want {
			t.Errorf("%s = %q, want %q", tc.field, tc.got, tc.want)
		}
	}
	if len(story.TravelMethods) != 1 || story.TravelMethods[0] != "steamship" {
		t.Errorf("travel methods = %v, want [steamship]", story.TravelMethods)
	}
	if f.count(t, "travel_link") != 1 {
		t.Errorf("travel_link rows = %d, want 1", f.count(t, "travel_link"))
	}
}

func TestSwedishNamesArePersistedWhole(t *testing.T) {
	f := newFixture(t)
	dir := writeFiles(t, map[string]string{"nils.txt": "Nils Lindström grew up near Linköping. " +
		"He left Malmö on the steamship in 1890."})

	res, err := f.driver(PersistOptions{}).Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Committed != 1 {
		t.Fatalf("committed=%d, files=%+v", res.Committed, res.Files)
	}
	story, err := f.store.GetStory(context.Background(), res.Files[0].TextID)
	if err != nil {
		t.Fatalf("GetStory: %v", err)
	}
	if story.GivenName != "Nils" || story.FamilyName != "Lindström" {
		t.Errorf("main person = %q %q, want Nils Lindström", story.GivenName, story.FamilyName)
	}
	if story.Destination != "linköping" {
		t.Errorf("destination = %q, want linköping", story.Destination)
	}
	for _, m := range story.Mentions {
		switch m {
		case "Link", "Malm", "Lindstr":
			t.Errorf("mention %q is a word fragment; mentions = %v", m, story.Mentions)
		}
	}

	var fragments int
	err = f.store.DB().QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM person_info
		 WHERE first_name IN ('Link', 'Malm', 'Lindstr') OR first_surname IN ('Lindstr', 'Link', 'Malm')`).Scan(&fragments)
	if err != nil {
		t.Fatal(err)
	}
	if fragments != 0 {
		t.Errorf("person_info holds %d fragment rows", fragments)
	}
}

func TestFailedPersonInsertWritesNothingAndBatchContinues(t *testing.T) {
	// The broken document would touch every table: a mention, a city, a
	// travel method and a keyword.
	const broken = "Broken Person left Stockholm in August of 1890 on the steamship. " +
		"His brother Karl stayed on the farm."

	baseline := newFixture(t)
	if _, err := baseline.driver(PersistOptions{}).Run(context.Background(),
		writeFiles(t, map[string]string{"2_anders.txt": andersText})); err != nil {
		t.Fatalf("baseline Run: %v", err)
	}

	f := newFixture(t)
	f.exec(t, `CREATE TRIGGER fail_person BEFORE INSERT ON person_info
		WHEN NEW.first_name = 'Broken'
		BEGIN SELECT RAISE(ABORT, 'forced failure'); END`)
	dir := writeFiles(t, map[string]string{
		"1_broken.txt": broken,
		"2_anders.txt": andersText,
	})

	res, err := f.driver(PersistOptions{}).Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Processed != 2 || res.Failed != 1 || res.Committed != 1 {
		t.Fatalf("processed=%d failed=%d committed=%d", res.Processed, res.Failed, res.Committed)
	}

	failed := res.Files[0]
	if failed.Status != StatusFailed {
		t.Fatalf("first file status = %s, want failed", failed.Status)
	}
	var docErr *DocumentError
	if !errors.As(failed.Err, &docErr) {
		t.Fatalf("error %v is not a *DocumentError", failed.Err)
	}
	if docErr.Stage != StagePersonMain {
		t.Errorf("stage = %s, want %s", docErr.Stage, StagePersonMain)
	}
	if !errors.Is(failed.Err, ErrMandatoryWrite) {
		t.Errorf("expected ErrMandatoryWrite, got %v", failed.Err)
	}

	for _, table := range store.StatTables {
		if got, want := f.count(t, table), baseline.count(t, table); got != want {
			t.Errorf("%s rows = %d, want %d as if the broken document never ran", table, got, want)
		}
	}
	var leaked int
	err = f.store.DB().QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM person_info WHERE first_name IN ('Broken', 'Karl')`).Scan(&leaked)
	if err != nil {
		t.Fatal(err)
	}
	if leaked != 0 {
		t.Errorf("failed document left %d person rows", leaked)
	}
	var stockholm int
	err = f.store.DB().QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM cities WHERE LOWER(city) = 'stockholm'`).Scan(&stockholm)
	if err != nil {
		t.Fatal(err)
	}
	if stockholm != 0 {
		t.Errorf("failed document left its destination city")
	}
}

func TestReprocessingDuplicatesRows(t *testing.T) {
	f := newFixture(t)
	dir := writeFiles(t, map[string]string{"anders.txt": andersText})
	d := f.driver(PersistOptions{})

	for i := 0; i < 2; i++ {
		if _, err := d.Run(context.Background(), dir); err != nil {
			t.Fatalf("run %d: %v", i+1, err)
		}
	}
	if n := f.count(t, "text_files"); n != 2 {
		t.Errorf("text_files rows = %d, want 2", n)
	}
	if n := f.count(t, "demographic_info"); n != 2 {
		t.Errorf("demographic_info rows = %d, want 2", n)
	}
	var anders int
	err := f.store.DB().QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM person_info WHERE first_name = 'Anders' AND first_surname = 'Persson'`).Scan(&anders)
	if err != nil {
		t.Fatal(err)
	}
	if anders != 2 {
		t.Errorf("main person rows = %d, want 2", anders)
	}
	if n := f.count(t, "cities"); n != 1 {
		t.Errorf("cities rows = %d, want 1 (reused)", n)
	}
}

func TestSkipDuplicates(t *testing.T) {
	f := newFixture(t)
	dir := writeFiles(t, map[string]string{"anders.txt": andersText})
	d := f.driver(PersistOptions{SkipDuplicates: true})

	first, err := d.Run(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	second, err := d.Run(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if second.Duplicates != 1 || second.Committed != 0 {
		t.Fatalf("duplicates=%d committed=%d", second.Duplicates, second.Committed)
	}
	if second.Files[0].TextID != first.Files[0].TextID {
		t.Errorf("duplicate points at %d, want %d", second.Files[0].TextID, first.Files[0].TextID)
	}
	if n := f.count(t, "text_files"); n != 1 {
		t.Errorf("text_files rows = %d, want 1", n)
	}
}

func TestOptionalLinkFailureIsSkipped(t *testing.T) {
	f := newFixture(t)
	f.exec(t, `CREATE TRIGGER fail_keyword BEFORE INSERT ON keywords
		WHEN NEW.keyword = 'farm'
		BEGIN SELECT RAISE(ABORT, 'forced failure'); END`)
	dir := writeFiles(t, map[string]string{"anders.txt": andersText})

	res, err := f.driver(PersistOptions{}).Run(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if res.Committed != 1 {
		t.Fatalf("committed = %d, want 1: %v", res.Committed, res.Files[0].Err)
	}
	p := res.Files[0].Persisted
	if p.SkippedLinks != 1 || p.Keywords != 0 {
		t.Errorf("skipped=%d keywords=%d, want 1 and 0", p.SkippedLinks, p.Keywords)
	}
	if p.Methods != 1 {
		t.Errorf("travel methods linked = %d, want 1", p.Methods)
	}
	if n := f.count(t, "keywords"); n != 0 {
		t.Errorf("keywords rows = %d, want 0", n)
	}
}

func TestClosedVocabularyMissStoresNull(t *testing.T) {
	f := newFixture(t)
	o := NewOrchestrator(f.store, PersistOptions{})
	bag := &extract.Candidates{
		Path:          "memory.txt",
		Title:         "memory",
		MainPerson:    "Selma Lind",
		MaritalStatus: "complicated",
		Sex:           "female",
	}
	bag.MainName.Given, bag.MainName.Family = "Selma", "Lind"

	p, err := o.Persist(context.Background(), bag, "Selma Lind")
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if len(p.Unresolved) != 1 || p.Unresolved[0] != "marital_status=complicated" {
		t.Errorf("unresolved = %v", p.Unresolved)
	}
	story, err := f.store.GetStory(context.Background(), p.TextID)
	if err != nil {
		t.Fatal(err)
	}
	if story.Sex != "female" || story.MaritalStatus != "" {
		t.Errorf("sex=%q marital=%q", story.Sex, story.MaritalStatus)
	}
	if p.TravelID != 0 {
		t.Errorf("travel id = %d, want none", p.TravelID)
	}
	if n := f.count(t, "marital_statuses"); n != 6 {
		t.Errorf("closed table grew to %d rows", n)
	}
}

func TestMissingMainPersonGetsPlaceholder(t *testing.T) {
	f := newFixture(t)
	p, err := NewOrchestrator(f.store, PersistOptions{}).
		Persist(context.Background(), &extract.Candidates{Path: "blank.txt", Title: "blank"}, "")
	if err != nil {
		t.Fatal(err)
	}
	story, err := f.store.GetStory(context.Background(), p.TextID)
	if err != nil {
		t.Fatal(err)
	}
	if story.GivenName != UnknownPerson {
		t.Errorf("given name = %q, want %q", story.GivenName, UnknownPerson)
	}
}

func TestTimeoutRollsBack(t *testing.T) {
	f := newFixture(t)
	o := NewOrchestrator(f.store, PersistOptions{Timeout: time.Minute})
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	bag := f.engine.ExtractDocument("anders.txt", andersText)
	_, err := o.Persist(ctx, bag, andersText)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if n := f.count(t, "text_files"); n != 0 {
		t.Errorf("text_files rows = %d, want 0", n)
	}
}

func TestRunOrderingAndSkips(t *testing.T) {
	f := newFixture(t)
	dir := writeFiles(t, map[string]string{
		"file10.txt": "Selma arrived in 1901.",
		"file2.TXT":  "Axel arrived in 1899.",
		"notes.md":   "not a transcript",
		"bad.txt":    string([]byte{0xff, 0xfe, 0x00}),
	})
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}

	res, err := f.driver(PersistOptions{}).Run(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	var order []string
	for _, fr := range res.Files {
		order = append(order, filepath.Base(fr.Path))
	}
	want := []string{"bad.txt", "file2.TXT", "file10.txt", "notes.md"}
	if len(order) != len(want) {
		t.Fatalf("files = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("files = %v, want %v", order, want)
		}
	}
	if res.Skipped != 1 || res.Failed != 1 || res.Committed != 2 || res.Processed != 3 {
		t.Errorf("skipped=%d failed=%d committed=%d processed=%d",
			res.Skipped, res.Failed, res.Committed, res.Processed)
	}
}

func TestRunRespectsLock(t *testing.T) {
	f := newFixture(t)
	dir := writeFiles(t, map[string]string{"anders.txt": andersText})

	tests := []struct {
		name     string
		lockPath string
		held     string
	}{
		{"default temp lock", "", DefaultLockPath(dir)},
		{"configured lock", filepath.Join(t.TempDir(), "emigrants.db.lock"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := tt.held
			if path == "" {
				path = tt.lockPath
			}
			held := flock.New(path)
			ok, err := held.TryLock()
			if err != nil || !ok {
				t.Fatalf("TryLock: ok=%v err=%v", ok, err)
			}
			defer held.Unlock()

			d := f.driver(PersistOptions{}).WithLockPath(tt.lockPath)
			if _, err := d.Run(context.Background(), dir); !errors.Is(err, ErrLocked) {
				t.Fatalf("expected ErrLocked, got %v", err)
			}
		})
	}
}

func TestRunLeavesTranscriptDirectoryUntouched(t *testing.T) {
	f := newFixture(t)
	dir := writeFiles(t, map[string]string{"anders.txt": andersText})
	if err := os.Chmod(dir, 0o555); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(dir, 0o755) })

	res, err := f.driver(PersistOptions{}).Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run over a read-only directory: %v", err)
	}
	if res.Committed != 1 {
		t.Errorf("committed = %d, want 1", res.Committed)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "anders.txt" {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("directory now holds %v, want only anders.txt", names)
	}
	if _, err := os.Stat(DefaultLockPath(dir)); err != nil {
		t.Errorf("expected the run lock under the temp dir: %v", err)
	}
}

func TestProcessFile(t *testing.T) {
	f := newFixture(t)
	dir := writeFiles(t, map[string]string{
		"anders.txt": andersText,
		"photo.jpg":  "binary",
	})
	d := f.driver(PersistOptions{})

	if fr := d.ProcessFile(context.Background(), filepath.Join(dir, "anders.txt")); fr.Status != StatusCommitted {
		t.Errorf("status = %s (%v), want committed", fr.Status, fr.Err)
	}
	if fr := d.ProcessFile(context.Background(), filepath.Join(dir, "photo.jpg")); fr.Status != StatusSkipped {
		t.Errorf("status = %s, want skipped", fr.Status)
	}
	if fr := d.ProcessFile(context.Background(), filepath.Join(dir, "missing.txt")); fr.Status != StatusFailed {
		t.Errorf("status = %s, want failed", fr.Status)
	}
}

func TestReadTranscriptNormalizesLineEndings(t *testing.T) {
	dir := writeFiles(t, map[string]string{"a.txt": "\ufeffline one\r\nline two"})
	got, err := ReadTranscript(filepath.Join(dir, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if got != "line one\nline two" {
		t.Errorf("got %q", got)
	}
}
