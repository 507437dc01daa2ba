package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

var testSeeds = map[string][]string{
	"sex":            {"male", "female"},
	"marital_status": {"single", "married", "widowed"},
	"education":      {"primary school"},
	"legal_status":   {"naturalized citizen"},
	"motive":         {"economic", "family", "work"},
	"travel_method":  {"steamship", "train"},
	"country":        {"sweden", "united states"},
}

// newTestStore creates an in-memory store for testing.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(context.Background(), Config{DBPath: ":memory:", Seeds: testSeeds})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func beginTest(t *testing.T, s *Store) *Tx {
	t.Helper()
	tx, err := s.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	t.Cleanup(func() { tx.Rollback() })
	return tx
}

func countRows(t *testing.T, s *Store, table string) int64 {
	t.Helper()
	n, err := s.CountRows(context.Background(), table)
	if err != nil {
		t.Fatalf("CountRows(%s): %v", table, err)
	}
	return n
}

func TestNewStoreCreatesSchema(t *testing.T) {
	s := newTestStore(t)
	tables := []string{
		"meta", "sexes", "marital_statuses", "education_levels", "legal_statuses",
		"motives_migration", "travel_methods", "countries", "cities", "occupations",
		"religions", "person_info", "demographic_info", "mention_link", "travel_info",
		"travel_link", "text_files", "keywords",
	}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found: %v", table, err)
		}
	}

	v, err := s.Meta(context.Background(), "schema_version")
	if err != nil || v != "1" {
		t.Fatalf("schema_version = %q, %v", v, err)
	}
	if _, err := s.Meta(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Meta(missing) err = %v, want ErrNotFound", err)
	}
}

func TestSeedsClosedLookups(t *testing.T) {
	s := newTestStore(t)
	for _, c := range Categories() {
		want := int64(len(testSeeds[c.Name]))
		if got := countRows(t, s, c.Table); got != want {
			t.Errorf("%s has %d rows, want %d", c.Table, got, want)
		}
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emigrants.db")
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		s, err := New(ctx, Config{DBPath: path, Seeds: testSeeds})
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		if got := countRows(t, s, "sexes"); got != 2 {
			t.Errorf("open %d: sexes = %d, want 2", i, got)
		}
		s.Close()
	}
}

func TestSavepointIsolatesFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tx := beginTest(t, s)

	personID, err := tx.InsertPerson(ctx, "Anna", "Lind")
	if err != nil {
		t.Fatalf("InsertPerson: %v", err)
	}
	sentinel := errors.New("boom")
	err = tx.Savepoint(ctx, func() error {
		if _, err := tx.InsertPerson(ctx, "Doomed", ""); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("Savepoint err = %v, want sentinel", err)
	}
	if err := tx.Savepoint(ctx, func() error {
		_, err := tx.InsertDemographic(ctx, Demographic{MainPerson: personID})
		return err
	}); err != nil {
		t.Fatalf("second savepoint: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if got := countRows(t, s, "person_info"); got != 1 {
		t.Errorf("person_info = %d, want 1", got)
	}
	if got := countRows(t, s, "demographic_info"); got != 1 {
		t.Errorf("demographic_info = %d, want 1", got)
	}
}

func TestRollbackDiscardsEverything(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tx := beginTest(t, s)
	if _, err := tx.InsertPerson(ctx, "Anna", "Lind"); err != nil {
		t.Fatalf("InsertPerson: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("second Rollback should be a no-op: %v", err)
	}
	if got := countRows(t, s, "person_info"); got != 0 {
		t.Errorf("person_info = %d, want 0", got)
	}
}

func TestDialectFor(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "sqlite", false},
		{"SQLite", "sqlite", false},
		{"postgres", "postgres", false},
		{"postgresql", "postgres", false},
		{"mysql", "", true},
	}
	for _, tt := range tests {
		d, err := DialectFor(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("DialectFor(%q) err = %v", tt.in, err)
			continue
		}
		if d.Name != tt.want {
			t.Errorf("DialectFor(%q) = %s, want %s", tt.in, d.Name, tt.want)
		}
	}

	if got := Postgres.render("id {{serial}}, d {{date}}"); got != "id BIGSERIAL PRIMARY KEY, d DATE" {
		t.Errorf("postgres render = %q", got)
	}
}

func TestPostgresRequiresURL(t *testing.T) {
	_, err := New(context.Background(), Config{Driver: "postgres"})
	if err == nil {
		t.Fatal("expected an error without a database URL")
	}
}

func TestContentHash(t *testing.T) {
	a := ContentHash("a.txt", "same text")
	if a != ContentHash("a.txt", "same text") {
		t.Fatal("hash is not deterministic")
	}
	if a == ContentHash("b.txt", "same text") {
		t.Fatal("path must be part of the hash")
	}
	if len(a) != 64 {
		t.Fatalf("hash length = %d, want 64", len(a))
	}
}
