package store

import (
	"context"
	"database/sql"
	"testing"
)

func TestResolveClosedHitAndMiss(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tx := beginTest(t, s)

	id, found, err := tx.Resolve(ctx, MaritalStatuses, "  SINGLE ")
	if err != nil || !found || id == 0 {
		t.Fatalf("Resolve(single) = %d, %v, %v", id, found, err)
	}
	again, found, err := tx.Resolve(ctx, MaritalStatuses, "single")
	if err != nil || !found || again != id {
		t.Fatalf("second Resolve(single) = %d, %v, %v; want %d", again, found, err, id)
	}
	if _, ok := s.cache.Get(cacheKey{table: "marital_statuses", value: "single"}); !ok {
		t.Error("closed hit was not cached")
	}

	id, found, err = tx.Resolve(ctx, MaritalStatuses, "complicated")
	if err != nil || found || id != 0 {
		t.Fatalf("Resolve(complicated) = %d, %v, %v; want absent", id, found, err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	if got := countRows(t, s, "marital_statuses"); got != 3 {
		t.Errorf("closed table grew to %d rows", got)
	}
}

func TestResolveOpenInsertsOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tx := beginTest(t, s)

	first, found, err := tx.Resolve(ctx, Occupations, "Farm  Laborer")
	if err != nil || !found {
		t.Fatalf("Resolve(Farm Laborer) = %d, %v, %v", first, found, err)
	}
	second, found, err := tx.Resolve(ctx, Occupations, "FARM LABORER")
	if err != nil || !found || second != first {
		t.Fatalf("Resolve(FARM LABORER) = %d, %v, %v; want %d", second, found, err, first)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	if got := countRows(t, s, "occupations"); got != 1 {
		t.Fatalf("occupations = %d, want 1", got)
	}
	var stored string
	if err := s.db.QueryRow("SELECT occupation FROM occupations").Scan(&stored); err != nil {
		t.Fatal(err)
	}
	if stored != "farm laborer" {
		t.Errorf("stored %q, want lowercased trimmed value", stored)
	}
	if s.cache.Contains(cacheKey{table: "occupations", value: "farm laborer"}) {
		t.Error("open category results must not be cached")
	}
}

func TestResolveEmptyValue(t *testing.T) {
	s := newTestStore(t)
	tx := beginTest(t, s)
	for _, c := range []Category{Sexes, Religions} {
		id, found, err := tx.Resolve(context.Background(), c, "   ")
		if err != nil || found || id != 0 {
			t.Errorf("Resolve(%s, blank) = %d, %v, %v", c.Name, id, found, err)
		}
	}
}

func TestResolveCity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tx := beginTest(t, s)

	usa, found, err := tx.Resolve(ctx, Countries, "United States")
	if err != nil || !found {
		t.Fatalf("Resolve(United States) = %v, %v", found, err)
	}

	withCountry, _, err := tx.ResolveCity(ctx, "Minneapolis", NullID(usa, true))
	if err != nil {
		t.Fatalf("ResolveCity: %v", err)
	}
	sameCity, _, err := tx.ResolveCity(ctx, "minneapolis", NullID(usa, true))
	if err != nil || sameCity != withCountry {
		t.Fatalf("ResolveCity again = %d, %v; want %d", sameCity, err, withCountry)
	}
	noCountry, _, err := tx.ResolveCity(ctx, "Minneapolis", sql.NullInt64{})
	if err != nil || noCountry == withCountry {
		t.Fatalf("city without country = %d, %v; want a distinct row", noCountry, err)
	}
	noCountryAgain, _, err := tx.ResolveCity(ctx, "MINNEAPOLIS", sql.NullInt64{})
	if err != nil || noCountryAgain != noCountry {
		t.Fatalf("city without country again = %d, %v; want %d", noCountryAgain, err, noCountry)
	}
	if _, found, err := tx.ResolveCity(ctx, "", sql.NullInt64{}); found || err != nil {
		t.Fatalf("blank city resolved: %v, %v", found, err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	if got := countRows(t, s, "cities"); got != 2 {
		t.Errorf("cities = %d, want 2", got)
	}
}

func TestCategoryByName(t *testing.T) {
	c, ok := CategoryByName("travel_method")
	if !ok || c.Table != "travel_methods" || c.Policy != Closed {
		t.Fatalf("CategoryByName(travel_method) = %+v, %v", c, ok)
	}
	if c, ok := CategoryByName("religion"); !ok || c.Policy != InsertIfMissing {
		t.Fatalf("religion = %+v, %v", c, ok)
	}
	if _, ok := CategoryByName("cities"); ok {
		t.Fatal("cities is resolved separately")
	}
}
