package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Policy decides what happens when a lookup value is missing.
type Policy int

const (
	// Closed tables only match rows seeded from the vocabulary.
	Closed Policy = iota
	// InsertIfMissing tables grow when an unseen value is resolved.
	InsertIfMissing
)

func (p Policy) String() string {
	if p == InsertIfMissing {
		return "insert-if-missing"
	}
	return "closed"
}

// Category describes one lookup table.
type Category struct {
	Name   string
	Table  string
	Column string
	Key    string
	Policy Policy
}

var (
	Sexes           = Category{Name: "sex", Table: "sexes", Column: "sex", Key: "id_sex", Policy: Closed}
	MaritalStatuses = Category{Name: "marital_status", Table: "marital_statuses", Column: "status", Key: "id_marital", Policy: Closed}
	EducationLevels = Category{Name: "education", Table: "education_levels", Column: "level", Key: "id_education", Policy: Closed}
	LegalStatuses   = Category{Name: "legal_status", Table: "legal_statuses", Column: "status", Key: "id_legal", Policy: Closed}
	Motives         = Category{Name: "motive", Table: "motives_migration", Column: "motive", Key: "id_motive", Policy: Closed}
	TravelMethods   = Category{Name: "travel_method", Table: "travel_methods", Column: "method", Key: "id_travel_method", Policy: Closed}
	Countries       = Category{Name: "country", Table: "countries", Column: "country", Key: "id_country", Policy: Closed}
	Occupations     = Category{Name: "occupation", Table: "occupations", Column: "occupation", Key: "id_occupation", Policy: InsertIfMissing}
	Religions       = Category{Name: "religion", Table: "religions", Column: "religion", Key: "id_religion", Policy: InsertIfMissing}
)

// Categories lists every lookup table except cities, which are keyed by
// country as well and resolved with ResolveCity.
func Categories() []Category {
	return []Category{
		Sexes, MaritalStatuses, EducationLevels, LegalStatuses, Motives,
		TravelMethods, Countries, Occupations, Religions,
	}
}

// CategoryByName finds a category by its vocabulary name.
func CategoryByName(name string) (Category, bool) {
	for _, c := range Categories() {
		if c.Name == name {
			return c, true
		}
	}
	return Category{}, false
}

func canonicalValue(value string) string {
	return strings.Join(strings.Fields(strings.ToLower(value)), " ")
}

// Resolve maps value to the id of its row in c, matching case-insensitively.
// A miss on an InsertIfMissing category inserts the lowercased, trimmed value.
// A miss on a Closed category reports found=false. Database errors are
// returned and are fatal for the caller's transaction.
//
// Find-or-create is safe under the single-writer model; a raced duplicate
// insert fails on the LOWER() unique index instead of duplicating the value.
func (t *Tx) Resolve(ctx context.Context, c Category, value string) (id int64, found bool, err error) {
	v := canonicalValue(value)
	if v == "" {
		return 0, false, nil
	}
	key := cacheKey{table: c.Table, value: v}
	if c.Policy == Closed {
		if id, ok := t.store.cache.Get(key); ok {
			return id, true, nil
		}
	}

	id, found, err = t.find(ctx, c, v)
	if err != nil {
		return 0, false, err
	}
	if found {
		// Open-category ids may belong to this still-uncommitted transaction,
		// so only closed hits are cached.
		if c.Policy == Closed {
			t.store.cache.Add(key, id)
		}
		return id, true, nil
	}
	if c.Policy == Closed {
		return 0, false, nil
	}

	id, err = t.insertReturning(ctx, t.store.sb.Insert(c.Table).
		Columns(c.Column).
		Values(v).
		Suffix("RETURNING "+c.Key))
	if err != nil {
		return 0, false, fmt.Errorf("inserting %s %q: %w", c.Name, v, err)
	}
	return id, true, nil
}

func (t *Tx) find(ctx context.Context, c Category, v string) (int64, bool, error) {
	query, args, err := t.store.sb.Select(c.Key).
		From(c.Table).
		Where(sq.Expr("LOWER("+c.Column+") = ?", v)).
		Limit(1).
		ToSql()
	if err != nil {
		return 0, false, fmt.Errorf("building %s lookup: %w", c.Name, err)
	}
	var id int64
	err = t.tx.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("looking up %s %q: %w", c.Name, v, err)
	}
	return id, true, nil
}

// ensure inserts value into c unless it is already present, regardless of the
// category policy. It reports whether a row was created.
func (t *Tx) ensure(ctx context.Context, c Category, value string) (bool, error) {
	v := canonicalValue(value)
	if v == "" {
		return false, nil
	}
	_, found, err := t.find(ctx, c, v)
	if err != nil || found {
		return false, err
	}
	if _, err := t.insertReturning(ctx, t.store.sb.Insert(c.Table).
		Columns(c.Column).
		Values(v).
		Suffix("RETURNING "+c.Key)); err != nil {
		return false, err
	}
	return true, nil
}

// ResolveCity finds a city by name within country (or with no country when
// country is not valid) and creates it when missing. An empty name resolves to
// nothing.
func (t *Tx) ResolveCity(ctx context.Context, city string, country sql.NullInt64) (int64, bool, error) {
	v := canonicalValue(city)
	if v == "" {
		return 0, false, nil
	}
	b := t.store.sb.Select("id_city").
		From("cities").
		Where(sq.Expr("LOWER(city) = ?", v)).
		Limit(1)
	if country.Valid {
		b = b.Where(sq.Eq{"id_country": country.Int64})
	} else {
		b = b.Where(sq.Eq{"id_country": nil})
	}
	query, args, err := b.ToSql()
	if err != nil {
		return 0, false, fmt.Errorf("building city lookup: %w", err)
	}
	var id int64
	err = t.tx.QueryRowContext(ctx, query, args...).Scan(&id)
	switch {
	case err == nil:
		return id, true, nil
	case !errors.Is(err, sql.ErrNoRows):
		return 0, false, fmt.Errorf("looking up city %q: %w", v, err)
	}

	id, err = t.insertReturning(ctx, t.store.sb.Insert("cities").
		Columns("city", "id_country").
		Values(v, country).
		Suffix("RETURNING id_city"))
	if err != nil {
		return 0, false, fmt.Errorf("inserting city %q: %w", v, err)
	}
	return id, true, nil
}
