package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Demographic is one document's demographic profile. Unresolved lookups are
// left invalid and stored as NULL.
type Demographic struct {
	MainPerson int64
	Sex        sql.NullInt64
	Marital    sql.NullInt64
	Education  sql.NullInt64
	Legal      sql.NullInt64
	Occupation sql.NullInt64
	Religion   sql.NullInt64
}

// Travel is one document's travel profile.
type Travel struct {
	DepartureDate   sql.NullString
	DestinationCity sql.NullInt64
	Motive          sql.NullInt64
	Duration        sql.NullString
	ReturnPlans     sql.NullString
}

// Document is the record for one transcript file.
type Document struct {
	Path          string
	Title         string
	Summary       string
	ContentHash   string
	DemographicID int64
	TravelID      sql.NullInt64
}

// NullString maps "" to NULL.
func NullString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}

// NullID wraps an id that is only meaningful when ok is true.
func NullID(id int64, ok bool) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: ok}
}

// InsertPerson creates a person row. Persons are never updated or merged.
func (t *Tx) InsertPerson(ctx context.Context, given, family string) (int64, error) {
	id, err := t.insertReturning(ctx, t.store.sb.Insert("person_info").
		Columns("first_name", "first_surname").
		Values(strings.TrimSpace(given), NullString(family)).
		Suffix("RETURNING id_person"))
	if err != nil {
		return 0, fmt.Errorf("inserting person %q: %w", strings.TrimSpace(given+" "+family), err)
	}
	return id, nil
}

// InsertDemographic creates a demographic profile.
func (t *Tx) InsertDemographic(ctx context.Context, d Demographic) (int64, error) {
	id, err := t.insertReturning(ctx, t.store.sb.Insert("demographic_info").
		Columns("id_main_person", "id_sex", "id_marital", "id_education", "id_legal", "id_occupation", "id_religion").
		Values(d.MainPerson, d.Sex, d.Marital, d.Education, d.Legal, d.Occupation, d.Religion).
		Suffix("RETURNING id_demography"))
	if err != nil {
		return 0, fmt.Errorf("inserting demographic profile: %w", err)
	}
	return id, nil
}

// LinkMention links a mentioned person to a demographic profile. Linking the
// same pair twice is a no-op.
func (t *Tx) LinkMention(ctx context.Context, demographicID, personID int64) error {
	err := t.exec(ctx, t.store.sb.Insert("mention_link").
		Columns("id_demography", "id_person").
		Values(demographicID, personID).
		Suffix("ON CONFLICT DO NOTHING"))
	if err != nil {
		return fmt.Errorf("linking mention %d: %w", personID, err)
	}
	return nil
}

// InsertTravel creates a travel profile.
func (t *Tx) InsertTravel(ctx context.Context, tr Travel) (int64, error) {
	id, err := t.insertReturning(ctx, t.store.sb.Insert("travel_info").
		Columns("departure_date", "destination_city", "id_motive_migration", "travel_duration", "return_plans").
		Values(tr.DepartureDate, tr.DestinationCity, tr.Motive, tr.Duration, tr.ReturnPlans).
		Suffix("RETURNING id_travel"))
	if err != nil {
		return 0, fmt.Errorf("inserting travel profile: %w", err)
	}
	return id, nil
}

// LinkTravelMethod links a travel method to a travel profile. Linking the same
// pair twice is a no-op.
func (t *Tx) LinkTravelMethod(ctx context.Context, travelID, methodID int64) error {
	err := t.exec(ctx, t.store.sb.Insert("travel_link").
		Columns("id_travel", "id_travel_method").
		Values(travelID, methodID).
		Suffix("ON CONFLICT DO NOTHING"))
	if err != nil {
		return fmt.Errorf("linking travel method %d: %w", methodID, err)
	}
	return nil
}

// InsertDocument creates the document record.
func (t *Tx) InsertDocument(ctx context.Context, d Document) (int64, error) {
	id, err := t.insertReturning(ctx, t.store.sb.Insert("text_files").
		Columns("path", "story_title", "story_summary", "content_hash", "id_demography", "id_travel").
		Values(d.Path, d.Title, NullString(d.Summary), d.ContentHash, d.DemographicID, d.TravelID).
		Suffix("RETURNING id_text"))
	if err != nil {
		return 0, fmt.Errorf("inserting document %s: %w", d.Path, err)
	}
	return id, nil
}

// InsertKeyword attaches a keyword to a document.
func (t *Tx) InsertKeyword(ctx context.Context, textID int64, keyword string) error {
	err := t.exec(ctx, t.store.sb.Insert("keywords").
		Columns("keyword", "id_text").
		Values(keyword, textID))
	if err != nil {
		return fmt.Errorf("inserting keyword %q: %w", keyword, err)
	}
	return nil
}

// FindDocumentByHash returns the oldest committed document with the given
// content hash.
func (t *Tx) FindDocumentByHash(ctx context.Context, hash string) (int64, bool, error) {
	query, args, err := t.store.sb.Select("id_text").
		From("text_files").
		Where(sq.Eq{"content_hash": hash}).
		OrderBy("id_text").
		Limit(1).
		ToSql()
	if err != nil {
		return 0, false, err
	}
	var id int64
	err = t.tx.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("looking up document hash: %w", err)
	}
	return id, true, nil
}
