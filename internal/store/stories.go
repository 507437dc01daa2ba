package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Story is a committed document joined through its profiles to the display
// text of every lookup.
type Story struct {
	ID            int64    `yaml:"id"`
	Path          string   `yaml:"path"`
	Title         string   `yaml:"title"`
	Summary       string   `yaml:"summary,omitempty"`
	CreatedAt     string   `yaml:"created_at"`
	GivenName     string   `yaml:"given_name"`
	FamilyName    string   `yaml:"family_name,omitempty"`
	Sex           string   `yaml:"sex,omitempty"`
	MaritalStatus string   `yaml:"marital_status,omitempty"`
	Education     string   `yaml:"education,omitempty"`
	LegalStatus   string   `yaml:"legal_status,omitempty"`
	Occupation    string   `yaml:"occupation,omitempty"`
	Religion      string   `yaml:"religion,omitempty"`
	DepartureDate string   `yaml:"departure_date,omitempty"`
	Destination   string   `yaml:"destination,omitempty"`
	Country       string   `yaml:"country,omitempty"`
	Motive        string   `yaml:"motive,omitempty"`
	Duration      string   `yaml:"duration,omitempty"`
	ReturnPlans   string   `yaml:"return_plans,omitempty"`
	Mentions      []string `yaml:"mentions,omitempty"`
	TravelMethods []string `yaml:"travel_methods,omitempty"`
	Keywords      []string `yaml:"keywords,omitempty"`
}

// MainPerson is the interviewee's full name.
func (s Story) MainPerson() string {
	return strings.TrimSpace(s.GivenName + " " + s.FamilyName)
}

func (s *Store) storySelect() sq.SelectBuilder {
	return s.sb.Select(
		"t.id_text", "t.path", "t.story_title", "COALESCE(t.story_summary, '')",
		"CAST(t.created_at AS TEXT)",
		"p.first_name", "COALESCE(p.first_surname, '')",
		"COALESCE(sx.sex, '')", "COALESCE(ms.status, '')", "COALESCE(ed.level, '')",
		"COALESCE(ls.status, '')", "COALESCE(oc.occupation, '')", "COALESCE(re.religion, '')",
		"COALESCE(CAST(tr.departure_date AS TEXT), '')", "COALESCE(ci.city, '')",
		"COALESCE(co.country, '')", "COALESCE(mo.motive, '')",
		"COALESCE(tr.travel_duration, '')", "COALESCE(tr.return_plans, '')",
	).
		From("text_files t").
		Join("demographic_info d ON d.id_demography = t.id_demography").
		Join("person_info p ON p.id_person = d.id_main_person").
		LeftJoin("sexes sx ON sx.id_sex = d.id_sex").
		LeftJoin("marital_statuses ms ON ms.id_marital = d.id_marital").
		LeftJoin("education_levels ed ON ed.id_education = d.id_education").
		LeftJoin("legal_statuses ls ON ls.id_legal = d.id_legal").
		LeftJoin("occupations oc ON oc.id_occupation = d.id_occupation").
		LeftJoin("religions re ON re.id_religion = d.id_religion").
		LeftJoin("travel_info tr ON tr.id_travel = t.id_travel").
		LeftJoin("cities ci ON ci.id_city = tr.destination_city").
		LeftJoin("countries co ON co.id_country = ci.id_country").
		LeftJoin("motives_migration mo ON mo.id_motive = tr.id_motive_migration")
}

func scanStory(row interface{ Scan(...any) error }) (Story, error) {
	var st Story
	err := row.Scan(
		&st.ID, &st.Path, &st.Title, &st.Summary, &st.CreatedAt,
		&st.GivenName, &st.FamilyName,
		&st.Sex, &st.MaritalStatus, &st.Education,
		&st.LegalStatus, &st.Occupation, &st.Religion,
		&st.DepartureDate, &st.Destination,
		&st.Country, &st.Motive,
		&st.Duration, &st.ReturnPlans,
	)
	return st, err
}

// GetStory loads one document with its aggregated mentions, travel methods and
// keywords.
func (s *Store) GetStory(ctx context.Context, id int64) (*Story, error) {
	query, args, err := s.storySelect().Where(sq.Eq{"t.id_text": id}).ToSql()
	if err != nil {
		return nil, err
	}
	st, err := scanStory(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("story %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading story %d: %w", id, err)
	}
	if err := s.loadAggregates(ctx, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// ListStories returns the most recent stories first, aggregates included.
func (s *Store) ListStories(ctx context.Context, limit int) ([]Story, error) {
	b := s.storySelect().OrderBy("t.id_text DESC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing stories: %w", err)
	}
	var stories []Story
	for rows.Next() {
		st, err := scanStory(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning story: %w", err)
		}
		stories = append(stories, st)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range stories {
		if err := s.loadAggregates(ctx, &stories[i]); err != nil {
			return nil, err
		}
	}
	return stories, nil
}

func (s *Store) loadAggregates(ctx context.Context, st *Story) error {
	var err error
	st.Mentions, err = s.queryStrings(ctx, s.sb.
		Select("TRIM(p.first_name || ' ' || COALESCE(p.first_surname, ''))").
		From("mention_link m").
		Join("person_info p ON p.id_person = m.id_person").
		Join("text_files t ON t.id_demography = m.id_demography").
		Where(sq.Eq{"t.id_text": st.ID}).
		OrderBy("p.id_person"))
	if err != nil {
		return fmt.Errorf("loading mentions: %w", err)
	}
	st.TravelMethods, err = s.queryStrings(ctx, s.sb.
		Select("tm.method").
		From("travel_link l").
		Join("travel_methods tm ON tm.id_travel_method = l.id_travel_method").
		Join("text_files t ON t.id_travel = l.id_travel").
		Where(sq.Eq{"t.id_text": st.ID}).
		OrderBy("tm.id_travel_method"))
	if err != nil {
		return fmt.Errorf("loading travel methods: %w", err)
	}
	st.Keywords, err = s.queryStrings(ctx, s.sb.
		Select("keyword").
		From("keywords").
		Where(sq.Eq{"id_text": st.ID}).
		OrderBy("id_keyword"))
	if err != nil {
		return fmt.Errorf("loading keywords: %w", err)
	}
	return nil
}

func (s *Store) queryStrings(ctx context.Context, b sq.SelectBuilder) ([]string, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Count is a labelled row count.
type Count struct {
	Label string
	N     int64
}

// Stats summarizes the committed corpus.
type Stats struct {
	Tables       []Count
	Keywords     []Count
	Departures   []Count
	Destinations []Count
}

// StatTables lists the tables counted by Stats, in display order.
var StatTables = []string{
	"text_files", "person_info", "demographic_info", "mention_link",
	"travel_info", "travel_link", "keywords", "cities", "occupations", "religions",
}

// Stats counts rows per table and ranks keywords, departure years and
// destination cities. top bounds each ranking.
func (s *Store) Stats(ctx context.Context, top int) (*Stats, error) {
	if top <= 0 {
		top = 10
	}
	st := &Stats{}
	for _, table := range StatTables {
		n, err := s.CountRows(ctx, table)
		if err != nil {
			return nil, err
		}
		st.Tables = append(st.Tables, Count{Label: table, N: n})
	}

	var err error
	st.Keywords, err = s.counts(ctx, s.sb.
		Select("keyword", "COUNT(*)").
		From("keywords").
		GroupBy("keyword").
		OrderBy("COUNT(*) DESC", "keyword").
		Limit(uint64(top)))
	if err != nil {
		return nil, fmt.Errorf("ranking keywords: %w", err)
	}
	st.Departures, err = s.counts(ctx, s.sb.
		Select("SUBSTR(CAST(departure_date AS TEXT), 1, 4) AS year", "COUNT(*)").
		From("travel_info").
		Where("departure_date IS NOT NULL").
		GroupBy("year").
		OrderBy("year").
		Limit(uint64(top)))
	if err != nil {
		return nil, fmt.Errorf("ranking departures: %w", err)
	}
	st.Destinations, err = s.counts(ctx, s.sb.
		Select("ci.city", "COUNT(*)").
		From("travel_info tr").
		Join("cities ci ON ci.id_city = tr.destination_city").
		GroupBy("ci.city").
		OrderBy("COUNT(*) DESC", "ci.city").
		Limit(uint64(top)))
	if err != nil {
		return nil, fmt.Errorf("ranking destinations: %w", err)
	}
	return st, nil
}

func (s *Store) counts(ctx context.Context, b sq.SelectBuilder) ([]Count, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Count
	for rows.Next() {
		var c Count
		if err := rows.Scan(&c.Label, &c.N); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountRows counts the rows of one schema table.
func (s *Store) CountRows(ctx context.Context, table string) (int64, error) {
	if !knownTable(table) {
		return 0, fmt.Errorf("unknown table %q", table)
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s: %w", table, err)
	}
	return n, nil
}

func knownTable(table string) bool {
	for _, t := range StatTables {
		if t == table {
			return true
		}
	}
	for _, c := range Categories() {
		if c.Table == table {
			return true
		}
	}
	return false
}
