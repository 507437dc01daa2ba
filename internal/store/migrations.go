package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// SchemaVersion is recorded in the meta table after bootstrap.
const SchemaVersion = 1

// migrate creates all tables if they don't exist, records metadata and seeds
// the closed lookup tables. It is idempotent.
func (s *Store) migrate(ctx context.Context) error {
	if err := s.runBootstrapDDL(ctx); err != nil {
		return err
	}
	if err := s.seedMeta(ctx); err != nil {
		return fmt.Errorf("seeding metadata: %w", err)
	}
	if err := s.seedLookups(ctx); err != nil {
		return fmt.Errorf("seeding lookups: %w", err)
	}
	return nil
}

func (s *Store) runBootstrapDDL(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		// Closed lookups, seeded from the vocabulary
		`CREATE TABLE IF NOT EXISTS sexes (id_sex {{serial}}, sex TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS marital_statuses (id_marital {{serial}}, status TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS education_levels (id_education {{serial}}, level TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS legal_statuses (id_legal {{serial}}, status TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS motives_migration (id_motive {{serial}}, motive TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS travel_methods (id_travel_method {{serial}}, method TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS countries (id_country {{serial}}, country TEXT NOT NULL)`,

		// Open lookups, grown by the pipeline
		`CREATE TABLE IF NOT EXISTS cities (
			id_city    {{serial}},
			city       TEXT NOT NULL,
			id_country {{ref}} REFERENCES countries(id_country)
		)`,
		`CREATE TABLE IF NOT EXISTS occupations (id_occupation {{serial}}, occupation TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS religions (id_religion {{serial}}, religion TEXT NOT NULL)`,

		`CREATE UNIQUE INDEX IF NOT EXISTS idx_sexes_sex ON sexes (LOWER(sex))`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_marital_statuses_status ON marital_statuses (LOWER(status))`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_education_levels_level ON education_levels (LOWER(level))`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_legal_statuses_status ON legal_statuses (LOWER(status))`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_motives_migration_motive ON motives_migration (LOWER(motive))`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_travel_methods_method ON travel_methods (LOWER(method))`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_countries_country ON countries (LOWER(country))`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_cities_city ON cities (LOWER(city), COALESCE(id_country, 0))`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_occupations_occupation ON occupations (LOWER(occupation))`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_religions_religion ON religions (LOWER(religion))`,

		// Entities
		`CREATE TABLE IF NOT EXISTS person_info (
			id_person     {{serial}},
			first_name    TEXT NOT NULL,
			first_surname TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS demographic_info (
			id_demography  {{serial}},
			id_main_person {{ref}} NOT NULL REFERENCES person_info(id_person),
			id_sex         {{ref}} REFERENCES sexes(id_sex),
			id_marital     {{ref}} REFERENCES marital_statuses(id_marital),
			id_education   {{ref}} REFERENCES education_levels(id_education),
			id_legal       {{ref}} REFERENCES legal_statuses(id_legal),
			id_occupation  {{ref}} REFERENCES occupations(id_occupation),
			id_religion    {{ref}} REFERENCES religions(id_religion)
		)`,
		`CREATE TABLE IF NOT EXISTS mention_link (
			id_demography {{ref}} NOT NULL REFERENCES demographic_info(id_demography),
			id_person     {{ref}} NOT NULL REFERENCES person_info(id_person),
			UNIQUE (id_demography, id_person)
		)`,
		`CREATE TABLE IF NOT EXISTS travel_info (
			id_travel           {{serial}},
			departure_date      {{date}},
			destination_city    {{ref}} REFERENCES cities(id_city),
			id_motive_migration {{ref}} REFERENCES motives_migration(id_motive),
			travel_duration     TEXT,
			return_plans        TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS travel_link (
			id_travel        {{ref}} NOT NULL REFERENCES travel_info(id_travel),
			id_travel_method {{ref}} NOT NULL REFERENCES travel_methods(id_travel_method),
			UNIQUE (id_travel, id_travel_method)
		)`,
		`CREATE TABLE IF NOT EXISTS text_files (
			id_text       {{serial}},
			path          TEXT NOT NULL,
			story_title   TEXT NOT NULL,
			story_summary TEXT,
			content_hash  TEXT NOT NULL,
			id_demography {{ref}} NOT NULL REFERENCES demographic_info(id_demography),
			id_travel     {{ref}} REFERENCES travel_info(id_travel),
			created_at    {{timestamp}}
		)`,
		`CREATE TABLE IF NOT EXISTS keywords (
			id_keyword {{serial}},
			keyword    TEXT NOT NULL,
			id_text    {{ref}} NOT NULL REFERENCES text_files(id_text)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_text_files_hash ON text_files (content_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_keywords_text ON keywords (id_text)`,
		`CREATE INDEX IF NOT EXISTS idx_demographic_main_person ON demographic_info (id_main_person)`,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning bootstrap: %w", err)
	}
	defer tx.Rollback()
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, s.dialect.render(stmt)); err != nil {
			return fmt.Errorf("executing bootstrap DDL: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing bootstrap: %w", err)
	}
	return nil
}

func (s *Store) seedMeta(ctx context.Context) error {
	defaults := map[string]string{
		"schema_version": strconv.Itoa(SchemaVersion),
		"created_at":     time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range defaults {
		query, args, err := s.sb.Insert("meta").
			Columns("key", "value").
			Values(k, v).
			Suffix("ON CONFLICT (key) DO NOTHING").
			ToSql()
		if err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("seeding meta key %q: %w", k, err)
		}
	}
	return nil
}

// Meta returns a metadata value.
func (s *Store) Meta(ctx context.Context, key string) (string, error) {
	query, args, err := s.sb.Select("value").From("meta").Where("key = ?", key).ToSql()
	if err != nil {
		return "", err
	}
	var value string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading meta %q: %w", key, err)
	}
	return value, nil
}

// seedLookups inserts every missing canonical value of the closed lookups.
func (s *Store) seedLookups(ctx context.Context) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	inserted := 0
	for _, c := range Categories() {
		if c.Policy != Closed {
			continue
		}
		for _, value := range s.seeds[c.Name] {
			created, err := tx.ensure(ctx, c, value)
			if err != nil {
				return fmt.Errorf("seeding %s %q: %w", c.Table, value, err)
			}
			if created {
				inserted++
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	if inserted > 0 {
		s.logger.Info("seeded closed vocabularies", "rows", inserted)
	}
	return nil
}
