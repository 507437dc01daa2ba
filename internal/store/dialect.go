package store

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Dialect captures the differences between the supported SQL engines. DML is
// shared and built with squirrel; only placeholders and a few DDL column types
// vary.
type Dialect struct {
	Name        string
	driver      string
	placeholder sq.PlaceholderFormat
	ddl         *strings.Replacer
}

// SQLite is the default engine (modernc.org/sqlite, pure Go).
var SQLite = Dialect{
	Name:        "sqlite",
	driver:      "sqlite",
	placeholder: sq.Question,
	ddl: strings.NewReplacer(
		"{{serial}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
		"{{ref}}", "INTEGER",
		"{{date}}", "TEXT",
		"{{timestamp}}", "TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP",
	),
}

// Postgres is the production engine (github.com/lib/pq).
var Postgres = Dialect{
	Name:        "postgres",
	driver:      "postgres",
	placeholder: sq.Dollar,
	ddl: strings.NewReplacer(
		"{{serial}}", "BIGSERIAL PRIMARY KEY",
		"{{ref}}", "BIGINT",
		"{{date}}", "DATE",
		"{{timestamp}}", "TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP",
	),
}

// DialectFor maps a configured driver name to its dialect.
func DialectFor(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	}
	return Dialect{}, fmt.Errorf("unsupported database driver %q (want sqlite or postgres)", name)
}

func (d Dialect) builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(d.placeholder)
}

func (d Dialect) render(stmt string) string {
	return d.ddl.Replace(stmt)
}
