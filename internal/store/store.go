// Package store provides the relational storage layer for extracted interview
// records.
//
// One canonical schema is supported on two engines:
// - SQLite via modernc.org/sqlite (default, used by tests)
// - PostgreSQL via github.com/lib/pq
//
// Lookup tables hold canonical lowercase category text; entity tables hold the
// persons, demographic and travel profiles, documents and keywords written by
// the ingest pipeline, one transaction per document.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// DefaultDBPath is the default SQLite database location.
const DefaultDBPath = "data/emigrants.db"

// DefaultCacheSize bounds the closed-vocabulary lookup cache.
const DefaultCacheSize = 512

// ErrNotFound is returned by read methods when a row does not exist.
var ErrNotFound = errors.New("not found")

// Config configures a Store.
type Config struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver string
	// DBPath is the SQLite file, or ":memory:".
	DBPath string
	// URL is the PostgreSQL connection URL.
	URL string
	// Seeds lists the canonical values of each closed lookup, keyed by
	// category name. They are inserted at migration time.
	Seeds     map[string][]string
	CacheSize int
	Logger    *slog.Logger
}

type cacheKey struct {
	table string
	value string
}

// Store is an open, migrated database.
type Store struct {
	db      *sql.DB
	dialect Dialect
	sb      sq.StatementBuilderType
	cache   *lru.Cache[cacheKey, int64]
	seeds   map[string][]string
	logger  *slog.Logger
}

// New opens the configured database and applies migrations.
func New(ctx context.Context, cfg Config) (*Store, error) {
	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var db *sql.DB
	switch dialect.Name {
	case SQLite.Name:
		db, err = openSQLite(ctx, cfg.DBPath)
	case Postgres.Name:
		db, err = openPostgres(ctx, cfg.URL)
	}
	if err != nil {
		return nil, err
	}

	cache, err := lru.New[cacheKey, int64](cfg.CacheSize)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating lookup cache: %w", err)
	}

	s := &Store{
		db:      db,
		dialect: dialect,
		sb:      dialect.builder(),
		cache:   cache,
		seeds:   cfg.Seeds,
		logger:  logger,
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func openSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		path = DefaultDBPath
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open(SQLite.driver, path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer, and an in-memory database must stay on a single connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}
	return db, nil
}

func openPostgres(ctx context.Context, url string) (*sql.DB, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("postgres driver selected but no database URL configured")
	}
	db, err := sql.Open(Postgres.driver, url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for maintenance and tests.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect reports the engine in use.
func (s *Store) Dialect() Dialect { return s.dialect }

// Tx is one document's unit of work.
type Tx struct {
	tx         *sql.Tx
	store      *Store
	savepoints int
}

// Begin starts a transaction bound to ctx. Cancelling ctx rolls it back.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return &Tx{tx: tx, store: s}, nil
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Rollback aborts the transaction. Rolling back a finished transaction is a
// no-op.
func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rolling back transaction: %w", err)
	}
	return nil
}

// Savepoint runs fn under a savepoint. When fn fails only its own statements
// are undone and the transaction stays usable; fn's error is returned.
func (t *Tx) Savepoint(ctx context.Context, fn func() error) error {
	t.savepoints++
	name := fmt.Sprintf("sp_%d", t.savepoints)
	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("creating savepoint: %w", err)
	}
	if err := fn(); err != nil {
		if _, rbErr := t.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rolling back savepoint: %w", rbErr))
		}
		return err
	}
	if _, err := t.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("releasing savepoint: %w", err)
	}
	return nil
}

func (t *Tx) insertReturning(ctx context.Context, b sq.InsertBuilder) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("building insert: %w", err)
	}
	var id int64
	if err := t.tx.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (t *Tx) exec(ctx context.Context, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("building statement: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, query, args...)
	return err
}
