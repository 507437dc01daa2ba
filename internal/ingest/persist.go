package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/joe-chic/house-of-emmigrants/internal/extract"
	"github.com/joe-chic/house-of-emmigrants/internal/normalize"
	"github.com/joe-chic/house-of-emmigrants/internal/store"
)

// UnknownPerson is the given name recorded when a document names nobody. The
// demographic profile always needs a main person.
const UnknownPerson = "Unknown"

// DefaultDocumentTimeout bounds one document's transaction.
const DefaultDocumentTimeout = 30 * time.Second

var (
	// ErrMandatoryWrite marks a failed person, demographic or document insert.
	ErrMandatoryWrite = errors.New("mandatory write failed")
	// ErrTimeout marks a document that ran past its timeout.
	ErrTimeout = errors.New("document timed out")
)

// Stage is a step of the per-document write sequence.
type Stage int

const (
	StageStart Stage = iota
	StagePersonMain
	StageDemographic
	StageMentions
	StageTravel
	StageTravelMethods
	StageDocument
	StageKeywords
	StageCommit
)

var stageNames = [...]string{
	StageStart:         "start",
	StagePersonMain:    "person_main_inserted",
	StageDemographic:   "demographic_inserted",
	StageMentions:      "mentions_linked",
	StageTravel:        "travel_inserted",
	StageTravelMethods: "travel_methods_linked",
	StageDocument:      "document_record_inserted",
	StageKeywords:      "keywords_linked",
	StageCommit:        "commit",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// DocumentError reports why a document was rolled back and the stage it was
// in when it failed.
type DocumentError struct {
	Path  string
	Stage Stage
	Err   error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("document %s failed at %s: %v", e.Path, e.Stage, e.Err)
}

func (e *DocumentError) Unwrap() error { return e.Err }

// Persisted describes a committed (or skipped duplicate) document.
type Persisted struct {
	TextID        int64
	PersonID      int64
	DemographicID int64
	// TravelID is zero when no travel profile was written.
	TravelID  int64
	Mentions  int
	Methods   int
	Keywords  int
	Duplicate bool
	// SkippedLinks counts optional writes that failed and were dropped.
	SkippedLinks int
	// Unresolved lists closed-vocabulary values with no matching row.
	Unresolved []string
}

// PersistOptions configures an Orchestrator.
type PersistOptions struct {
	// SkipDuplicates skips documents whose path and content were already
	// committed. Off by default: reprocessing writes new rows.
	SkipDuplicates bool
	// Timeout bounds each document. Zero disables the bound.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Orchestrator writes one candidate bag per transaction.
type Orchestrator struct {
	store          *store.Store
	skipDuplicates bool
	timeout        time.Duration
	logger         *slog.Logger
}

// NewOrchestrator creates an orchestrator over an open store.
func NewOrchestrator(s *store.Store, opts PersistOptions) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Orchestrator{
		store:          s,
		skipDuplicates: opts.SkipDuplicates,
		timeout:        opts.Timeout,
		logger:         logger,
	}
}

// WithLogger returns a copy that logs to logger.
func (o *Orchestrator) WithLogger(logger *slog.Logger) *Orchestrator {
	if logger == nil {
		return o
	}
	c := *o
	c.logger = logger
	return &c
}

// Persist writes c inside one transaction. content is the transcript text the
// bag was extracted from; it feeds the duplicate hash. On error nothing the
// document wrote survives and the error is a *DocumentError.
func (o *Orchestrator) Persist(ctx context.Context, c *extract.Candidates, content string) (res *Persisted, err error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	logger := o.logger.With("path", c.Path)
	stage := StageStart
	fail := func(e error) error {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			e = fmt.Errorf("%w: %w", ErrTimeout, e)
		}
		return &DocumentError{Path: c.Path, Stage: stage, Err: e}
	}

	tx, err := o.store.Begin(ctx)
	if err != nil {
		return nil, fail(err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.Error("rollback failed", "error", rbErr)
			}
		}
	}()

	hash := store.ContentHash(c.Path, content)
	if o.skipDuplicates {
		id, found, lookupErr := tx.FindDocumentByHash(ctx, hash)
		if lookupErr != nil {
			return nil, fail(lookupErr)
		}
		if found {
			logger.Info("skipping duplicate document", "text_id", id)
			return &Persisted{TextID: id, Duplicate: true}, tx.Rollback()
		}
	}

	res = &Persisted{}
	w := &docWriter{tx: tx, res: res, logger: logger}

	// Main person.
	stage = StagePersonMain
	mainName := c.MainName
	if mainName.Given == "" {
		logger.Warn("no main person found, recording placeholder", "given", UnknownPerson)
		mainName = normalize.Name{Given: UnknownPerson}
	}
	if res.PersonID, err = tx.InsertPerson(ctx, mainName.Given, mainName.Family); err != nil {
		return nil, fail(fmt.Errorf("%w: %w", ErrMandatoryWrite, err))
	}

	// Demographic profile.
	stage = StageDemographic
	demo := store.Demographic{MainPerson: res.PersonID}
	lookups := []struct {
		dst   *sql.NullInt64
		cat   store.Category
		value string
	}{
		{&demo.Sex, store.Sexes, c.Sex},
		{&demo.Marital, store.MaritalStatuses, c.MaritalStatus},
		{&demo.Education, store.EducationLevels, c.Education},
		{&demo.Legal, store.LegalStatuses, c.LegalStatus},
		{&demo.Occupation, store.Occupations, c.Occupation},
		{&demo.Religion, store.Religions, c.Religion},
	}
	for _, l := range lookups {
		if *l.dst, err = w.lookup(ctx, l.cat, l.value); err != nil {
			return nil, fail(err)
		}
	}
	if res.DemographicID, err = tx.InsertDemographic(ctx, demo); err != nil {
		return nil, fail(fmt.Errorf("%w: %w", ErrMandatoryWrite, err))
	}

	stage = StageMentions
	for _, name := range c.Mentions {
		parts := normalize.NameParts(name)
		w.optional(ctx, "mention", name, func() error {
			id, err := tx.InsertPerson(ctx, parts.Given, parts.Family)
			if err != nil {
				return err
			}
			return tx.LinkMention(ctx, res.DemographicID, id)
		}, &res.Mentions)
	}

	travelID := sql.NullInt64{}
	if c.HasTravel() {
		stage = StageTravel
		tr, lookupErr := w.travel(ctx, c)
		if lookupErr != nil {
			return nil, fail(lookupErr)
		}
		var wrote int
		w.optional(ctx, "travel profile", c.Path, func() error {
			id, err := tx.InsertTravel(ctx, tr)
			if err != nil {
				return err
			}
			travelID = store.NullID(id, true)
			return nil
		}, &wrote)

		if travelID.Valid {
			stage = StageTravelMethods
			res.TravelID = travelID.Int64
			for _, method := range c.TravelMethods {
				id, found, lookupErr := tx.Resolve(ctx, store.TravelMethods, method)
				if lookupErr != nil {
					return nil, fail(lookupErr)
				}
				if !found {
					w.unresolved(store.TravelMethods, method)
					continue
				}
				w.optional(ctx, "travel method", method, func() error {
					return tx.LinkTravelMethod(ctx, travelID.Int64, id)
				}, &res.Methods)
			}
		}
	}

	stage = StageDocument
	res.TextID, err = tx.InsertDocument(ctx, store.Document{
		Path:          c.Path,
		Title:         c.Title,
		Summary:       c.Summary,
		ContentHash:   hash,
		DemographicID: res.DemographicID,
		TravelID:      travelID,
	})
	if err != nil {
		return nil, fail(fmt.Errorf("%w: %w", ErrMandatoryWrite, err))
	}

	stage = StageKeywords
	for _, kw := range c.Keywords {
		w.optional(ctx, "keyword", kw, func() error {
			return tx.InsertKeyword(ctx, res.TextID, kw)
		}, &res.Keywords)
	}

	stage = StageCommit
	if err = ctx.Err(); err != nil {
		return nil, fail(err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fail(err)
	}
	logger.Info("document committed",
		"text_id", res.TextID,
		"mentions", res.Mentions,
		"travel_methods", res.Methods,
		"keywords", res.Keywords,
		"skipped_links", res.SkippedLinks,
	)
	return res, nil
}

// docWriter holds the per-document state shared by the write steps.
type docWriter struct {
	tx     *store.Tx
	res    *Persisted
	logger *slog.Logger
}

// lookup resolves an optional category value. Closed misses are logged and
// stored as NULL; database errors are returned.
func (w *docWriter) lookup(ctx context.Context, c store.Category, value string) (sql.NullInt64, error) {
	if value == "" {
		return sql.NullInt64{}, nil
	}
	id, found, err := w.tx.Resolve(ctx, c, value)
	if err != nil {
		return sql.NullInt64{}, err
	}
	if !found {
		w.unresolved(c, value)
	}
	return store.NullID(id, found), nil
}

func (w *docWriter) unresolved(c store.Category, value string) {
	w.logger.Warn("value not in closed vocabulary", "category", c.Name, "value", value)
	w.res.Unresolved = append(w.res.Unresolved, c.Name+"="+value)
}

func (w *docWriter) travel(ctx context.Context, c *extract.Candidates) (store.Travel, error) {
	tr := store.Travel{
		DepartureDate: store.NullString(c.DepartureDate),
		Duration:      store.NullString(c.Duration),
		ReturnPlans:   store.NullString(c.ReturnPlans),
	}
	var err error
	if tr.Motive, err = w.lookup(ctx, store.Motives, c.Motive); err != nil {
		return tr, err
	}
	if c.Destination == "" {
		return tr, nil
	}
	country, err := w.lookup(ctx, store.Countries, c.Country)
	if err != nil {
		return tr, err
	}
	id, ok, err := w.tx.ResolveCity(ctx, c.Destination, country)
	if err != nil {
		return tr, err
	}
	tr.DestinationCity = store.NullID(id, ok)
	return tr, nil
}

// optional runs one best-effort write under a savepoint. A failure is logged
// and counted; the document carries on.
func (w *docWriter) optional(ctx context.Context, what, value string, fn func() error, written *int) {
	if err := w.tx.Savepoint(ctx, fn); err != nil {
		w.logger.Warn("skipping optional write", "write", what, "value", value, "error", err)
		w.res.SkippedLinks++
		return
	}
	*written++
}
