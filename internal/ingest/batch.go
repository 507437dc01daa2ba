package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/facette/natsort"
	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/joe-chic/house-of-emmigrants/internal/extract"
)

// DefaultTextDir is where transcripts are read from when no directory is
// given.
const DefaultTextDir = "multimedia/text"

// ErrLocked is returned when another run holds the run lock.
var ErrLocked = errors.New("another ingest run holds the lock")

// DefaultLockPath is the run lock used when none is configured: one file per
// transcript directory under the system temp dir, so a read-only source tree
// can still be ingested.
func DefaultLockPath(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	sum := sha256.Sum256([]byte(abs))
	return filepath.Join(os.TempDir(), "emigrants-"+hex.EncodeToString(sum[:8])+".lock")
}

// Status is the outcome of one file.
type Status string

const (
	StatusCommitted Status = "committed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	StatusDuplicate Status = "duplicate"
)

// FileResult is the outcome of one file in a run.
type FileResult struct {
	Path     string
	Status   Status
	TextID   int64
	Duration time.Duration
	Err      error
	// Persisted is nil unless the document was committed or was a duplicate.
	Persisted *Persisted
}

// BatchResult summarizes a run.
type BatchResult struct {
	RunID      string
	Dir        string
	Processed  int
	Committed  int
	Failed     int
	Skipped    int
	Duplicates int
	Files      []FileResult
	Elapsed    time.Duration
}

func (r *BatchResult) add(f FileResult) {
	r.Files = append(r.Files, f)
	switch f.Status {
	case StatusSkipped:
		r.Skipped++
		return
	case StatusCommitted:
		r.Committed++
	case StatusFailed:
		r.Failed++
	case StatusDuplicate:
		r.Duplicates++
	}
	r.Processed++
}

// Driver runs the pipeline over files, serially.
type Driver struct {
	engine   *extract.Engine
	orch     *Orchestrator
	logger   *slog.Logger
	lockPath string
	now      func() time.Time
}

// NewDriver wires an extraction engine to an orchestrator.
func NewDriver(engine *extract.Engine, orch *Orchestrator, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Driver{engine: engine, orch: orch, logger: logger, now: time.Now}
}

// WithLockPath returns a copy that serializes runs on the lock file at path.
// An empty path means DefaultLockPath of the directory being run.
func (d *Driver) WithLockPath(path string) *Driver {
	c := *d
	c.lockPath = path
	return &c
}

// Run processes every .txt file in dir in natural name order. Per-file
// failures are recorded in the result; only listing or locking the directory
// fails the run.
func (d *Driver) Run(ctx context.Context, dir string) (*BatchResult, error) {
	if dir == "" {
		dir = DefaultTextDir
	}
	res := &BatchResult{RunID: uuid.NewString(), Dir: dir}
	logger := d.logger.With("run_id", res.RunID)
	start := d.now()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	lockPath := d.lockPath
	if lockPath == "" {
		lockPath = DefaultLockPath(dir)
	}
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", lockPath, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, lockPath)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release run lock", "lock", lockPath, "error", err)
		}
	}()

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	natsort.Sort(names)

	logger.Info("ingest run started", "dir", dir, "files", len(names))
	engine := d.engine.WithLogger(logger)
	orch := d.orch.WithLogger(logger)
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			logger.Warn("ingest run interrupted", "error", err)
			break
		}
		path := filepath.Join(dir, name)
		if !isTranscript(name) {
			logger.Info("skipping non-transcript file", "path", path)
			res.add(FileResult{Path: path, Status: StatusSkipped})
			continue
		}
		res.add(processFile(ctx, engine, orch, logger, path))
	}

	res.Elapsed = d.now().Sub(start)
	logger.Info("ingest run finished",
		"processed", res.Processed,
		"committed", res.Committed,
		"failed", res.Failed,
		"skipped", res.Skipped,
		"duplicates", res.Duplicates,
		"elapsed", res.Elapsed.String(),
	)
	return res, nil
}

// ProcessFile runs one transcript through the pipeline outside of a batch.
func (d *Driver) ProcessFile(ctx context.Context, path string) FileResult {
	logger := d.logger.With("run_id", uuid.NewString())
	if !isTranscript(path) {
		logger.Info("skipping non-transcript file", "path", path)
		return FileResult{Path: path, Status: StatusSkipped}
	}
	return processFile(ctx, d.engine.WithLogger(logger), d.orch.WithLogger(logger), logger, path)
}

func processFile(ctx context.Context, engine *extract.Engine, orch *Orchestrator, logger *slog.Logger, path string) FileResult {
	started := time.Now()
	fr := FileResult{Path: path}

	content, err := ReadTranscript(path)
	if err != nil {
		logger.Error("failed to read transcript", "path", path, "error", err)
		fr.Status, fr.Err = StatusFailed, err
		fr.Duration = time.Since(started)
		return fr
	}

	bag := engine.ExtractDocument(path, content)
	p, err := orch.Persist(ctx, bag, content)
	fr.Duration = time.Since(started)
	if err != nil {
		logger.Error("document failed", "path", path, "error", err)
		fr.Status, fr.Err = StatusFailed, err
		return fr
	}
	fr.Persisted = p
	fr.TextID = p.TextID
	if p.Duplicate {
		fr.Status = StatusDuplicate
	} else {
		fr.Status = StatusCommitted
	}
	return fr
}
