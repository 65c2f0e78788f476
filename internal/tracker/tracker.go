// Package tracker owns IndexRun rows: it opens a run, closes it with final
// counts and store size, and reports run history, errors and index health.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/docindex-mcp/internal/storage"
)

// Tracker records per-root run statistics
type Tracker struct {
	storage storage.Storage
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Tracker
type Option func(*Tracker)

// WithLogger sets the tracker's logger
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// New creates a Tracker over store
func New(store storage.Storage, opts ...Option) *Tracker {
	t := &Tracker{
		storage: store,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// BeginRun overwrites the row for path with an in-progress run over total files
func (t *Tracker) BeginRun(ctx context.Context, path string, total int) (*storage.IndexRun, error) {
	now := t.now()
	run := &storage.IndexRun{
		Path:       path,
		TotalFiles: total,
		CreatedAt:  now,
		UpdatedAt:  now,
		Status:     storage.RunInProgress,
	}
	if err := t.storage.UpsertRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to begin run: %w", err)
	}
	t.logger.Debug("run started", "path", path, "total_files", total)
	return run, nil
}

// CompleteRun marks the run for path complete with its final counts and the
// current store size. The row's creation time is kept.
func (t *Tracker) CompleteRun(ctx context.Context, path string, success, failed int) (*storage.IndexRun, error) {
	now := t.now()
	run, err := t.storage.GetRun(ctx, path)
	if errors.Is(err, storage.ErrNotFound) {
		run = &storage.IndexRun{Path: path, TotalFiles: success + failed, CreatedAt: now}
	} else if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}

	size, err := t.storage.SizeBytes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute index size: %w", err)
	}

	run.SuccessCount = success
	run.ErrorCount = failed
	run.IndexSizeBytes = size
	run.UpdatedAt = now
	run.Status = storage.RunComplete
	if err := t.storage.UpsertRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to complete run: %w", err)
	}
	t.logger.Debug("run completed", "path", path, "success", success, "errors", failed, "size_bytes", size)
	return run, nil
}

// Run returns the row for path
func (t *Tracker) Run(ctx context.Context, path string) (*storage.IndexRun, error) {
	return t.storage.GetRun(ctx, path)
}

// Runs returns every run, most recently updated first
func (t *Tracker) Runs(ctx context.Context) ([]*storage.IndexRun, error) {
	return t.storage.ListRuns(ctx)
}

// Errors returns extraction failures, most recent first
func (t *Tracker) Errors(ctx context.Context) ([]*storage.ErrorRecord, error) {
	return t.storage.ListErrors(ctx)
}

// IndexSize approximates the store's on-disk size in bytes
func (t *Tracker) IndexSize(ctx context.Context) (int64, error) {
	return t.storage.SizeBytes(ctx)
}

// StaleRuns returns runs still marked in progress. Called at startup these
// are runs that did not finish, not concurrent activity.
func (t *Tracker) StaleRuns(ctx context.Context) ([]*storage.IndexRun, error) {
	runs, err := t.storage.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	stale := make([]*storage.IndexRun, 0)
	for _, run := range runs {
		if run.Status == storage.RunInProgress {
			stale = append(stale, run)
		}
	}
	return stale, nil
}

// Overview is a snapshot of everything the tracker reports
type Overview struct {
	Runs      []*storage.IndexRun
	Errors    []*storage.ErrorRecord
	SizeBytes int64
	Sync      *storage.SyncReport
}

// Overview loads runs, errors, size and sync health concurrently
func (t *Tracker) Overview(ctx context.Context) (*Overview, error) {
	ov := &Overview{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		runs, err := t.storage.ListRuns(gctx)
		if err != nil {
			return fmt.Errorf("list runs: %w", err)
		}
		ov.Runs = runs
		return nil
	})
	g.Go(func() error {
		errs, err := t.storage.ListErrors(gctx)
		if err != nil {
			return fmt.Errorf("list errors: %w", err)
		}
		ov.Errors = errs
		return nil
	})
	g.Go(func() error {
		size, err := t.storage.SizeBytes(gctx)
		if err != nil {
			return fmt.Errorf("index size: %w", err)
		}
		ov.SizeBytes = size
		return nil
	})
	g.Go(func() error {
		report, err := t.storage.CheckSync(gctx)
		if err != nil {
			return fmt.Errorf("check sync: %w", err)
		}
		ov.Sync = report
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ov, nil
}
