package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"time"

	"github.com/dshills/docindex-mcp/internal/extract"
	"github.com/dshills/docindex-mcp/internal/metrics"
	"github.com/dshills/docindex-mcp/internal/storage"
	"github.com/dshills/docindex-mcp/internal/tracker"
)

var (
	// ErrRootUnavailable is returned when the root directory cannot be opened
	// or listed. No rows are written and no progress is reported.
	ErrRootUnavailable = errors.New("root directory unavailable")

	// ErrIndexingInProgress is returned when a run is requested while
	// another run on the same Indexer is active
	ErrIndexingInProgress = errors.New("indexing already in progress")
)

// Phase is the pipeline state reported on progress events
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseEnumerating
	PhaseProcessing
	PhaseFinalizing
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseEnumerating:
		return "enumerating"
	case PhaseProcessing:
		return "processing"
	case PhaseFinalizing:
		return "finalizing"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// Progress is one pipeline event. During PhaseProcessing, Processed counts
// files attempted so far and File names the file just finished.
type Progress struct {
	Phase     Phase
	Processed int
	Total     int
	File      string
}

// ProgressFunc receives (processed, total) once before the first file and
// once after every file. It runs on the pipeline goroutine.
type ProgressFunc func(processed, total int)

// Stats summarises a finished run
type Stats struct {
	RunPath        string
	TotalFiles     int
	Succeeded      int
	Failed         int
	IndexSizeBytes int64
	Duration       time.Duration
}

// Classification labels why a file could not be indexed
type Classification string

const (
	NotFound          Classification = "not_found"
	PermissionDenied  Classification = "permission_denied"
	ExtractionFailure Classification = "extraction_failure"
)

// Classify maps a per-file failure to its label. Unrecognised failures
// are extraction failures.
func Classify(err error) Classification {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return NotFound
	case errors.Is(err, fs.ErrPermission):
		return PermissionDenied
	default:
		return ExtractionFailure
	}
}

// Indexer coordinates the indexing pipeline: enumerate -> extract -> store
type Indexer struct {
	storage    storage.Storage
	dispatcher *extract.Dispatcher
	tracker    *tracker.Tracker
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time

	lock IndexLock
}

// Option configures an Indexer
type Option func(*Indexer)

// WithDispatcher replaces the default extension to reader mapping
func WithDispatcher(d *extract.Dispatcher) Option {
	return func(idx *Indexer) {
		if d != nil {
			idx.dispatcher = d
		}
	}
}

// WithTracker replaces the run tracker built over the indexer's storage
func WithTracker(t *tracker.Tracker) Option {
	return func(idx *Indexer) {
		idx.tracker = t
	}
}

// WithMetrics records file and run outcomes on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(idx *Indexer) {
		idx.metrics = m
	}
}

// WithLogger sets the indexer's logger
func WithLogger(logger *slog.Logger) Option {
	return func(idx *Indexer) {
		if logger != nil {
			idx.logger = logger
		}
	}
}

// WithClock replaces time.Now for record timestamps
func WithClock(now func() time.Time) Option {
	return func(idx *Indexer) {
		if now != nil {
			idx.now = now
		}
	}
}

// New creates an Indexer writing to store
func New(store storage.Storage, opts ...Option) *Indexer {
	idx := &Indexer{
		storage: store,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(idx)
	}
	if idx.dispatcher == nil {
		idx.dispatcher = extract.NewDispatcher()
	}
	if idx.tracker == nil {
		idx.tracker = tracker.New(store, tracker.WithLogger(idx.logger), tracker.WithClock(idx.now))
	}
	return idx
}

// Run indexes root synchronously. exts is the extension allow-list; an
// empty list selects every file. progress may be nil.
func (idx *Indexer) Run(ctx context.Context, root Root, exts []string, progress ProgressFunc) (*Stats, error) {
	if !idx.lock.TryAcquire() {
		idx.metrics.ObserveRun(metrics.RunRejected, 0)
		return nil, ErrIndexingInProgress
	}
	defer idx.lock.Release()

	return idx.run(ctx, root, exts, func(p Progress) {
		if progress != nil && p.Phase == PhaseProcessing {
			progress(p.Processed, p.Total)
		}
	})
}

// fileEntry is a selected file, addressed by its slash path under the root
type fileEntry struct {
	rel  string
	name string
	ext  string
}

func (idx *Indexer) run(ctx context.Context, root Root, exts []string, emit func(Progress)) (*Stats, error) {
	start := time.Now()

	stats, err := idx.runPipeline(ctx, root, exts, emit)
	switch {
	case err == nil:
		stats.Duration = time.Since(start)
		idx.metrics.ObserveRun(metrics.RunCompleted, stats.Duration)
		idx.logger.Info("indexing complete",
			"path", stats.RunPath,
			"total", stats.TotalFiles,
			"succeeded", stats.Succeeded,
			"failed", stats.Failed,
			"duration", stats.Duration)
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		idx.metrics.ObserveRun(metrics.RunCancelled, time.Since(start))
		idx.logger.Warn("indexing cancelled", "root", root.Path, "error", err)
	default:
		idx.metrics.ObserveRun(metrics.RunFailed, time.Since(start))
		idx.logger.Error("indexing failed", "root", root.Path, "error", err)
	}
	return stats, err
}

func (idx *Indexer) runPipeline(ctx context.Context, root Root, exts []string, emit func(Progress)) (*Stats, error) {
	if root.FS == nil {
		return nil, fmt.Errorf("%w: no file system", ErrRootUnavailable)
	}
	if _, err := fs.Stat(root.FS, "."); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRootUnavailable, err)
	}
	if _, err := fs.ReadDir(root.FS, "."); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRootUnavailable, err)
	}

	emit(Progress{Phase: PhaseEnumerating})
	files, err := idx.discoverFiles(root, NormalizeExtensions(exts))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRootUnavailable, err)
	}

	runPath := root.RunPath()
	total := len(files)
	if _, err := idx.tracker.BeginRun(ctx, runPath, total); err != nil {
		return nil, err
	}
	idx.logger.Info("indexing started", "path", runPath, "files", total)

	stats := &Stats{RunPath: runPath, TotalFiles: total}
	emit(Progress{Phase: PhaseProcessing, Total: total})

	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("indexing stopped after %d of %d files: %w", i, total, err)
		}

		dirLabel := root.DirLabel(f.rel)
		if err := idx.storage.InsertScannedFile(ctx, &storage.ScannedFileRecord{
			FileName: f.name,
			DirLabel: dirLabel,
		}); err != nil {
			return nil, fmt.Errorf("failed to record scanned file %s: %w", f.rel, err)
		}

		if err := idx.indexFile(ctx, root, f, dirLabel); err != nil {
			class := Classify(err)
			if recErr := idx.storage.InsertError(ctx, &storage.ErrorRecord{
				DirLabel:       dirLabel,
				FileName:       f.name,
				Message:        err.Error(),
				Classification: string(class),
			}); recErr != nil {
				return nil, fmt.Errorf("failed to record error for %s: %w", f.rel, recErr)
			}
			stats.Failed++
			idx.metrics.ObserveFile(metrics.OutcomeFailed)
			idx.logger.Warn("file not indexed", "file", f.rel, "classification", class, "error", err)
		} else {
			stats.Succeeded++
			idx.metrics.ObserveFile(metrics.OutcomeIndexed)
			idx.logger.Debug("file indexed", "file", f.rel)
		}

		emit(Progress{Phase: PhaseProcessing, Processed: i + 1, Total: total, File: f.rel})
	}

	emit(Progress{Phase: PhaseFinalizing, Processed: total, Total: total})
	run, err := idx.tracker.CompleteRun(ctx, runPath, stats.Succeeded, stats.Failed)
	if err != nil {
		return nil, err
	}
	stats.IndexSizeBytes = run.IndexSizeBytes

	emit(Progress{Phase: PhaseDone, Processed: total, Total: total})
	return stats, nil
}

// discoverFiles walks the root in lexical order and selects files whose
// extension is in allow, or every file when allow is empty. Unreadable
// subdirectories are skipped.
func (idx *Indexer) discoverFiles(root Root, allow []string) ([]fileEntry, error) {
	allowed := make(map[string]struct{}, len(allow))
	for _, ext := range allow {
		allowed[ext] = struct{}{}
	}

	var files []fileEntry
	err := fs.WalkDir(root.FS, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == "." {
				return err
			}
			idx.logger.Warn("skipping unreadable entry", "path", p, "error", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		ext := extract.Extension(p)
		if len(allowed) > 0 {
			if _, ok := allowed[ext]; !ok {
				return nil
			}
		}
		files = append(files, fileEntry{rel: p, name: path.Base(p), ext: ext})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// indexFile extracts one file and stores its content and metadata in a
// single transaction, replacing content left by earlier runs.
func (idx *Indexer) indexFile(ctx context.Context, root Root, f fileEntry, dirLabel string) error {
	info, err := fs.Stat(root.FS, f.rel)
	if err != nil {
		return err
	}

	file, err := root.FS.Open(f.rel)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	text, err := idx.dispatcher.ReaderFor(f.ext).Read(file)
	if err != nil {
		return err
	}

	id := root.FileID(f.rel)
	tx, err := idx.storage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.DeleteContentByID(ctx, id); err != nil {
		return fmt.Errorf("failed to replace content: %w", err)
	}
	if err := tx.InsertContent(ctx, &storage.ContentRecord{
		ID:       id,
		Content:  text,
		FileName: f.name,
		Ext:      f.ext,
		DirLabel: dirLabel,
	}); err != nil {
		return fmt.Errorf("failed to store content: %w", err)
	}
	if err := tx.InsertIndexedFile(ctx, &storage.IndexedFileRecord{
		ID:         id,
		FileName:   f.name,
		Content:    text,
		SizeBytes:  info.Size(),
		Ext:        f.ext,
		ModifiedAt: info.ModTime(),
		CreatedAt:  idx.now(),
		DirLabel:   dirLabel,
	}); err != nil {
		return fmt.Errorf("failed to store file record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
