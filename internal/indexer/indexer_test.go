package indexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/docindex-mcp/internal/extract"
	"github.com/dshills/docindex-mcp/internal/metrics"
	"github.com/dshills/docindex-mcp/internal/storage"
)

var testModTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// setupTestStorage creates an in-memory SQLite database for testing
func setupTestStorage(t testing.TB) storage.Storage {
	t.Helper()

	store, err := storage.NewSQLiteStorage(storage.MemoryPath)
	require.NoError(t, err, "Failed to create test storage")
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mapRoot builds a Root over an in-memory tree of text files
func mapRoot(files map[string]string) Root {
	mfs := fstest.MapFS{}
	for name, body := range files {
		mfs[name] = &fstest.MapFile{Data: []byte(body), Mode: 0o644, ModTime: testModTime}
	}
	return Root{FS: mfs, Path: "/data/docs"}
}

// textDispatcher maps every tag used in these tests to a plain reader so
// results don't depend on PDF or DOCX parsing
func textDispatcher(extra map[string]extract.Reader) *extract.Dispatcher {
	d := extract.NewDispatcher()
	d.Register(extract.ExtPDF, extract.TextReader{})
	for ext, r := range extra {
		d.Register(ext, r)
	}
	return d
}

// unlistableFS stats fine but refuses to list its root
type unlistableFS struct {
	fstest.MapFS
}

func (u unlistableFS) ReadDir(name string) ([]fs.DirEntry, error) {
	if name == "." {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrPermission}
	}
	return u.MapFS.ReadDir(name)
}

func unlistableRoot() Root {
	return Root{
		FS:   unlistableFS{fstest.MapFS{"a.txt": &fstest.MapFile{Data: []byte("alpha"), Mode: 0o644}}},
		Path: "/data/locked",
	}
}

type progressRecorder struct {
	calls [][2]int
}

func (p *progressRecorder) record(processed, total int) {
	p.calls = append(p.calls, [2]int{processed, total})
}

func TestNew(t *testing.T) {
	store := setupTestStorage(t)

	idx := New(store)

	assert.NotNil(t, idx)
	assert.NotNil(t, idx.dispatcher)
	assert.NotNil(t, idx.tracker)
	assert.NotNil(t, idx.logger)
	assert.Nil(t, idx.metrics)
	assert.False(t, idx.Running())
}

func TestRun_IndexesFiles(t *testing.T) {
	store := setupTestStorage(t)
	root := mapRoot(map[string]string{
		"top.txt":        "top level error report\n",
		"logs/app.log":   "an error occurred\nsecond line\n",
		"notes/todo.md":  "buy milk\n",
		"notes/skip.bin": "binary",
	})
	idx := New(store, WithLogger(quietLogger()))

	stats, err := idx.Run(context.Background(), root, []string{"txt", "log", "md"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "/data/docs", stats.RunPath)
	assert.Equal(t, 3, stats.TotalFiles)
	assert.Equal(t, 3, stats.Succeeded)
	assert.Equal(t, 0, stats.Failed)

	ctx := context.Background()
	text, err := store.GetContentByID(ctx, filepath.Join("/data/docs", "logs", "app.log"))
	require.NoError(t, err)
	assert.Equal(t, "an error occurred\nsecond line\n", text)

	hits, err := store.MatchContent(ctx, `content:"error"`)
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	files, err := store.ListIndexedFiles(ctx)
	require.NoError(t, err)
	require.Len(t, files, 3)
	byName := make(map[string]*storage.IndexedFileRecord)
	for _, f := range files {
		byName[f.FileName] = f
	}
	require.Contains(t, byName, "app.log")
	assert.Equal(t, "logs", byName["app.log"].DirLabel)
	assert.Equal(t, "log", byName["app.log"].Ext)
	assert.Equal(t, int64(len("an error occurred\nsecond line\n")), byName["app.log"].SizeBytes)
	assert.True(t, testModTime.Equal(byName["app.log"].ModifiedAt))
	assert.Equal(t, 0, byName["app.log"].QueryFrequency)
	require.Contains(t, byName, "top.txt")
	assert.Equal(t, "docs", byName["top.txt"].DirLabel)

	run, err := store.GetRun(ctx, "/data/docs")
	require.NoError(t, err)
	assert.Equal(t, storage.RunComplete, run.Status)
	assert.Equal(t, 3, run.TotalFiles)
	assert.Equal(t, 3, run.SuccessCount)
	assert.Equal(t, 0, run.ErrorCount)
	assert.Equal(t, stats.IndexSizeBytes, run.IndexSizeBytes)

	report, err := store.CheckSync(ctx)
	require.NoError(t, err)
	assert.True(t, report.InSync())
}

func TestRun_ProgressIsMonotonic(t *testing.T) {
	store := setupTestStorage(t)
	files := make(map[string]string)
	for i := 0; i < 5; i++ {
		files[fmt.Sprintf("f%d.txt", i)] = fmt.Sprintf("file %d\n", i)
	}
	idx := New(store, WithLogger(quietLogger()))

	rec := &progressRecorder{}
	_, err := idx.Run(context.Background(), mapRoot(files), nil, rec.record)
	require.NoError(t, err)

	require.Len(t, rec.calls, 6)
	for i, call := range rec.calls {
		assert.Equal(t, [2]int{i, 5}, call)
	}
}

func TestRun_FailuresDoNotAbort(t *testing.T) {
	store := setupTestStorage(t)
	locked := extract.ReaderFunc(func(r io.Reader) (string, error) {
		data, err := io.ReadAll(r)
		if err != nil {
			return "", err
		}
		if string(data) == "locked" {
			return "", fmt.Errorf("open: %w", fs.ErrPermission)
		}
		return string(data), nil
	})
	root := mapRoot(map[string]string{
		"a.txt": "first",
		"b.txt": "locked",
		"c.txt": "third",
		"d.txt": "fourth",
	})
	idx := New(store,
		WithLogger(quietLogger()),
		WithDispatcher(textDispatcher(map[string]extract.Reader{"txt": locked})),
	)

	rec := &progressRecorder{}
	stats, err := idx.Run(context.Background(), root, []string{"txt"}, rec.record)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Succeeded)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, stats.TotalFiles, stats.Succeeded+stats.Failed)
	assert.Len(t, rec.calls, 5)

	ctx := context.Background()
	_, err = store.GetContentByID(ctx, filepath.Join("/data/docs", "d.txt"))
	assert.NoError(t, err, "files after the failure are still processed")

	errs, err := store.ListErrors(ctx)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "b.txt", errs[0].FileName)
	assert.Equal(t, "docs", errs[0].DirLabel)
	assert.Equal(t, string(PermissionDenied), errs[0].Classification)

	run, err := store.GetRun(ctx, "/data/docs")
	require.NoError(t, err)
	assert.Equal(t, storage.RunComplete, run.Status)
	assert.Equal(t, 1, run.ErrorCount)
	assert.Equal(t, 3, run.SuccessCount)
}

func TestRun_ExtensionNormalization(t *testing.T) {
	store := setupTestStorage(t)
	root := mapRoot(map[string]string{
		"Report.PDF":    "quarterly report",
		"notes.pdf.bak": "backup",
		"a.txt":         "plain",
		"README":        "no extension",
	})
	idx := New(store, WithLogger(quietLogger()), WithDispatcher(textDispatcher(nil)))

	stats, err := idx.Run(context.Background(), root, []string{" .TXT ", "PDF", ""}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalFiles)
	assert.Equal(t, 2, stats.Succeeded)

	ctx := context.Background()
	_, err = store.GetContentByID(ctx, filepath.Join("/data/docs", "Report.PDF"))
	assert.NoError(t, err)
	_, err = store.GetContentByID(ctx, filepath.Join("/data/docs", "notes.pdf.bak"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRun_EmptyAllowListSelectsEverything(t *testing.T) {
	store := setupTestStorage(t)
	root := mapRoot(map[string]string{
		"a.txt":      "one",
		"b.unknown":  "two",
		"README":     "three",
		"sub/c.conf": "four",
	})
	idx := New(store, WithLogger(quietLogger()))

	stats, err := idx.Run(context.Background(), root, []string{"", "  "}, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalFiles)
	assert.Equal(t, 4, stats.Succeeded)
}

func TestRun_RerunKeepsOneRunRow(t *testing.T) {
	store := setupTestStorage(t)
	root := mapRoot(map[string]string{
		"a.txt": "alpha error",
		"b.txt": "beta",
	})
	idx := New(store, WithLogger(quietLogger()))
	ctx := context.Background()

	_, err := idx.Run(ctx, root, nil, nil)
	require.NoError(t, err)

	root.FS.(fstest.MapFS)["c.txt"] = &fstest.MapFile{Data: []byte("gamma"), ModTime: testModTime}
	stats, err := idx.Run(ctx, root, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalFiles)

	runs, err := store.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 3, runs[0].TotalFiles)
	assert.Equal(t, 3, runs[0].SuccessCount)

	hits, err := store.MatchContent(ctx, `content:"error"`)
	require.NoError(t, err)
	assert.Len(t, hits, 1, "re-indexing replaces earlier content")

	report, err := store.CheckSync(ctx)
	require.NoError(t, err)
	assert.True(t, report.InSync())
	assert.Equal(t, 3, report.ContentRows)
}

func TestRun_RootUnavailable(t *testing.T) {
	store := setupTestStorage(t)
	idx := New(store, WithLogger(quietLogger()))
	missing := filepath.Join(t.TempDir(), "missing")

	for name, root := range map[string]Root{
		"nil fs":      {Path: missing},
		"missing dir": {FS: os.DirFS(missing), Path: missing},
		"unlistable":  unlistableRoot(),
	} {
		t.Run(name, func(t *testing.T) {
			rec := &progressRecorder{}
			stats, err := idx.Run(context.Background(), root, nil, rec.record)
			assert.ErrorIs(t, err, ErrRootUnavailable)
			assert.Nil(t, stats)
			assert.Empty(t, rec.calls)
		})
	}

	runs, err := store.ListRuns(context.Background())
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRun_SkipsUnreadableSubdirectories(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ok.txt"), []byte("readable"), 0o644))
	secret := filepath.Join(dir, "secret")
	require.NoError(t, os.Mkdir(secret, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(secret, "hidden.txt"), []byte("hidden"), 0o644))
	require.NoError(t, os.Chmod(secret, 0o000))
	t.Cleanup(func() { _ = os.Chmod(secret, 0o755) })

	root, err := OpenRoot(dir)
	require.NoError(t, err)

	idx := New(setupTestStorage(t), WithLogger(quietLogger()))
	stats, err := idx.Run(context.Background(), root, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalFiles)
}

func TestRun_Cancellation(t *testing.T) {
	store := setupTestStorage(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cancelling := extract.ReaderFunc(func(r io.Reader) (string, error) {
		cancel()
		data, err := io.ReadAll(r)
		return string(data), err
	})
	root := mapRoot(map[string]string{"a.txt": "one", "b.txt": "two", "c.txt": "three"})
	idx := New(store,
		WithLogger(quietLogger()),
		WithDispatcher(textDispatcher(map[string]extract.Reader{"txt": cancelling})),
	)

	rec := &progressRecorder{}
	_, err := idx.Run(ctx, root, nil, rec.record)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, len(rec.calls), 4)

	run, err := store.GetRun(context.Background(), "/data/docs")
	require.NoError(t, err)
	assert.Equal(t, storage.RunInProgress, run.Status, "a cancelled run stays in progress")
	assert.False(t, idx.Running())
}

func TestStart_RejectsConcurrentRuns(t *testing.T) {
	store := setupTestStorage(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	blocking := extract.ReaderFunc(func(r io.Reader) (string, error) {
		close(entered)
		<-release
		data, err := io.ReadAll(r)
		return string(data), err
	})
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	idx := New(store,
		WithLogger(quietLogger()),
		WithMetrics(m),
		WithDispatcher(textDispatcher(map[string]extract.Reader{"txt": blocking})),
	)
	root := mapRoot(map[string]string{"only.txt": "content"})

	task, err := idx.Start(context.Background(), root, nil)
	require.NoError(t, err)
	<-entered

	assert.True(t, idx.Running())
	_, err = idx.Run(context.Background(), root, nil, nil)
	assert.ErrorIs(t, err, ErrIndexingInProgress)
	_, err = idx.Start(context.Background(), root, nil)
	assert.ErrorIs(t, err, ErrIndexingInProgress)

	close(release)
	stats, err := task.Wait()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Succeeded)
	assert.False(t, idx.Running())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues(metrics.RunRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues(metrics.RunCompleted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FilesProcessed.WithLabelValues(metrics.OutcomeIndexed)))
}

func TestStart_ProgressEvents(t *testing.T) {
	store := setupTestStorage(t)
	root := mapRoot(map[string]string{"a.txt": "one", "b/c.txt": "two"})
	idx := New(store, WithLogger(quietLogger()))

	task, err := idx.Start(context.Background(), root, []string{"txt"})
	require.NoError(t, err)

	var events []Progress
	for p := range task.Progress() {
		events = append(events, p)
	}
	stats, err := task.Wait()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Succeeded)
	assert.Equal(t, PhaseDone, task.Phase())

	require.Len(t, events, 6)
	assert.Equal(t, PhaseEnumerating, events[0].Phase)
	assert.Equal(t, Progress{Phase: PhaseProcessing, Processed: 0, Total: 2}, events[1])
	assert.Equal(t, Progress{Phase: PhaseProcessing, Processed: 1, Total: 2, File: "a.txt"}, events[2])
	assert.Equal(t, Progress{Phase: PhaseProcessing, Processed: 2, Total: 2, File: "b/c.txt"}, events[3])
	assert.Equal(t, PhaseFinalizing, events[4].Phase)
	assert.Equal(t, PhaseDone, events[5].Phase)

	select {
	case <-task.Done():
	default:
		t.Fatal("task not done after Wait")
	}
}

func TestStart_RootUnavailableSendsNoEvents(t *testing.T) {
	store := setupTestStorage(t)
	idx := New(store, WithLogger(quietLogger()))

	for name, root := range map[string]Root{
		"nil fs":     {Path: "/nowhere"},
		"unlistable": unlistableRoot(),
	} {
		t.Run(name, func(t *testing.T) {
			task, err := idx.Start(context.Background(), root, nil)
			require.NoError(t, err)

			var events []Progress
			for p := range task.Progress() {
				events = append(events, p)
			}
			_, err = task.Wait()
			assert.ErrorIs(t, err, ErrRootUnavailable)
			assert.Empty(t, events)
			assert.Equal(t, PhaseIdle, task.Phase())
		})
	}

	runs, err := store.ListRuns(context.Background())
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Classification
	}{
		{"not exist", fmt.Errorf("open x: %w", fs.ErrNotExist), NotFound},
		{"path error", &fs.PathError{Op: "open", Path: "x", Err: fs.ErrPermission}, PermissionDenied},
		{"extraction", fmt.Errorf("%w: pdf: bad xref", extract.ErrExtraction), ExtractionFailure},
		{"unknown", errors.New("boom"), ExtractionFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "idle", PhaseIdle.String())
	assert.Equal(t, "processing", PhaseProcessing.String())
	assert.Equal(t, "done", PhaseDone.String())
	assert.Equal(t, "unknown", Phase(42).String())
}
